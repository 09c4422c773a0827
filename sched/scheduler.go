package sched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchLimit   = 100
)

// RunFunc executes one scheduled session run and returns its run ID.
// Implementations typically load the schedule's plan, build the tree,
// and drive it to completion.
type RunFunc func(ctx context.Context, schedule Schedule, scheduledAt time.Time) (string, error)

// SchedulerConfig configures the background schedule runner.
type SchedulerConfig struct {
	Run          RunFunc
	Store        ScheduleStore
	PollInterval time.Duration
	BatchLimit   int
	Now          func() time.Time
	Logger       *slog.Logger
}

// Scheduler periodically executes due session schedules. A schedule
// whose previous run is still active is skipped for that fire time
// rather than overlapped: two sessions cannot share a rig.
type Scheduler struct {
	run          RunFunc
	store        ScheduleStore
	pollInterval time.Duration
	batchLimit   int
	now          func() time.Time
	logger       *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler instance.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Run == nil {
		return nil, errors.New("scheduler run function is nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("scheduler store is nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = defaultBatchLimit
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Scheduler{
		run:          cfg.Run,
		store:        cfg.Store,
		pollInterval: cfg.PollInterval,
		batchLimit:   cfg.BatchLimit,
		now:          cfg.Now,
		logger:       cfg.Logger,
		active:       map[string]struct{}{},
	}, nil
}

// Start starts background polling. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start() error {
	if s == nil {
		return errors.New("scheduler is nil")
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		_ = s.RunOnce(loopCtx)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				_ = s.RunOnce(loopCtx)
			}
		}
	}()

	return nil
}

// Stop stops background polling and waits for the loop to exit, bounded
// by the given context.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce executes a single scheduler pass.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if s == nil || s.store == nil || s.run == nil {
		return errors.New("scheduler is not configured")
	}

	now := s.now().UTC()
	due, err := s.store.ListDue(ctx, now, s.batchLimit)
	if err != nil {
		return err
	}

	for _, schedule := range due {
		s.processDueSchedule(ctx, schedule, now)
	}
	return nil
}

func (s *Scheduler) processDueSchedule(ctx context.Context, schedule Schedule, now time.Time) {
	if !schedule.Enabled {
		return
	}

	if s.isActive(schedule.ID) {
		s.markSkippedOverlap(ctx, schedule, now)
		return
	}

	nextRunAt, err := NextRunUTC(schedule.Cron, now)
	if err != nil {
		s.markFailure(ctx, schedule, now, fmt.Errorf("invalid cron expression: %w", err))
		return
	}

	schedule.NextRunAt = nextRunAt
	schedule.LastStatus = RunStatusRunning
	schedule.LastError = ""
	schedule.UpdatedAt = now
	if err := s.store.Update(ctx, schedule); err != nil {
		s.logger.Error("update schedule before run", "schedule_id", schedule.ID, "plan_id", schedule.PlanID, "error", err)
		return
	}

	s.markActive(schedule.ID)
	go s.runSchedule(schedule, now)
}

func (s *Scheduler) runSchedule(schedule Schedule, scheduledAt time.Time) {
	defer s.unmarkActive(schedule.ID)

	runID, runErr := s.run(context.Background(), schedule, scheduledAt)

	finish := s.now().UTC()
	latest, found, err := s.store.Get(context.Background(), schedule.ID)
	if err != nil {
		s.logger.Error("load schedule after run", "schedule_id", schedule.ID, "plan_id", schedule.PlanID, "error", err)
		return
	}
	if !found {
		return
	}

	latest.UpdatedAt = finish
	latest.LastRunAt = &finish
	if runErr != nil {
		latest.LastStatus = RunStatusFailed
		latest.LastError = runErr.Error()
	} else {
		latest.LastStatus = RunStatusCompleted
		latest.LastError = ""
		latest.LastRunID = runID
	}

	if err := s.store.Update(context.Background(), latest); err != nil {
		s.logger.Error("persist schedule run result", "schedule_id", schedule.ID, "plan_id", schedule.PlanID, "error", err)
	}
}

func (s *Scheduler) markSkippedOverlap(ctx context.Context, schedule Schedule, now time.Time) {
	nextRunAt, err := NextRunUTC(schedule.Cron, now)
	if err != nil {
		s.markFailure(ctx, schedule, now, fmt.Errorf("invalid cron expression: %w", err))
		return
	}

	schedule.NextRunAt = nextRunAt
	schedule.LastStatus = RunStatusSkippedOverlap
	schedule.LastError = "skipped because prior scheduled run is still active"
	schedule.UpdatedAt = now
	if err := s.store.Update(ctx, schedule); err != nil {
		s.logger.Error("persist overlap skip", "schedule_id", schedule.ID, "plan_id", schedule.PlanID, "error", err)
	}
}

func (s *Scheduler) markFailure(ctx context.Context, schedule Schedule, now time.Time, runErr error) {
	nextRunAt, nextErr := NextRunUTC(schedule.Cron, now)
	if nextErr == nil {
		schedule.NextRunAt = nextRunAt
	}
	schedule.LastStatus = RunStatusFailed
	schedule.LastError = runErr.Error()
	schedule.UpdatedAt = now
	if err := s.store.Update(ctx, schedule); err != nil {
		s.logger.Error("persist schedule failure", "schedule_id", schedule.ID, "plan_id", schedule.PlanID, "error", err)
	}
}

func (s *Scheduler) isActive(scheduleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[scheduleID]
	return ok
}

func (s *Scheduler) markActive(scheduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[scheduleID] = struct{}{}
}

func (s *Scheduler) unmarkActive(scheduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, scheduleID)
}
