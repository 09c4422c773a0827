package sched

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrScheduleExists   = errors.New("schedule already exists")
	ErrScheduleNotFound = errors.New("schedule not found")
)

const (
	RunStatusRunning        = "running"
	RunStatusCompleted      = "completed"
	RunStatusFailed         = "failed"
	RunStatusSkippedOverlap = "skipped_overlap"
)

// Schedule represents a persisted cron schedule for a session plan.
type Schedule struct {
	ID      string `json:"id"`
	PlanID  string `json:"plan_id"`
	Cron    string `json:"cron"`
	Enabled bool   `json:"enabled"`

	NextRunAt  time.Time  `json:"next_run_at"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastRunID  string     `json:"last_run_id,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
	LastError  string     `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScheduleStore provides CRUD plus due-schedule queries.
type ScheduleStore interface {
	List(ctx context.Context) ([]Schedule, error)
	Get(ctx context.Context, scheduleID string) (Schedule, bool, error)
	Create(ctx context.Context, schedule Schedule) error
	Update(ctx context.Context, schedule Schedule) error
	Delete(ctx context.Context, scheduleID string) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]Schedule, error)
}

// MemScheduleStore is a thread-safe in-memory schedule store.
type MemScheduleStore struct {
	mu        sync.RWMutex
	schedules map[string]Schedule
}

// NewMemScheduleStore creates an empty in-memory schedule store.
func NewMemScheduleStore() *MemScheduleStore {
	return &MemScheduleStore{schedules: make(map[string]Schedule)}
}

func (s *MemScheduleStore) List(_ context.Context) ([]Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, sched)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemScheduleStore) Get(_ context.Context, scheduleID string) (Schedule, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[scheduleID]
	return sched, ok, nil
}

func (s *MemScheduleStore) Create(_ context.Context, schedule Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[schedule.ID]; ok {
		return ErrScheduleExists
	}
	s.schedules[schedule.ID] = schedule
	return nil
}

func (s *MemScheduleStore) Update(_ context.Context, schedule Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[schedule.ID]; !ok {
		return ErrScheduleNotFound
	}
	s.schedules[schedule.ID] = schedule
	return nil
}

func (s *MemScheduleStore) Delete(_ context.Context, scheduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[scheduleID]; !ok {
		return ErrScheduleNotFound
	}
	delete(s.schedules, scheduleID)
	return nil
}

func (s *MemScheduleStore) ListDue(_ context.Context, now time.Time, limit int) ([]Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []Schedule
	for _, sched := range s.schedules {
		if !sched.NextRunAt.After(now) {
			due = append(due, sched)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(due[j].NextRunAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Compile-time interface check.
var _ ScheduleStore = (*MemScheduleStore)(nil)
