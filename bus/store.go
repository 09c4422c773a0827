package bus

import (
	"context"
	"log/slog"

	"github.com/session-labs/sessiontree"
)

// StoredEvent is an engine event as persisted, with its store-assigned
// sequence number. Sequence numbers increase monotonically per run.
type StoredEvent struct {
	Seq uint64
	sessiontree.Event
}

// EventStore persists events for replay.
type EventStore interface {
	// Append stores an event.
	Append(ctx context.Context, event sessiontree.Event) error

	// List returns events for a run, optionally filtered.
	// afterSeq: return events with Seq > afterSeq (0 means all)
	// limit: max events to return (0 means no limit)
	List(ctx context.Context, runID string, afterSeq uint64, limit int) ([]StoredEvent, error)

	// LatestSeq returns the highest Seq for a run (0 if no events).
	LatestSeq(ctx context.Context, runID string) (uint64, error)
}

// StoreHandler returns an engine event handler that persists every event
// to the store. Append failures are logged, never propagated: the run
// must not fail because recording did.
func StoreHandler(store EventStore, logger *slog.Logger) sessiontree.EventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(event sessiontree.Event) {
		if err := store.Append(context.Background(), event); err != nil {
			logger.Error("failed to persist event",
				"run_id", event.RunID,
				"kind", event.Kind,
				"node", event.Node,
				"error", err,
			)
		}
	}
}
