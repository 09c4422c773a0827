package bus

import (
	"context"
	"sync"

	"github.com/session-labs/sessiontree"
)

// MemEventStore is a thread-safe in-memory event store. Sequence numbers
// are assigned per run in append order, starting at 1.
type MemEventStore struct {
	mu     sync.RWMutex
	events map[string][]StoredEvent // runID -> events
}

// NewMemEventStore creates a new in-memory event store.
func NewMemEventStore() *MemEventStore {
	return &MemEventStore{
		events: make(map[string][]StoredEvent),
	}
}

func (s *MemEventStore) Append(_ context.Context, event sessiontree.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := uint64(len(s.events[event.RunID])) + 1
	s.events[event.RunID] = append(s.events[event.RunID], StoredEvent{Seq: seq, Event: event})
	return nil
}

func (s *MemEventStore) List(_ context.Context, runID string, afterSeq uint64, limit int) ([]StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.events[runID]
	var result []StoredEvent

	for _, e := range all {
		if afterSeq > 0 && e.Seq <= afterSeq {
			continue
		}
		result = append(result, e)
		if limit > 0 && len(result) >= limit {
			break
		}
	}

	return result, nil
}

func (s *MemEventStore) LatestSeq(_ context.Context, runID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[runID]
	if len(events) == 0 {
		return 0, nil
	}
	return events[len(events)-1].Seq, nil
}

// Compile-time interface check.
var _ EventStore = (*MemEventStore)(nil)
