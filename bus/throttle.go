package bus

import (
	"sync"
	"time"

	"github.com/session-labs/sessiontree"
)

// ThrottleConfig controls the behavior of ThrottledHandler.
type ThrottleConfig struct {
	// CoalesceInterval is how often to flush coalesced iteration events.
	// Default: 100ms
	CoalesceInterval time.Duration
}

// ThrottledHandler wraps an engine event handler and coalesces
// high-frequency iteration_started events. Tight trial loops can iterate
// at display frame rates; forwarding every tick to a UI or a remote
// store is wasteful. Iteration events are coalesced per node: only the
// latest one for each node is kept within each coalesce interval. All
// other event kinds pass through immediately. A background ticker
// flushes coalesced events at the configured interval.
type ThrottledHandler struct {
	next     sessiontree.EventHandler
	interval time.Duration

	mu      sync.Mutex
	pending map[string]sessiontree.Event // node -> latest iteration event
	closed  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewThrottledHandler creates a handler that wraps next and coalesces
// EventIterationStarted events at the configured interval.
func NewThrottledHandler(next sessiontree.EventHandler, cfg ThrottleConfig) *ThrottledHandler {
	interval := cfg.CoalesceInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	th := &ThrottledHandler{
		next:     next,
		interval: interval,
		pending:  make(map[string]sessiontree.Event),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	go th.run()

	return th
}

// Handle routes an event through the throttle. Non-iteration events pass
// through immediately to the wrapped handler. Iteration events are
// coalesced: only the latest per node is kept and flushed at the
// configured interval.
func (th *ThrottledHandler) Handle(e sessiontree.Event) {
	if e.Kind != sessiontree.EventIterationStarted {
		th.next(e)
		return
	}

	th.mu.Lock()
	defer th.mu.Unlock()

	if th.closed {
		return
	}

	th.pending[e.Node] = e
}

// Close flushes any pending iteration events and stops the background
// ticker. It is safe to call Close multiple times.
func (th *ThrottledHandler) Close() {
	th.mu.Lock()
	if th.closed {
		th.mu.Unlock()
		return
	}
	th.closed = true
	th.mu.Unlock()

	close(th.stopCh)
	<-th.doneCh
}

// run is the background goroutine that periodically flushes coalesced
// iteration events.
func (th *ThrottledHandler) run() {
	defer close(th.doneCh)

	ticker := time.NewTicker(th.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			th.flush()
		case <-th.stopCh:
			// Flush any remaining pending events before exiting.
			th.flush()
			return
		}
	}
}

// flush sends all pending coalesced events to the wrapped handler and
// clears the pending map.
func (th *ThrottledHandler) flush() {
	th.mu.Lock()
	if len(th.pending) == 0 {
		th.mu.Unlock()
		return
	}

	// Swap out the pending map so we can release the lock during delivery.
	toFlush := th.pending
	th.pending = make(map[string]sessiontree.Event)
	th.mu.Unlock()

	for _, e := range toFlush {
		th.next(e)
	}
}
