package sessiontree

import (
	"time"
)

// EventKind identifies the type of event emitted by the engine.
type EventKind string

const (
	// EventRunStarted is emitted when a root run begins.
	EventRunStarted EventKind = "run_started"

	// EventRunFinished is emitted when a root run completes.
	EventRunFinished EventKind = "run_finished"

	// EventNodeStarted is emitted after a node's start action ran.
	EventNodeStarted EventKind = "node_started"

	// EventNodeFinished is emitted after a node's finish action ran on
	// the normal path.
	EventNodeFinished EventKind = "node_finished"

	// EventNodeFailed is emitted when a node's iteration loop raised an
	// error, before cleanup is attempted.
	EventNodeFailed EventKind = "node_failed"

	// EventCleanupFailed is emitted when best-effort cleanup after a
	// failure itself failed. The primary failure still propagates.
	EventCleanupFailed EventKind = "cleanup_failed"

	// EventNodeAborted is emitted when a checkpoint aborted the node's
	// subtree.
	EventNodeAborted EventKind = "node_aborted"

	// EventIterationStarted is emitted at the top of each iteration.
	EventIterationStarted EventKind = "iteration_started"

	// EventChildSkipped is emitted when a skip request aborted a single
	// child.
	EventChildSkipped EventKind = "child_skipped"

	// EventPauseStarted is emitted when a checkpoint begins blocking on
	// a pause request.
	EventPauseStarted EventKind = "pause_started"

	// EventPauseEnded is emitted when a pause is released.
	EventPauseEnded EventKind = "pause_ended"

	// EventRecalibrated is emitted when a one-shot calibration ran.
	EventRecalibrated EventKind = "recalibrated"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is a structured, streamable record of what happened during a
// run. Events should stay small; bulk data belongs in an external store
// invoked via action hooks.
type Event struct {
	// Kind identifies the event type.
	Kind EventKind

	// RunID is the unique identifier for the root run. The root node
	// stamps it on events bubbled up through the caller chain.
	RunID string

	// Node is the node that produced this event.
	Node string

	// Iteration is the 1-based iteration index (0 for events outside
	// the iteration loop).
	Iteration int

	// Time is when the event occurred.
	Time time.Time

	// Elapsed is the duration since the root run started.
	Elapsed time.Duration

	// Payload contains event-specific data. Keep it small.
	Payload map[string]any
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(kind EventKind) Event {
	return Event{
		Kind:    kind,
		Time:    time.Now(),
		Payload: make(map[string]any),
	}
}

// WithNode sets the node name on the event.
func (e Event) WithNode(name string) Event {
	e.Node = name
	return e
}

// WithIteration sets the iteration index on the event.
func (e Event) WithIteration(i int) Event {
	e.Iteration = i
	return e
}

// WithElapsed sets the elapsed duration on the event.
func (e Event) WithElapsed(elapsed time.Duration) Event {
	e.Elapsed = elapsed
	return e
}

// WithPayload adds a key-value pair to the event payload.
func (e Event) WithPayload(key string, value any) Event {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[key] = value
	return e
}

// EventHandler is a function type for handling events.
// Implementations can log, store, or forward events as needed.
type EventHandler func(Event)

// MultiEventHandler combines multiple handlers into one.
func MultiEventHandler(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}

// ChannelEventHandler returns a handler that sends events to a channel.
// The channel should have sufficient buffer to avoid blocking.
// Events are dropped if the channel is full.
func ChannelEventHandler(ch chan<- Event) EventHandler {
	return func(e Event) {
		select {
		case ch <- e:
		default:
			// Drop event if channel is full
		}
	}
}
