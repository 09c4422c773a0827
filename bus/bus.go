// Package bus provides an event distribution system for session runs.
// It allows components to publish and subscribe to engine events,
// enabling decoupled communication between the execution engine and
// observers such as loggers, operator UIs, and data recorders.
package bus

import "github.com/session-labs/sessiontree"

// EventBus distributes events to subscribers.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(event sessiontree.Event)

	// Subscribe registers a subscriber for a specific run.
	// Returns a Subscription that must be closed when done.
	Subscribe(runID string) Subscription

	// SubscribeAll registers a subscriber that receives events from all runs.
	// Returns a Subscription that must be closed when done.
	SubscribeAll() Subscription

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// Subscription receives events.
type Subscription interface {
	// Events returns a channel of events for this subscription.
	Events() <-chan sessiontree.Event

	// Close unsubscribes and releases resources.
	Close() error
}

// PublishHandler adapts a bus into an engine event handler, so a running
// tree can feed its events straight onto the bus.
func PublishHandler(b EventBus) sessiontree.EventHandler {
	return func(e sessiontree.Event) {
		b.Publish(e)
	}
}
