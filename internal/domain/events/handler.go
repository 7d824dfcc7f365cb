package events

import "context"

// AckFunc acknowledges that a consumed event has been fully handled. Passing
// a non-nil error records the failure without advancing the consumer's
// position, so the broker will redeliver the event.
type AckFunc func(err error)

// HandlerFunc processes a single consumed event. Implementations must call
// ack exactly once when the event has reached a state that should not be
// redelivered.
type HandlerFunc func(ctx context.Context, evt EventEnvelope, ack AckFunc) error

// EventHandler defines the contract for components that process domain events.
// Each handler must declare which event types it can process and implement the
// logic to handle those events. The event dispatcher routes events to the
// appropriate handlers based on the event type.
type EventHandler interface {
	// HandleEvent processes a domain event and returns an error if processing fails.
	HandleEvent(ctx context.Context, evt EventEnvelope, ack AckFunc) error

	// SupportedEvents returns the event types this handler can process.
	SupportedEvents() []EventType
}
