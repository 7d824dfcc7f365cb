package events

import "time"

// EventEnvelope encapsulates all event data flowing through the system,
// providing a standardized format for event processing and distribution.
type EventEnvelope struct {
	// Type identifies the category of this event for routing and handling.
	Type EventType

	// Key enables consistent event routing, typically containing a business
	// identifier like a notice ID that events can be partitioned by.
	Key string

	// Headers contain metadata key-value pairs attached to the event.
	Headers map[string]string

	// Timestamp records when this event was created, enabling temporal
	// tracking and debugging of event flows.
	Timestamp time.Time

	// Payload contains the actual event data. The concrete type depends on
	// the EventType.
	Payload any

	// Metadata carries broker position information for consumed events.
	Metadata EventMetadata
}

// EventMetadata identifies where in the broker's log a consumed event came
// from. It is zero-valued for events that have not passed through a broker.
type EventMetadata struct {
	Partition int32
	Offset    int64
}
