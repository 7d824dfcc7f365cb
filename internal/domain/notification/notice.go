package notification

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/mailcourier/internal/domain/events"
)

// Notice is the immutable record describing one notification event. It is
// created once at event-emission time and travels through the broker (or the
// fallback path) unchanged except for the attempt counter.
type Notice struct {
	// ID is generated at creation and never changes. It doubles as the
	// idempotency key for delivery and as the broker partition key.
	ID uuid.UUID `json:"id"`

	// Type is one of the account lifecycle event types.
	Type events.EventType `json:"type"`

	// Recipient is who the rendered message is sent to.
	Recipient Recipient `json:"recipient"`

	// Payload holds the template variables for this event type. It is opaque
	// to the dispatch pipeline; only the delivery handlers interpret it.
	Payload map[string]any `json:"payload"`

	// CreatedAt records when the notice was emitted.
	CreatedAt time.Time `json:"created_at"`

	// Attempt counts delivery attempts made so far. It only increases.
	Attempt int `json:"attempt"`
}

// NewNotice constructs a notice for the given event. The ID and creation time
// are assigned here; callers never supply them.
func NewNotice(t events.EventType, recipient Recipient, payload map[string]any) Notice {
	return Notice{
		ID:        uuid.New(),
		Type:      t,
		Recipient: recipient,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate rejects notices that could never be delivered: unknown event types
// and malformed recipients. It has no side effects.
func (n Notice) Validate() error {
	if n.ID == uuid.Nil {
		return fmt.Errorf("%w: notice id is unset", ErrInvalidEvent)
	}
	if !IsKnownEventType(n.Type) {
		return fmt.Errorf("%w: event type %q", ErrUnknownEventType, n.Type)
	}
	return n.Recipient.Validate()
}
