package notification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/mailcourier/internal/domain/events"
)

// Message is a rendered notification ready for transport.
type Message struct {
	Subject string
	Body    string
}

// TemplateRenderer renders a notice's payload into a sendable message.
// Rendering is pure: the same event type and payload always yield the same
// message. Missing required payload fields produce a *TemplateError, which
// delivery handlers classify as permanent.
type TemplateRenderer interface {
	Render(eventType events.EventType, payload map[string]any) (Message, error)
}

// Transport sends a rendered message to a recipient. Implementations must
// classify their failures with TransientDelivery or PermanentDelivery so the
// retry scheduler can act on them.
type Transport interface {
	Send(ctx context.Context, to Recipient, msg Message) error
}

// DeliveryHandler renders and sends notices of a single event type. Handlers
// are registered once at process start and looked up by the worker pool; the
// set of handlers is the compile-time-checked extension point for new event
// types.
type DeliveryHandler interface {
	// EventType returns the single event type this handler processes.
	EventType() events.EventType

	// Deliver renders the notice and invokes the transport exactly once.
	// Returned errors carry their transient/permanent classification.
	Deliver(ctx context.Context, n Notice) error
}

// IdempotencyGuard ensures a notice's message is sent at most once despite
// broker redelivery and the fallback path racing the normal path. TryClaim
// must use atomic compare-and-set semantics, not check-then-write.
type IdempotencyGuard interface {
	// TryClaim attempts to claim the notice ID for delivery. It returns true
	// if the claim was granted and false if the ID was already claimed.
	TryClaim(ctx context.Context, noticeID uuid.UUID) (bool, error)

	// Release withdraws a claim after a failed send so a later attempt (or a
	// broker redelivery) can claim it again. Releasing an unclaimed ID is a
	// no-op.
	Release(ctx context.Context, noticeID uuid.UUID) error
}

// DeliveryRecordStore persists delivery records. Records are append-mostly:
// saved on creation and on every state transition, never deleted by the
// pipeline itself.
type DeliveryRecordStore interface {
	// Save upserts the record keyed by notice ID.
	Save(ctx context.Context, rec *DeliveryRecord) error

	// Get returns the record for the notice ID, or ErrRecordNotFound.
	Get(ctx context.Context, noticeID uuid.UUID) (*DeliveryRecord, error)
}

// DeadLetter captures a message the pipeline gave up on, either because it
// was malformed or because it exhausted every delivery path.
type DeadLetter struct {
	NoticeID  uuid.UUID
	EventType events.EventType
	Reason    string
	Raw       []byte
	At        time.Time
}

// DeadLetterSink receives messages that can never be processed. Malformed
// payloads land here directly, bypassing retries.
type DeadLetterSink interface {
	Sink(ctx context.Context, dl DeadLetter) error
}
