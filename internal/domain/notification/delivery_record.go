package notification

import (
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/mailcourier/internal/domain/events"
)

// DeliveryRecord tracks the processing state of one notice. It is owned
// exclusively by the dispatch pipeline: created on the first broker
// consumption (or on fallback path entry), updated on every state
// transition, and retained for audit after reaching a terminal state.
type DeliveryRecord struct {
	// NoticeID identifies the notice this record tracks.
	NoticeID uuid.UUID

	// EventType is the notice's event type, denormalized for querying.
	EventType events.EventType

	// Status is the current position in the delivery state machine.
	Status DeliveryStatus

	// Attempts counts delivery attempts made against the transport.
	Attempts int

	// LastError holds the most recent failure, empty on the happy path.
	LastError string

	// NextRetryAt is set while Status is Retrying; zero otherwise.
	NextRetryAt time.Time

	// CreatedAt and UpdatedAt bound the record's lifetime.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDeliveryRecord creates the record for a notice entering the pipeline
// through the broker.
func NewDeliveryRecord(n Notice) *DeliveryRecord {
	now := time.Now().UTC()
	return &DeliveryRecord{
		NoticeID:  n.ID,
		EventType: n.Type,
		Status:    StatusPublished,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewFallbackDeliveryRecord creates the record for a notice that never
// reached the broker and entered directly on the fallback path.
func NewFallbackDeliveryRecord(n Notice) *DeliveryRecord {
	now := time.Now().UTC()
	return &DeliveryRecord{
		NoticeID:  n.ID,
		EventType: n.Type,
		Status:    StatusFallbackAttempt,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo moves the record to the target status, enforcing the state
// machine's forward-only rules.
func (r *DeliveryRecord) TransitionTo(target DeliveryStatus) error {
	if err := r.Status.validateTransition(target); err != nil {
		return err
	}
	r.Status = target
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkProcessing records that a worker picked the notice up.
func (r *DeliveryRecord) MarkProcessing() error {
	r.Attempts++
	return r.TransitionTo(StatusProcessing)
}

// MarkDelivered records a successful send. Terminal.
func (r *DeliveryRecord) MarkDelivered() error {
	r.LastError = ""
	r.NextRetryAt = time.Time{}
	return r.TransitionTo(StatusDelivered)
}

// MarkRetrying records a transient failure and when the next attempt is due.
func (r *DeliveryRecord) MarkRetrying(cause error, nextRetryAt time.Time) error {
	r.LastError = cause.Error()
	r.NextRetryAt = nextRetryAt
	return r.TransitionTo(StatusRetrying)
}

// MarkDeadLettered records that the notice cannot be delivered through the
// normal path: either the failure was permanent or the retry budget is spent.
func (r *DeliveryRecord) MarkDeadLettered(cause error) error {
	r.LastError = cause.Error()
	r.NextRetryAt = time.Time{}
	return r.TransitionTo(StatusDeadLettered)
}

// MarkFallbackAttempt records that the direct-send path was entered after
// dead-lettering.
func (r *DeliveryRecord) MarkFallbackAttempt() error {
	return r.TransitionTo(StatusFallbackAttempt)
}

// MarkFallbackDelivered records a successful direct send. Terminal.
func (r *DeliveryRecord) MarkFallbackDelivered() error {
	r.LastError = ""
	return r.TransitionTo(StatusFallbackDelivered)
}

// MarkFallbackFailed records that even the direct-send path failed. Terminal.
func (r *DeliveryRecord) MarkFallbackFailed(cause error) error {
	r.LastError = cause.Error()
	return r.TransitionTo(StatusFallbackFailed)
}
