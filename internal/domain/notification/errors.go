package notification

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors forming the pipeline's error taxonomy. Transient and
// permanent delivery failures are carried by DeliveryError instead, since
// they wrap an underlying cause.
var (
	// ErrInvalidEvent marks malformed input rejected before any side effect.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrUnknownEventType marks a routing failure for an event type outside
	// the closed set.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrBrokerUnavailable marks a publish failure (connection refused,
	// timeout, serialization error). It is transient and triggers the
	// synchronous fallback path.
	ErrBrokerUnavailable = errors.New("broker unavailable")

	// ErrDuplicateSuppressed reports that the idempotency guard short-circuited
	// a redelivery. It is not a failure; callers treat it as success.
	ErrDuplicateSuppressed = errors.New("duplicate delivery suppressed")

	// ErrRecordNotFound is returned by DeliveryRecordStore.Get when no record
	// exists for the notice ID.
	ErrRecordNotFound = errors.New("delivery record not found")
)

// DeliveryError wraps a delivery failure with its retry classification.
// Classification is a capability of each delivery handler's error result,
// not the retry scheduler's guess: handlers know whether their transport or
// template failure can ever succeed on a later attempt.
type DeliveryError struct {
	// Permanent failures will never succeed without external correction and
	// skip the retry budget entirely.
	Permanent bool
	Err       error
}

func (e *DeliveryError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s delivery error: %v", kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// TransientDelivery wraps err as a retry-eligible delivery failure.
func TransientDelivery(err error) error {
	return &DeliveryError{Permanent: false, Err: err}
}

// PermanentDelivery wraps err as a delivery failure that no retry can fix.
func PermanentDelivery(err error) error {
	return &DeliveryError{Permanent: true, Err: err}
}

// IsPermanentDelivery reports whether err is classified as permanent.
// Unclassified errors are treated as transient so a flaky dependency that
// returns bare errors still gets the retry budget.
func IsPermanentDelivery(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Permanent
}

// TemplateError reports that a template could not be rendered, typically
// because required payload fields are absent. It is always permanent.
type TemplateError struct {
	Template string
	Missing  []string
	Err      error
}

func (e *TemplateError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("template %s: missing required fields: %s",
			e.Template, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("template %s: %v", e.Template, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }
