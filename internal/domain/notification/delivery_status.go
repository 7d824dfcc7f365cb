package notification

import (
	"errors"
	"fmt"
)

// DeliveryStatus represents the processing state of a single notice. It
// enables fine-grained tracking of delivery progress and error conditions.
type DeliveryStatus string

// ErrDeliveryStatusUnknown is returned when a delivery status is unknown.
var ErrDeliveryStatusUnknown = errors.New("delivery status unknown")

const (
	// StatusPublished indicates the notice was durably queued in the broker
	// but not yet consumed.
	StatusPublished DeliveryStatus = "PUBLISHED"

	// StatusProcessing indicates a worker is actively handling the notice.
	StatusProcessing DeliveryStatus = "PROCESSING"

	// StatusDelivered indicates the message was sent successfully.
	StatusDelivered DeliveryStatus = "DELIVERED"

	// StatusRetrying indicates a transient failure occurred and another
	// attempt is scheduled.
	StatusRetrying DeliveryStatus = "RETRYING"

	// StatusDeadLettered indicates retries were exhausted or the failure was
	// permanent; the notice was recorded for operator visibility.
	StatusDeadLettered DeliveryStatus = "DEAD_LETTERED"

	// StatusFallbackAttempt indicates the synchronous direct-send path is in
	// flight, either because publishing failed or retries exhausted.
	StatusFallbackAttempt DeliveryStatus = "FALLBACK_ATTEMPT"

	// StatusFallbackDelivered indicates the direct-send path succeeded.
	StatusFallbackDelivered DeliveryStatus = "FALLBACK_DELIVERED"

	// StatusFallbackFailed indicates the direct-send path failed; the notice
	// is lost and only the audit record remains.
	StatusFallbackFailed DeliveryStatus = "FALLBACK_FAILED"

	// StatusUnspecified is used when a delivery status is unknown.
	StatusUnspecified DeliveryStatus = "UNSPECIFIED"
)

// String returns the string representation of the DeliveryStatus.
func (s DeliveryStatus) String() string { return string(s) }

// IsTerminal reports whether no further transitions may leave this status.
func (s DeliveryStatus) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusFallbackDelivered, StatusFallbackFailed:
		return true
	default:
		return false
	}
}

// ParseDeliveryStatus converts a string to a DeliveryStatus.
func ParseDeliveryStatus(s string) DeliveryStatus {
	switch s {
	case "PUBLISHED":
		return StatusPublished
	case "PROCESSING":
		return StatusProcessing
	case "DELIVERED":
		return StatusDelivered
	case "RETRYING":
		return StatusRetrying
	case "DEAD_LETTERED":
		return StatusDeadLettered
	case "FALLBACK_ATTEMPT":
		return StatusFallbackAttempt
	case "FALLBACK_DELIVERED":
		return StatusFallbackDelivered
	case "FALLBACK_FAILED":
		return StatusFallbackFailed
	default:
		return StatusUnspecified
	}
}

// validateTransition checks if a status transition is valid and returns an
// error if not.
func (s DeliveryStatus) validateTransition(target DeliveryStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid delivery status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition checks if the current status can transition to the target
// status. Transitions are monotonic forward moves; terminal states absorb.
func (s DeliveryStatus) isValidTransition(target DeliveryStatus) bool {
	switch s {
	case StatusPublished:
		return target == StatusProcessing
	case StatusProcessing:
		return target == StatusDelivered || target == StatusRetrying || target == StatusDeadLettered
	case StatusRetrying:
		return target == StatusProcessing
	case StatusDeadLettered:
		return target == StatusFallbackAttempt
	case StatusFallbackAttempt:
		return target == StatusFallbackDelivered || target == StatusFallbackFailed
	case StatusDelivered, StatusFallbackDelivered, StatusFallbackFailed:
		// Terminal states - no further transitions allowed.
		return false
	case StatusUnspecified:
		return false
	default:
		return false
	}
}
