// Package notification contains the account notification bounded context:
// the lifecycle event types, the notice envelope that travels through the
// broker, delivery tracking, and the ports the dispatch pipeline depends on.
package notification

import (
	"fmt"

	"github.com/ahrav/mailcourier/internal/domain/events"
)

// Account lifecycle event types. Each type maps to exactly one broker topic
// named identically to the event type, so routing stays stable across
// deployments and per-type ordering is preserved.
const (
	// EventTypeAccountVerification asks the recipient to verify their address.
	EventTypeAccountVerification events.EventType = "account_verification"

	// EventTypeAccountLocked informs the recipient their account was locked.
	EventTypeAccountLocked events.EventType = "account_locked"

	// EventTypeAccountUnlocked informs the recipient their account was unlocked.
	EventTypeAccountUnlocked events.EventType = "account_unlocked"

	// EventTypeRoleUpgrade informs the recipient their role changed.
	EventTypeRoleUpgrade events.EventType = "role_upgrade"

	// EventTypeProfessionalStatus informs the recipient their professional
	// status changed.
	EventTypeProfessionalStatus events.EventType = "professional_status_upgrade"
)

// KnownEventTypes returns the closed set of event types the pipeline handles,
// in a stable order.
func KnownEventTypes() []events.EventType {
	return []events.EventType{
		EventTypeAccountVerification,
		EventTypeAccountLocked,
		EventTypeAccountUnlocked,
		EventTypeRoleUpgrade,
		EventTypeProfessionalStatus,
	}
}

// IsKnownEventType reports whether t is one of the account lifecycle event types.
func IsKnownEventType(t events.EventType) bool {
	switch t {
	case EventTypeAccountVerification,
		EventTypeAccountLocked,
		EventTypeAccountUnlocked,
		EventTypeRoleUpgrade,
		EventTypeProfessionalStatus:
		return true
	default:
		return false
	}
}

// Topic maps an event type to its broker topic. Topic assignment is static:
// one topic per event type, named identically to the event type. It returns
// ErrUnknownEventType for anything outside the closed set.
func Topic(t events.EventType) (string, error) {
	if !IsKnownEventType(t) {
		return "", fmt.Errorf("%w: %s", ErrUnknownEventType, t)
	}
	return string(t), nil
}
