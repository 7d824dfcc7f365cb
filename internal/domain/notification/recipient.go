package notification

import (
	"fmt"
	"regexp"
	"strings"
)

// emailPattern is intentionally permissive; the transport provider performs
// the authoritative validation. This only rejects obviously malformed input
// before it reaches the broker.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Recipient identifies who a notification is addressed to.
type Recipient struct {
	// Email is the destination address.
	Email string `json:"email"`
	// Name is the display name used in templates and the message header.
	Name string `json:"name"`
}

// Validate checks that the recipient is well-formed.
func (r Recipient) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return fmt.Errorf("%w: recipient email is empty", ErrInvalidEvent)
	}
	if !emailPattern.MatchString(r.Email) {
		return fmt.Errorf("%w: recipient email %q is malformed", ErrInvalidEvent, r.Email)
	}
	return nil
}

// DisplayName returns the recipient's name, falling back to a generic form of
// address when no name was captured at event-emission time.
func (r Recipient) DisplayName() string {
	if strings.TrimSpace(r.Name) == "" {
		return "User"
	}
	return r.Name
}
