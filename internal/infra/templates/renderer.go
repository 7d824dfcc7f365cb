// Package templates renders account notification messages from embedded HTML
// templates. Rendering is a pure function of event type and payload; missing
// required fields fail with a *notification.TemplateError, which delivery
// handlers classify as permanent since no retry can conjure absent data.
package templates

import (
	"fmt"
	"html/template"
	"strings"

	"embed"

	"github.com/ahrav/mailcourier/internal/domain/events"
	"github.com/ahrav/mailcourier/internal/domain/notification"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// subjects maps each event type to its message subject line.
var subjects = map[events.EventType]string{
	notification.EventTypeAccountVerification: "Verify Your Account",
	notification.EventTypeAccountLocked:       "Account Locked Notification",
	notification.EventTypeAccountUnlocked:     "Account Unlocked Notification",
	notification.EventTypeRoleUpgrade:         "Role Update Notification",
	notification.EventTypeProfessionalStatus:  "Professional Status Update",
}

// requiredFields lists the template context keys each event type needs.
// Delivery handlers shape the notice payload into this context before
// rendering.
var requiredFields = map[events.EventType][]string{
	notification.EventTypeAccountVerification: {"name", "email", "verification_url"},
	notification.EventTypeAccountLocked:       {"name", "email", "support_email"},
	notification.EventTypeAccountUnlocked:     {"name", "email"},
	notification.EventTypeRoleUpgrade:         {"name", "email", "new_role", "role_description"},
	notification.EventTypeProfessionalStatus:  {"name", "email", "status_text"},
}

var _ notification.TemplateRenderer = (*Renderer)(nil)

// Renderer renders messages from the embedded template set.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates. Parsing failures are programmer
// errors and surface at startup.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing embedded templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render produces the subject and body for the event type from the given
// template context.
func (r *Renderer) Render(eventType events.EventType, payload map[string]any) (notification.Message, error) {
	subject, ok := subjects[eventType]
	if !ok {
		return notification.Message{}, fmt.Errorf("%w: %s", notification.ErrUnknownEventType, eventType)
	}

	var missing []string
	for _, field := range requiredFields[eventType] {
		v, present := payload[field]
		if !present || v == nil || fmt.Sprint(v) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return notification.Message{}, &notification.TemplateError{
			Template: string(eventType),
			Missing:  missing,
		}
	}

	var body strings.Builder
	if err := r.tmpl.ExecuteTemplate(&body, string(eventType)+".tmpl", payload); err != nil {
		return notification.Message{}, &notification.TemplateError{
			Template: string(eventType),
			Err:      err,
		}
	}

	return notification.Message{Subject: subject, Body: body.String()}, nil
}
