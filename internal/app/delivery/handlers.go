package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahrav/mailcourier/internal/domain/events"
	"github.com/ahrav/mailcourier/internal/domain/notification"
)

// HandlerConfig carries the deployment-specific values handlers bake into
// template contexts.
type HandlerConfig struct {
	// ServerBaseURL is the public base URL used to assemble verification
	// links.
	ServerBaseURL string

	// SupportEmail is surfaced in account-locked notifications.
	SupportEmail string
}

// roleDescriptions maps role names to the human-readable description shown
// in role upgrade notifications.
var roleDescriptions = map[string]string{
	"AUTHENTICATED": "regular authenticated user",
	"MANAGER":       "manager with additional privileges",
	"ADMIN":         "administrator with full system access",
}

const defaultRoleDescription = "user with updated permissions"

// typedHandler is the shared implementation behind every event type's
// delivery handler. Handlers differ only in how they shape the notice
// payload into a template context.
type typedHandler struct {
	eventType events.EventType
	renderer  notification.TemplateRenderer
	transport notification.Transport
	shape     func(n notification.Notice) map[string]any
}

var _ notification.DeliveryHandler = (*typedHandler)(nil)

func (h *typedHandler) EventType() events.EventType { return h.eventType }

// Deliver renders the notice into a message and sends it. Render failures
// are permanent since retrying cannot supply missing payload data; transport
// errors keep whatever classification the transport assigned.
func (h *typedHandler) Deliver(ctx context.Context, n notification.Notice) error {
	msg, err := h.renderer.Render(h.eventType, h.shape(n))
	if err != nil {
		return notification.PermanentDelivery(fmt.Errorf("rendering %s notice %s: %w", h.eventType, n.ID, err))
	}
	return h.transport.Send(ctx, n.Recipient, msg)
}

// NewHandlers builds the delivery handler set for all known event types.
func NewHandlers(
	cfg HandlerConfig,
	renderer notification.TemplateRenderer,
	transport notification.Transport,
) []notification.DeliveryHandler {
	return []notification.DeliveryHandler{
		&typedHandler{
			eventType: notification.EventTypeAccountVerification,
			renderer:  renderer,
			transport: transport,
			shape: func(n notification.Notice) map[string]any {
				c := baseContext(n)
				c["verification_url"] = verificationURL(cfg.ServerBaseURL, n.Payload)
				return c
			},
		},
		&typedHandler{
			eventType: notification.EventTypeAccountLocked,
			renderer:  renderer,
			transport: transport,
			shape: func(n notification.Notice) map[string]any {
				c := baseContext(n)
				c["support_email"] = cfg.SupportEmail
				return c
			},
		},
		&typedHandler{
			eventType: notification.EventTypeAccountUnlocked,
			renderer:  renderer,
			transport: transport,
			shape:     baseContext,
		},
		&typedHandler{
			eventType: notification.EventTypeRoleUpgrade,
			renderer:  renderer,
			transport: transport,
			shape: func(n notification.Notice) map[string]any {
				c := baseContext(n)
				newRole, _ := n.Payload["new_role"].(string)
				desc, ok := roleDescriptions[newRole]
				if !ok {
					desc = defaultRoleDescription
				}
				c["new_role"] = newRole
				c["role_description"] = desc
				return c
			},
		},
		&typedHandler{
			eventType: notification.EventTypeProfessionalStatus,
			renderer:  renderer,
			transport: transport,
			shape: func(n notification.Notice) map[string]any {
				c := baseContext(n)
				isProfessional, _ := n.Payload["is_professional"].(bool)
				statusText := "changed from professional status"
				if isProfessional {
					statusText = "upgraded to professional status"
				}
				c["is_professional"] = isProfessional
				c["status_text"] = statusText
				return c
			},
		},
	}
}

// baseContext builds the template context fields common to every event type.
func baseContext(n notification.Notice) map[string]any {
	return map[string]any{
		"name":  n.Recipient.DisplayName(),
		"email": n.Recipient.Email,
	}
}

// verificationURL assembles the email verification link. A pre-assembled
// verification_url in the payload wins over assembly from parts. Missing
// parts yield an empty URL, which the renderer rejects as a missing field.
func verificationURL(baseURL string, payload map[string]any) string {
	if u, ok := payload["verification_url"].(string); ok && u != "" {
		return u
	}
	userID, token := payload["user_id"], payload["verification_token"]
	if userID == nil || token == nil {
		return ""
	}
	return fmt.Sprintf("%s/verify-email/%v/%v", strings.TrimRight(baseURL, "/"), userID, token)
}
