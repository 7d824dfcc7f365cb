package templates

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/mailcourier/internal/domain/events"
	"github.com/ahrav/mailcourier/internal/domain/notification"
)

func TestRendererAllEventTypes(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer()
	require.NoError(t, err)

	tests := []struct {
		name        string
		eventType   string
		payload     map[string]any
		wantSubject string
		wantInBody  []string
	}{
		{
			name:      "account verification",
			eventType: string(notification.EventTypeAccountVerification),
			payload: map[string]any{
				"name":             "Ada",
				"email":            "ada@example.com",
				"verification_url": "https://app.example.com/verify-email/42/tok",
			},
			wantSubject: "Verify Your Account",
			wantInBody:  []string{"Ada", "https://app.example.com/verify-email/42/tok"},
		},
		{
			name:      "account locked",
			eventType: string(notification.EventTypeAccountLocked),
			payload: map[string]any{
				"name":          "Ada",
				"email":         "ada@example.com",
				"support_email": "support@example.com",
			},
			wantSubject: "Account Locked Notification",
			wantInBody:  []string{"Ada", "support@example.com"},
		},
		{
			name:      "account unlocked",
			eventType: string(notification.EventTypeAccountUnlocked),
			payload: map[string]any{
				"name":  "Ada",
				"email": "ada@example.com",
			},
			wantSubject: "Account Unlocked Notification",
			wantInBody:  []string{"Ada"},
		},
		{
			name:      "role upgrade",
			eventType: string(notification.EventTypeRoleUpgrade),
			payload: map[string]any{
				"name":             "Ada",
				"email":            "ada@example.com",
				"new_role":         "MANAGER",
				"role_description": "manager with additional privileges",
			},
			wantSubject: "Role Update Notification",
			wantInBody:  []string{"MANAGER", "manager with additional privileges"},
		},
		{
			name:      "professional status upgrade",
			eventType: string(notification.EventTypeProfessionalStatus),
			payload: map[string]any{
				"name":        "Ada",
				"email":       "ada@example.com",
				"status_text": "approved",
			},
			wantSubject: "Professional Status Update",
			wantInBody:  []string{"approved"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg, err := r.Render(events.EventType(tt.eventType), tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSubject, msg.Subject)
			for _, want := range tt.wantInBody {
				assert.Contains(t, msg.Body, want)
			}
		})
	}
}

func TestRendererMissingFields(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer()
	require.NoError(t, err)

	_, err = r.Render(notification.EventTypeAccountVerification, map[string]any{
		"name":  "Ada",
		"email": "ada@example.com",
	})
	require.Error(t, err)

	var tmplErr *notification.TemplateError
	require.True(t, errors.As(err, &tmplErr))
	assert.Contains(t, tmplErr.Missing, "verification_url")
}

func TestRendererEmptyFieldCountsAsMissing(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer()
	require.NoError(t, err)

	_, err = r.Render(notification.EventTypeAccountUnlocked, map[string]any{
		"name":  "",
		"email": "ada@example.com",
	})
	var tmplErr *notification.TemplateError
	require.True(t, errors.As(err, &tmplErr))
	assert.Equal(t, []string{"name"}, tmplErr.Missing)
}

func TestRendererUnknownEventType(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer()
	require.NoError(t, err)

	_, err = r.Render("password_changed", map[string]any{})
	require.ErrorIs(t, err, notification.ErrUnknownEventType)
}
