package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/mailcourier/internal/domain/events"
)

func TestNotice_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		eventType events.EventType
		recipient Recipient
		wantErr   error
	}{
		{
			name:      "valid role upgrade",
			eventType: EventTypeRoleUpgrade,
			recipient: Recipient{Email: "alice@example.com", Name: "Alice"},
		},
		{
			name:      "unknown event type",
			eventType: events.EventType("password_reset"),
			recipient: Recipient{Email: "alice@example.com"},
			wantErr:   ErrUnknownEventType,
		},
		{
			name:      "empty recipient email",
			eventType: EventTypeAccountLocked,
			recipient: Recipient{Name: "Alice"},
			wantErr:   ErrInvalidEvent,
		},
		{
			name:      "malformed recipient email",
			eventType: EventTypeAccountLocked,
			recipient: Recipient{Email: "not-an-email"},
			wantErr:   ErrInvalidEvent,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n := NewNotice(tt.eventType, tt.recipient, nil)
			err := n.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewNotice_AssignsIdentity(t *testing.T) {
	t.Parallel()

	a := NewNotice(EventTypeAccountVerification, Recipient{Email: "a@example.com"}, nil)
	b := NewNotice(EventTypeAccountVerification, Recipient{Email: "a@example.com"}, nil)

	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.CreatedAt.IsZero())
	assert.Zero(t, a.Attempt)
}

func TestTopic(t *testing.T) {
	t.Parallel()

	for _, et := range KnownEventTypes() {
		topic, err := Topic(et)
		require.NoError(t, err)
		// One topic per event type, named identically to the event type.
		assert.Equal(t, string(et), topic)
	}

	_, err := Topic(events.EventType("mystery"))
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestRecipient_DisplayName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Alice", Recipient{Email: "a@example.com", Name: "Alice"}.DisplayName())
	assert.Equal(t, "User", Recipient{Email: "a@example.com"}.DisplayName())
}
