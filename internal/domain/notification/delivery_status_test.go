package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeliveryStatus_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   DeliveryStatus
		expected string
	}{
		{
			name:     "published status",
			status:   StatusPublished,
			expected: "PUBLISHED",
		},
		{
			name:     "processing status",
			status:   StatusProcessing,
			expected: "PROCESSING",
		},
		{
			name:     "delivered status",
			status:   StatusDelivered,
			expected: "DELIVERED",
		},
		{
			name:     "retrying status",
			status:   StatusRetrying,
			expected: "RETRYING",
		},
		{
			name:     "dead lettered status",
			status:   StatusDeadLettered,
			expected: "DEAD_LETTERED",
		},
		{
			name:     "fallback attempt status",
			status:   StatusFallbackAttempt,
			expected: "FALLBACK_ATTEMPT",
		},
		{
			name:     "fallback delivered status",
			status:   StatusFallbackDelivered,
			expected: "FALLBACK_DELIVERED",
		},
		{
			name:     "fallback failed status",
			status:   StatusFallbackFailed,
			expected: "FALLBACK_FAILED",
		},
		{
			name:     "unspecified status",
			status:   StatusUnspecified,
			expected: "UNSPECIFIED",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.status.String())
			assert.Equal(t, tt.status, ParseDeliveryStatus(tt.expected))
		})
	}
}

func TestDeliveryStatus_ValidateTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    DeliveryStatus
		to      DeliveryStatus
		wantErr bool
	}{
		{name: "published to processing", from: StatusPublished, to: StatusProcessing, wantErr: false},
		{name: "published to delivered skips processing", from: StatusPublished, to: StatusDelivered, wantErr: true},
		{name: "processing to delivered", from: StatusProcessing, to: StatusDelivered, wantErr: false},
		{name: "processing to retrying", from: StatusProcessing, to: StatusRetrying, wantErr: false},
		{name: "processing to dead lettered", from: StatusProcessing, to: StatusDeadLettered, wantErr: false},
		{name: "processing to fallback attempt", from: StatusProcessing, to: StatusFallbackAttempt, wantErr: true},
		{name: "retrying back to processing", from: StatusRetrying, to: StatusProcessing, wantErr: false},
		{name: "retrying to delivered directly", from: StatusRetrying, to: StatusDelivered, wantErr: true},
		{name: "dead lettered to fallback attempt", from: StatusDeadLettered, to: StatusFallbackAttempt, wantErr: false},
		{name: "dead lettered back to processing", from: StatusDeadLettered, to: StatusProcessing, wantErr: true},
		{name: "fallback attempt to fallback delivered", from: StatusFallbackAttempt, to: StatusFallbackDelivered, wantErr: false},
		{name: "fallback attempt to fallback failed", from: StatusFallbackAttempt, to: StatusFallbackFailed, wantErr: false},
		{name: "delivered is terminal", from: StatusDelivered, to: StatusProcessing, wantErr: true},
		{name: "fallback delivered is terminal", from: StatusFallbackDelivered, to: StatusFallbackAttempt, wantErr: true},
		{name: "fallback failed is terminal", from: StatusFallbackFailed, to: StatusFallbackAttempt, wantErr: true},
		{name: "unspecified cannot transition", from: StatusUnspecified, to: StatusProcessing, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.from.validateTransition(tt.to)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDeliveryStatus_IsTerminal(t *testing.T) {
	t.Parallel()

	terminal := []DeliveryStatus{StatusDelivered, StatusFallbackDelivered, StatusFallbackFailed}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "expected %s to be terminal", s)
	}

	nonTerminal := []DeliveryStatus{
		StatusPublished, StatusProcessing, StatusRetrying,
		StatusDeadLettered, StatusFallbackAttempt, StatusUnspecified,
	}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), "expected %s to not be terminal", s)
	}
}
