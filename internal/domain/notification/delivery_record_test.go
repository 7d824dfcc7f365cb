package notification

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNotice() Notice {
	return NewNotice(EventTypeRoleUpgrade, Recipient{
		Email: "alice@example.com",
		Name:  "Alice",
	}, map[string]any{"new_role": "Professional"})
}

func TestDeliveryRecord_HappyPath(t *testing.T) {
	t.Parallel()

	rec := NewDeliveryRecord(testNotice())
	assert.Equal(t, StatusPublished, rec.Status)
	assert.Zero(t, rec.Attempts)

	require.NoError(t, rec.MarkProcessing())
	assert.Equal(t, 1, rec.Attempts)

	require.NoError(t, rec.MarkDelivered())
	assert.Equal(t, StatusDelivered, rec.Status)
	assert.Empty(t, rec.LastError)

	// Terminal: nothing may follow.
	assert.Error(t, rec.MarkProcessing())
}

func TestDeliveryRecord_RetryLoop(t *testing.T) {
	t.Parallel()

	rec := NewDeliveryRecord(testNotice())
	require.NoError(t, rec.MarkProcessing())

	next := time.Now().Add(time.Second)
	require.NoError(t, rec.MarkRetrying(errors.New("smtp timeout"), next))
	assert.Equal(t, StatusRetrying, rec.Status)
	assert.Equal(t, "smtp timeout", rec.LastError)
	assert.Equal(t, next, rec.NextRetryAt)

	require.NoError(t, rec.MarkProcessing())
	assert.Equal(t, 2, rec.Attempts)

	require.NoError(t, rec.MarkDelivered())
	assert.True(t, rec.NextRetryAt.IsZero())
}

func TestDeliveryRecord_DeadLetterThenFallback(t *testing.T) {
	t.Parallel()

	rec := NewDeliveryRecord(testNotice())
	require.NoError(t, rec.MarkProcessing())
	require.NoError(t, rec.MarkDeadLettered(errors.New("retry budget exhausted")))
	require.NoError(t, rec.MarkFallbackAttempt())
	require.NoError(t, rec.MarkFallbackFailed(errors.New("transport down")))

	assert.Equal(t, StatusFallbackFailed, rec.Status)
	assert.Equal(t, "transport down", rec.LastError)
	assert.Error(t, rec.MarkFallbackDelivered())
}

func TestNewFallbackDeliveryRecord(t *testing.T) {
	t.Parallel()

	rec := NewFallbackDeliveryRecord(testNotice())
	assert.Equal(t, StatusFallbackAttempt, rec.Status)
	require.NoError(t, rec.MarkFallbackDelivered())
	assert.Equal(t, StatusFallbackDelivered, rec.Status)
}
