package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/mailcourier/internal/domain/events"
	"github.com/ahrav/mailcourier/internal/domain/notification"
)

func TestBroker_PublishDeliversToSubscribers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewBroker()

	var got []events.EventEnvelope
	err := b.Subscribe(ctx, []events.EventType{notification.EventTypeRoleUpgrade},
		func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
			got = append(got, evt)
			ack(nil)
			return nil
		})
	require.NoError(t, err)

	evt := events.EventEnvelope{Type: notification.EventTypeRoleUpgrade, Payload: "p"}
	require.NoError(t, b.Publish(ctx, evt, events.WithKey("k1")))
	require.NoError(t, b.Publish(ctx, evt, events.WithKey("k2")))

	require.Len(t, got, 2)
	assert.Equal(t, "k1", got[0].Key)
	assert.Equal(t, int64(0), got[0].Metadata.Offset)
	assert.Equal(t, int64(1), got[1].Metadata.Offset, "offsets increase per topic")
	assert.Equal(t, int64(2), b.Acks())
}

func TestBroker_NoDeliveryForOtherTypes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewBroker()

	calls := 0
	require.NoError(t, b.Subscribe(ctx, []events.EventType{notification.EventTypeAccountLocked},
		func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
			calls++
			return nil
		}))

	require.NoError(t, b.Publish(ctx, events.EventEnvelope{Type: notification.EventTypeRoleUpgrade}))
	assert.Zero(t, calls)
}

func TestBroker_SimulatedPublishFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewBroker()

	b.SetPublishFailure(true)
	err := b.Publish(ctx, events.EventEnvelope{Type: notification.EventTypeRoleUpgrade})
	assert.ErrorIs(t, err, notification.ErrBrokerUnavailable)

	b.SetPublishFailure(false)
	assert.NoError(t, b.Publish(ctx, events.EventEnvelope{Type: notification.EventTypeRoleUpgrade}))
}

func TestBroker_Redeliver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewBroker()

	var got []events.EventEnvelope
	require.NoError(t, b.Subscribe(ctx, []events.EventType{notification.EventTypeAccountUnlocked},
		func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
			got = append(got, evt)
			ack(nil)
			return nil
		}))

	evt := events.EventEnvelope{Type: notification.EventTypeAccountUnlocked}
	require.NoError(t, b.Publish(ctx, evt))
	require.Len(t, got, 1)

	require.NoError(t, b.Redeliver(ctx, got[0]))
	require.Len(t, got, 2)
	assert.Equal(t, got[0].Metadata.Offset, got[1].Metadata.Offset, "redelivery replays the same offset")
}

func TestBroker_Close(t *testing.T) {
	t.Parallel()
	b := NewBroker()
	require.NoError(t, b.Close())
	assert.Error(t, b.Publish(context.Background(), events.EventEnvelope{Type: notification.EventTypeRoleUpgrade}))
}
