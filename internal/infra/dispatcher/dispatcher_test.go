package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/mailcourier/internal/domain/events"
	"github.com/ahrav/mailcourier/internal/domain/notification"
	"github.com/ahrav/mailcourier/pkg/common/logger"
)

// stubHandler is a test implementation of notification.DeliveryHandler.
type stubHandler struct {
	eventType events.EventType
	deliver   func(ctx context.Context, n notification.Notice) error
	calls     int
}

func (h *stubHandler) EventType() events.EventType { return h.eventType }

func (h *stubHandler) Deliver(ctx context.Context, n notification.Notice) error {
	h.calls++
	if h.deliver != nil {
		return h.deliver(ctx, n)
	}
	return nil
}

func newTestDispatcher() *Dispatcher {
	return New(noop.NewTracerProvider().Tracer(""), logger.Noop())
}

func TestDispatch_RoutesToRegisteredHandler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDispatcher()

	locked := &stubHandler{eventType: notification.EventTypeAccountLocked}
	upgrade := &stubHandler{eventType: notification.EventTypeRoleUpgrade}
	d.Register(ctx, locked)
	d.Register(ctx, upgrade)

	n := notification.NewNotice(notification.EventTypeRoleUpgrade,
		notification.Recipient{Email: "alice@example.com"}, nil)
	require.NoError(t, d.Dispatch(ctx, n))

	assert.Equal(t, 1, upgrade.calls)
	assert.Zero(t, locked.calls)
}

func TestDispatch_HandlerNotFound(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()

	n := notification.NewNotice(notification.EventTypeAccountUnlocked,
		notification.Recipient{Email: "alice@example.com"}, nil)
	err := d.Dispatch(context.Background(), n)

	var notFound *HandlerNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, notification.EventTypeAccountUnlocked, notFound.EventType)
}

func TestDispatch_PropagatesHandlerError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDispatcher()

	cause := notification.PermanentDelivery(errors.New("template missing"))
	h := &stubHandler{
		eventType: notification.EventTypeAccountVerification,
		deliver: func(ctx context.Context, n notification.Notice) error {
			return cause
		},
	}
	d.Register(ctx, h)

	n := notification.NewNotice(notification.EventTypeAccountVerification,
		notification.Recipient{Email: "alice@example.com"}, nil)
	err := d.Dispatch(ctx, n)

	require.Error(t, err)
	assert.True(t, notification.IsPermanentDelivery(err), "classification must survive dispatch")
}

func TestRegister_ReplacesHandler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := newTestDispatcher()

	first := &stubHandler{eventType: notification.EventTypeAccountLocked}
	second := &stubHandler{eventType: notification.EventTypeAccountLocked}
	d.Register(ctx, first)
	d.Register(ctx, second)

	n := notification.NewNotice(notification.EventTypeAccountLocked,
		notification.Recipient{Email: "alice@example.com"}, nil)
	require.NoError(t, d.Dispatch(ctx, n))

	assert.Zero(t, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Len(t, d.Registered(), 1)
}
