// Package memory provides an in-memory implementation of the event bus.
// It offers a lightweight, non-persistent broker suitable for testing and
// development environments where durability is not required. It can simulate
// broker unavailability and redelivery, which the dispatch pipeline's tests
// rely on.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ahrav/mailcourier/internal/domain/events"
	"github.com/ahrav/mailcourier/internal/domain/notification"
)

var _ events.EventBus = (*Broker)(nil)

// Broker provides an in-memory implementation of the events.EventBus
// interface. Publishing delivers synchronously to subscribed handlers in
// registration order, preserving per-type ordering the way a single
// partition would.
type Broker struct {
	mu       sync.RWMutex
	handlers map[events.EventType][]events.HandlerFunc
	offsets  map[events.EventType]int64

	failPublishes atomic.Bool
	acks          atomic.Int64
	nacks         atomic.Int64
	closed        atomic.Bool
}

// NewBroker creates and initializes a new in-memory event bus.
func NewBroker() *Broker {
	return &Broker{
		handlers: make(map[events.EventType][]events.HandlerFunc),
		offsets:  make(map[events.EventType]int64),
	}
}

// SetPublishFailure toggles simulated broker unavailability. While enabled,
// Publish fails with ErrBrokerUnavailable without delivering anything.
func (b *Broker) SetPublishFailure(fail bool) { b.failPublishes.Store(fail) }

// Acks returns how many deliveries were acknowledged successfully.
func (b *Broker) Acks() int64 { return b.acks.Load() }

// Nacks returns how many deliveries were acknowledged with an error.
func (b *Broker) Nacks() int64 { return b.nacks.Load() }

// Publish delivers the event synchronously to every handler subscribed to
// its type, stopping at the first handler error.
func (b *Broker) Publish(ctx context.Context, event events.EventEnvelope, opts ...events.PublishOption) error {
	if b.closed.Load() {
		return errors.New("broker is closed")
	}
	if b.failPublishes.Load() {
		return fmt.Errorf("%w: in-memory broker publish failure enabled", notification.ErrBrokerUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var pParams events.PublishParams
	for _, opt := range opts {
		opt(&pParams)
	}
	if pParams.Key != "" {
		event.Key = pParams.Key
	}

	b.mu.Lock()
	offset := b.offsets[event.Type]
	b.offsets[event.Type] = offset + 1
	b.mu.Unlock()

	event.Metadata = events.EventMetadata{Partition: 0, Offset: offset}

	return b.deliver(ctx, event)
}

// Redeliver re-invokes the subscribed handlers with the same envelope,
// simulating the at-least-once redelivery a real broker performs after an
// uncommitted offset. Intended for tests.
func (b *Broker) Redeliver(ctx context.Context, event events.EventEnvelope) error {
	return b.deliver(ctx, event)
}

func (b *Broker) deliver(ctx context.Context, event events.EventEnvelope) error {
	b.mu.RLock()
	// Copy handlers to avoid holding the lock while executing them.
	handlers := make([]events.HandlerFunc, len(b.handlers[event.Type]))
	copy(handlers, b.handlers[event.Type])
	b.mu.RUnlock()

	ack := func(err error) {
		if err != nil {
			b.nacks.Add(1)
			return
		}
		b.acks.Add(1)
	}

	for _, handler := range handlers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := handler(ctx, event, ack); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a handler for each of the given event types. Multiple
// handlers can be registered and will all receive published events.
func (b *Broker) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, et := range eventTypes {
		b.handlers[et] = append(b.handlers[et], handler)
	}
	return nil
}

// Close marks the broker closed; subsequent publishes fail.
func (b *Broker) Close() error {
	b.closed.Store(true)
	return nil
}
