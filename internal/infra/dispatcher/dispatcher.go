// Package dispatcher manages delivery handlers and routes notices to the
// handler registered for their event type. Each event type has exactly one
// handler; the registry is constructed once at process start and passed by
// reference into the worker pool, replacing any ambient global lookup.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mailcourier/internal/domain/events"
	"github.com/ahrav/mailcourier/internal/domain/notification"
	"github.com/ahrav/mailcourier/pkg/common/logger"
)

// Dispatcher routes notices to their registered delivery handler.
//
// Typical usage:
//
//	d := dispatcher.New(tracer, log)
//	d.Register(ctx, verificationHandler)
//	d.Register(ctx, lockedHandler)
//
//	err := d.Dispatch(ctx, notice)
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[events.EventType]notification.DeliveryHandler
	tracer   trace.Tracer
	logger   *logger.Logger
}

// New constructs a Dispatcher with an empty registry; handlers must be
// registered before dispatching any notices.
func New(tracer trace.Tracer, logger *logger.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[events.EventType]notification.DeliveryHandler),
		tracer:   tracer,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Register associates a handler with its event type. Registering a second
// handler for the same event type replaces the first.
//
// This method is safe to call concurrently.
func (d *Dispatcher) Register(ctx context.Context, handler notification.DeliveryHandler) {
	eventType := handler.EventType()
	_, span := d.tracer.Start(ctx, "dispatcher.register",
		trace.WithAttributes(attribute.String("event_type", string(eventType))),
	)
	defer span.End()

	d.mu.Lock()
	d.handlers[eventType] = handler
	d.mu.Unlock()

	d.logger.Debug(ctx, "handler registered", "event_type", eventType)
	span.AddEvent("handler_registered")
	span.SetStatus(codes.Ok, "handler registered")
}

// HandlerNotFoundError indicates no handler is registered for an event type.
type HandlerNotFoundError struct {
	EventType events.EventType
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("no delivery handler registered for event type: %s", e.EventType)
}

// Dispatch routes the notice to its handler and executes a single delivery
// attempt. If the handler returns an error, it is returned unchanged so the
// caller can act on its transient/permanent classification.
func (d *Dispatcher) Dispatch(ctx context.Context, n notification.Notice) error {
	ctx, span := d.tracer.Start(ctx, "dispatcher.dispatch",
		trace.WithAttributes(
			attribute.String("event_type", string(n.Type)),
			attribute.String("notice_id", n.ID.String()),
		))
	defer span.End()

	d.mu.RLock()
	handler, exists := d.handlers[n.Type]
	d.mu.RUnlock()
	if !exists {
		err := &HandlerNotFoundError{EventType: n.Type}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := handler.Deliver(ctx, n); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "notice dispatched successfully")
	d.logger.Debug(ctx, "notice dispatched successfully",
		"event_type", n.Type,
		"notice_id", n.ID,
	)
	return nil
}

// Registered returns the event types with a registered handler.
func (d *Dispatcher) Registered() []events.EventType {
	d.mu.RLock()
	defer d.mu.RUnlock()

	types := make([]events.EventType, 0, len(d.handlers))
	for et := range d.handlers {
		types = append(types, et)
	}
	return types
}
