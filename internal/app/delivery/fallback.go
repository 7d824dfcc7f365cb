package delivery

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mailcourier/internal/domain/notification"
	"github.com/ahrav/mailcourier/internal/infra/dispatcher"
	"github.com/ahrav/mailcourier/pkg/common/logger"
)

// FallbackDeliverer attempts a single synchronous delivery when the normal
// pipeline cannot run: the broker is down at publish time, or a notice has
// exhausted its retries and been dead-lettered. It shares the idempotency
// guard with the worker pool, so a fallback send and a late broker
// redelivery can never both reach the recipient.
type FallbackDeliverer struct {
	dispatcher *dispatcher.Dispatcher
	guard      notification.IdempotencyGuard
	store      notification.DeliveryRecordStore

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics DeliveryMetrics
}

// NewFallbackDeliverer creates a fallback deliverer.
func NewFallbackDeliverer(
	disp *dispatcher.Dispatcher,
	guard notification.IdempotencyGuard,
	store notification.DeliveryRecordStore,
	log *logger.Logger,
	tracer trace.Tracer,
	metrics DeliveryMetrics,
) *FallbackDeliverer {
	return &FallbackDeliverer{
		dispatcher: disp,
		guard:      guard,
		store:      store,
		logger:     log,
		tracer:     tracer,
		metrics:    metrics,
	}
}

// Deliver makes exactly one synchronous delivery attempt for the notice.
// It never retries: the fallback path exists to degrade gracefully, not to
// replicate the pipeline's retry machinery. Returns ErrDuplicateSuppressed
// if the notice was already claimed by another path.
func (f *FallbackDeliverer) Deliver(ctx context.Context, n notification.Notice) error {
	ctx, span := f.tracer.Start(ctx, "fallback_deliverer.deliver",
		trace.WithAttributes(
			attribute.String("notice_id", n.ID.String()),
			attribute.String("event_type", string(n.Type)),
		))
	defer span.End()

	claimed, err := f.guard.TryClaim(ctx, n.ID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("claiming notice %s for fallback: %w", n.ID, err)
	}
	if !claimed {
		f.metrics.IncDuplicatesSuppressed(ctx, string(n.Type))
		f.logger.Info(ctx, "fallback suppressed, notice already claimed", "notice_id", n.ID)
		return fmt.Errorf("notice %s: %w", n.ID, notification.ErrDuplicateSuppressed)
	}

	rec, err := f.loadOrCreateRecord(ctx, n)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := f.store.Save(ctx, rec); err != nil {
		span.RecordError(err)
		return fmt.Errorf("recording fallback attempt for notice %s: %w", n.ID, err)
	}

	if sendErr := f.dispatcher.Dispatch(ctx, n); sendErr != nil {
		// Release the claim so a later broker redelivery can still try.
		if relErr := f.guard.Release(ctx, n.ID); relErr != nil {
			f.logger.Error(ctx, "releasing claim after failed fallback", "notice_id", n.ID, "error", relErr)
		}
		if err := rec.MarkFallbackFailed(sendErr); err != nil {
			f.logger.Error(ctx, "marking fallback failed", "notice_id", n.ID, "error", err)
		}
		if err := f.store.Save(ctx, rec); err != nil {
			f.logger.Error(ctx, "saving fallback failure", "notice_id", n.ID, "error", err)
		}
		f.metrics.IncFallbackFailed(ctx, string(n.Type))
		span.RecordError(sendErr)
		return fmt.Errorf("fallback delivery for notice %s: %w", n.ID, sendErr)
	}

	if err := rec.MarkFallbackDelivered(); err != nil {
		f.logger.Error(ctx, "marking fallback delivered", "notice_id", n.ID, "error", err)
	}
	if err := f.store.Save(ctx, rec); err != nil {
		f.logger.Error(ctx, "saving fallback delivery", "notice_id", n.ID, "error", err)
	}
	f.metrics.IncFallbackDelivered(ctx, string(n.Type))
	f.logger.Info(ctx, "fallback delivery succeeded", "notice_id", n.ID, "event_type", n.Type)
	return nil
}

// loadOrCreateRecord transitions an existing record into FallbackAttempt or
// creates a fresh one when the notice never made it into the pipeline.
func (f *FallbackDeliverer) loadOrCreateRecord(ctx context.Context, n notification.Notice) (*notification.DeliveryRecord, error) {
	rec, err := f.store.Get(ctx, n.ID)
	switch {
	case errors.Is(err, notification.ErrRecordNotFound):
		return notification.NewFallbackDeliveryRecord(n), nil
	case err != nil:
		return nil, fmt.Errorf("loading record for notice %s: %w", n.ID, err)
	}
	if err := rec.MarkFallbackAttempt(); err != nil {
		return nil, fmt.Errorf("notice %s: %w", n.ID, err)
	}
	return rec, nil
}
