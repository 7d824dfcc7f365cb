package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/ahrav/mailcourier/internal/domain/events"
	"github.com/ahrav/mailcourier/internal/domain/notification"
	"github.com/ahrav/mailcourier/internal/infra/dispatcher"
	"github.com/ahrav/mailcourier/pkg/common/logger"
)

// WorkerPool consumes notices from the event bus and drives each one through
// the delivery state machine: claim, deliver, and on failure either schedule
// a bounded retry or dead-letter with a final fallback attempt. Offsets are
// acknowledged only once a notice reaches a terminal state, so a crash
// mid-flight results in broker redelivery, which the idempotency guard
// absorbs.
type WorkerPool struct {
	bus        events.EventBus
	dispatcher *dispatcher.Dispatcher
	guard      notification.IdempotencyGuard
	store      notification.DeliveryRecordStore
	deadSink   notification.DeadLetterSink
	fallback   *FallbackDeliverer
	policy     RetryPolicy

	// sem bounds the number of notices in flight across all partitions.
	sem *semaphore.Weighted

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics DeliveryMetrics
}

// WorkerPoolOption configures optional worker pool behavior.
type WorkerPoolOption func(*WorkerPool)

// WithRetryPolicy overrides the default retry schedule.
func WithRetryPolicy(p RetryPolicy) WorkerPoolOption {
	return func(wp *WorkerPool) { wp.policy = p }
}

// NewWorkerPool creates a worker pool with the given concurrency bound.
func NewWorkerPool(
	bus events.EventBus,
	disp *dispatcher.Dispatcher,
	guard notification.IdempotencyGuard,
	store notification.DeliveryRecordStore,
	deadSink notification.DeadLetterSink,
	fallback *FallbackDeliverer,
	maxConcurrency int,
	log *logger.Logger,
	tracer trace.Tracer,
	metrics DeliveryMetrics,
	opts ...WorkerPoolOption,
) *WorkerPool {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	wp := &WorkerPool{
		bus:        bus,
		dispatcher: disp,
		guard:      guard,
		store:      store,
		deadSink:   deadSink,
		fallback:   fallback,
		policy:     DefaultRetryPolicy(),
		sem:        semaphore.NewWeighted(int64(maxConcurrency)),
		logger:     log.With("component", "worker_pool"),
		tracer:     tracer,
		metrics:    metrics,
	}
	for _, opt := range opts {
		opt(wp)
	}
	return wp
}

// Start subscribes the pool to every known event type and blocks until the
// context is canceled or the bus fails.
func (wp *WorkerPool) Start(ctx context.Context) error {
	types := notification.KnownEventTypes()
	wp.logger.Info(ctx, "Starting worker pool", "event_types", len(types))
	return wp.bus.Subscribe(ctx, types, wp.handleEvent)
}

// handleEvent processes one envelope. Returning an error without invoking
// ack leaves the offset uncommitted so the broker redelivers the message.
func (wp *WorkerPool) handleEvent(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
	if err := wp.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer wp.sem.Release(1)

	n, ok := evt.Payload.(*notification.Notice)
	if !ok {
		err := fmt.Errorf("%w: unexpected payload type %T", notification.ErrInvalidEvent, evt.Payload)
		wp.sinkInvalid(ctx, evt, err)
		ack(nil)
		return nil
	}
	if err := n.Validate(); err != nil {
		wp.sinkInvalid(ctx, evt, err)
		ack(nil)
		return nil
	}

	return wp.process(ctx, *n, ack)
}

// process runs the notice through claim/deliver/retry until it reaches a
// terminal state. Retries block the partition for the backoff duration; the
// schedule is short and capped, and per-notice partition affinity means only
// notices behind the failing one wait.
func (wp *WorkerPool) process(ctx context.Context, n notification.Notice, ack events.AckFunc) error {
	ctx, span := wp.tracer.Start(ctx, "worker_pool.process_notice",
		trace.WithAttributes(
			attribute.String("notice_id", n.ID.String()),
			attribute.String("event_type", string(n.Type)),
		))
	defer span.End()

	rec, err := wp.loadOrCreateRecord(ctx, n)
	if err != nil {
		span.RecordError(err)
		return err
	}

	for {
		claimed, err := wp.guard.TryClaim(ctx, n.ID)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("claiming notice %s: %w", n.ID, err)
		}
		if !claimed {
			wp.metrics.IncDuplicatesSuppressed(ctx, string(n.Type))
			wp.logger.Info(ctx, "Duplicate notice suppressed", "notice_id", n.ID, "event_type", n.Type)
			ack(nil)
			return nil
		}

		if err := rec.MarkProcessing(); err != nil {
			span.RecordError(err)
			return fmt.Errorf("notice %s: %w", n.ID, err)
		}
		if err := wp.store.Save(ctx, rec); err != nil {
			span.RecordError(err)
			return fmt.Errorf("saving record for notice %s: %w", n.ID, err)
		}

		sendErr := wp.dispatcher.Dispatch(ctx, n)
		if sendErr == nil {
			if err := rec.MarkDelivered(); err != nil {
				wp.logger.Error(ctx, "Marking delivered", "notice_id", n.ID, "error", err)
			}
			if err := wp.store.Save(ctx, rec); err != nil {
				wp.logger.Error(ctx, "Saving delivered record", "notice_id", n.ID, "error", err)
			}
			wp.metrics.IncDelivered(ctx, string(n.Type))
			wp.logger.Info(ctx, "Notice delivered",
				"notice_id", n.ID, "event_type", n.Type, "attempts", rec.Attempts)
			ack(nil)
			return nil
		}
		span.RecordError(sendErr)

		// The claim must not outlive a failed send, otherwise the retry
		// (or a redelivery after a crash) could never proceed.
		if err := wp.guard.Release(ctx, n.ID); err != nil {
			wp.logger.Error(ctx, "Releasing claim after failed send", "notice_id", n.ID, "error", err)
		}

		var notFound *dispatcher.HandlerNotFoundError
		unroutable := errors.As(sendErr, &notFound)

		if unroutable || notification.IsPermanentDelivery(sendErr) || wp.policy.Exhausted(rec.Attempts) {
			wp.deadLetter(ctx, n, rec, sendErr)
			// A notice no handler can route would fail the fallback path
			// identically, so it goes straight to the dead-letter queue.
			if !unroutable {
				if fbErr := wp.fallback.Deliver(ctx, n); fbErr != nil {
					wp.logger.Error(ctx, "Fallback delivery failed",
						"notice_id", n.ID, "event_type", n.Type, "error", fbErr)
				}
			}
			ack(nil)
			return nil
		}

		delay := wp.policy.Delay(rec.Attempts)
		if err := rec.MarkRetrying(sendErr, time.Now().UTC().Add(delay)); err != nil {
			wp.logger.Error(ctx, "Marking retrying", "notice_id", n.ID, "error", err)
		}
		if err := wp.store.Save(ctx, rec); err != nil {
			wp.logger.Error(ctx, "Saving retry record", "notice_id", n.ID, "error", err)
		}
		wp.metrics.IncRetriesScheduled(ctx, string(n.Type))
		wp.logger.Warn(ctx, "Delivery failed, retry scheduled",
			"notice_id", n.ID,
			"event_type", n.Type,
			"attempt", rec.Attempts,
			"delay", delay.String(),
			"error", sendErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			// No ack: the broker redelivers and the retry resumes from the
			// persisted attempt count.
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (wp *WorkerPool) loadOrCreateRecord(ctx context.Context, n notification.Notice) (*notification.DeliveryRecord, error) {
	rec, err := wp.store.Get(ctx, n.ID)
	switch {
	case errors.Is(err, notification.ErrRecordNotFound):
		return notification.NewDeliveryRecord(n), nil
	case err != nil:
		return nil, fmt.Errorf("loading record for notice %s: %w", n.ID, err)
	}
	return rec, nil
}

// deadLetter records the terminal failure and hands the notice to the sink.
func (wp *WorkerPool) deadLetter(ctx context.Context, n notification.Notice, rec *notification.DeliveryRecord, cause error) {
	if err := rec.MarkDeadLettered(cause); err != nil {
		wp.logger.Error(ctx, "Marking dead-lettered", "notice_id", n.ID, "error", err)
	}
	if err := wp.store.Save(ctx, rec); err != nil {
		wp.logger.Error(ctx, "Saving dead-lettered record", "notice_id", n.ID, "error", err)
	}

	raw, err := json.Marshal(n)
	if err != nil {
		wp.logger.Error(ctx, "Marshaling dead-lettered notice", "notice_id", n.ID, "error", err)
	}
	dl := notification.DeadLetter{
		NoticeID:  n.ID,
		EventType: n.Type,
		Reason:    cause.Error(),
		Raw:       raw,
		At:        time.Now().UTC(),
	}
	if err := wp.deadSink.Sink(ctx, dl); err != nil {
		wp.logger.Error(ctx, "Sinking dead letter", "notice_id", n.ID, "error", err)
	}
	wp.metrics.IncDeadLettered(ctx, string(n.Type))
	wp.logger.Error(ctx, "Notice dead-lettered",
		"notice_id", n.ID, "event_type", n.Type, "attempts", rec.Attempts, "error", cause)
}

// sinkInvalid routes an envelope that cannot become a valid notice straight
// to the dead-letter sink.
func (wp *WorkerPool) sinkInvalid(ctx context.Context, evt events.EventEnvelope, cause error) {
	raw, err := json.Marshal(evt.Payload)
	if err != nil {
		wp.logger.Error(ctx, "Marshaling invalid payload", "event_type", evt.Type, "error", err)
	}
	dl := notification.DeadLetter{
		EventType: evt.Type,
		Reason:    cause.Error(),
		Raw:       raw,
		At:        time.Now().UTC(),
	}
	if n, ok := evt.Payload.(*notification.Notice); ok {
		dl.NoticeID = n.ID
	}
	if err := wp.deadSink.Sink(ctx, dl); err != nil {
		wp.logger.Error(ctx, "Sinking invalid message", "event_type", evt.Type, "error", err)
	}
	wp.metrics.IncDeadLettered(ctx, string(evt.Type))
	wp.logger.Error(ctx, "Invalid notice dead-lettered", "event_type", evt.Type, "error", cause)
}
