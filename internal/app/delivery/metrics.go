package delivery

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/mailcourier/internal/infra/eventbus/kafka"
)

// DeliveryMetrics defines metrics operations needed by the delivery pipeline.
type DeliveryMetrics interface {
	// EventBus metrics.
	kafka.EventBusMetrics

	// Delivery outcome metrics.
	IncDelivered(ctx context.Context, eventType string)
	IncRetriesScheduled(ctx context.Context, eventType string)
	IncDeadLettered(ctx context.Context, eventType string)
	IncDuplicatesSuppressed(ctx context.Context, eventType string)

	// Fallback path metrics.
	IncFallbackDelivered(ctx context.Context, eventType string)
	IncFallbackFailed(ctx context.Context, eventType string)

	// Publisher metrics.
	IncNoticesPublished(ctx context.Context, eventType string)
	IncPublishFallbacks(ctx context.Context, eventType string)
}

type deliveryMetrics struct {
	// Broker metrics.
	messagesPublished metric.Int64Counter
	messagesConsumed  metric.Int64Counter
	publishErrors     metric.Int64Counter
	consumeErrors     metric.Int64Counter

	// Delivery outcome metrics.
	delivered            metric.Int64Counter
	retriesScheduled     metric.Int64Counter
	deadLettered         metric.Int64Counter
	duplicatesSuppressed metric.Int64Counter

	// Fallback path metrics.
	fallbackDelivered metric.Int64Counter
	fallbackFailed    metric.Int64Counter

	// Publisher metrics.
	noticesPublished metric.Int64Counter
	publishFallbacks metric.Int64Counter
}

const namespace = "notifier"

// NewDeliveryMetrics creates a new delivery metrics instance.
func NewDeliveryMetrics(mp metric.MeterProvider) (*deliveryMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(deliveryMetrics)
	var err error

	if m.messagesPublished, err = meter.Int64Counter(
		"messages_published_total",
		metric.WithDescription("Total number of messages published"),
	); err != nil {
		return nil, err
	}

	if m.messagesConsumed, err = meter.Int64Counter(
		"messages_consumed_total",
		metric.WithDescription("Total number of messages consumed"),
	); err != nil {
		return nil, err
	}

	if m.publishErrors, err = meter.Int64Counter(
		"publish_errors_total",
		metric.WithDescription("Total number of publish errors"),
	); err != nil {
		return nil, err
	}

	if m.consumeErrors, err = meter.Int64Counter(
		"consume_errors_total",
		metric.WithDescription("Total number of consume errors"),
	); err != nil {
		return nil, err
	}

	if m.delivered, err = meter.Int64Counter(
		"notices_delivered_total",
		metric.WithDescription("Total number of notices delivered successfully"),
	); err != nil {
		return nil, err
	}

	if m.retriesScheduled, err = meter.Int64Counter(
		"retries_scheduled_total",
		metric.WithDescription("Total number of retries scheduled after transient failures"),
	); err != nil {
		return nil, err
	}

	if m.deadLettered, err = meter.Int64Counter(
		"notices_dead_lettered_total",
		metric.WithDescription("Total number of notices dead-lettered"),
	); err != nil {
		return nil, err
	}

	if m.duplicatesSuppressed, err = meter.Int64Counter(
		"duplicates_suppressed_total",
		metric.WithDescription("Total number of redelivered notices suppressed by the idempotency guard"),
	); err != nil {
		return nil, err
	}

	if m.fallbackDelivered, err = meter.Int64Counter(
		"fallback_delivered_total",
		metric.WithDescription("Total number of notices delivered via the synchronous fallback path"),
	); err != nil {
		return nil, err
	}

	if m.fallbackFailed, err = meter.Int64Counter(
		"fallback_failed_total",
		metric.WithDescription("Total number of fallback delivery attempts that failed"),
	); err != nil {
		return nil, err
	}

	if m.noticesPublished, err = meter.Int64Counter(
		"notices_published_total",
		metric.WithDescription("Total number of notices accepted by the publisher"),
	); err != nil {
		return nil, err
	}

	if m.publishFallbacks, err = meter.Int64Counter(
		"publish_fallbacks_total",
		metric.WithDescription("Total number of publishes diverted to the fallback path by broker outages"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *deliveryMetrics) IncMessagePublished(ctx context.Context, topic string) {
	m.messagesPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}
func (m *deliveryMetrics) IncMessageConsumed(ctx context.Context, topic string) {
	m.messagesConsumed.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}
func (m *deliveryMetrics) IncPublishError(ctx context.Context, topic string) {
	m.publishErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}
func (m *deliveryMetrics) IncConsumeError(ctx context.Context, topic string) {
	m.consumeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}
func (m *deliveryMetrics) IncDelivered(ctx context.Context, eventType string) {
	m.delivered.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}
func (m *deliveryMetrics) IncRetriesScheduled(ctx context.Context, eventType string) {
	m.retriesScheduled.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}
func (m *deliveryMetrics) IncDeadLettered(ctx context.Context, eventType string) {
	m.deadLettered.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}
func (m *deliveryMetrics) IncDuplicatesSuppressed(ctx context.Context, eventType string) {
	m.duplicatesSuppressed.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}
func (m *deliveryMetrics) IncFallbackDelivered(ctx context.Context, eventType string) {
	m.fallbackDelivered.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}
func (m *deliveryMetrics) IncFallbackFailed(ctx context.Context, eventType string) {
	m.fallbackFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}
func (m *deliveryMetrics) IncNoticesPublished(ctx context.Context, eventType string) {
	m.noticesPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}
func (m *deliveryMetrics) IncPublishFallbacks(ctx context.Context, eventType string) {
	m.publishFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}
