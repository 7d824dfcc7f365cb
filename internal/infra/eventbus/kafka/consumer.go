package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mailcourier/internal/domain/events"
	"github.com/ahrav/mailcourier/internal/domain/notification"
	"github.com/ahrav/mailcourier/internal/infra/eventbus/serialization"
	"github.com/ahrav/mailcourier/pkg/common/logger"
)

// noticeConsumerHandler implements sarama.ConsumerGroupHandler to process
// Kafka messages and convert them into notification events for the worker
// pool. Partition affinity gives each partition exactly one consumer, so no
// two workers see the same notice concurrently.
type noticeConsumerHandler struct {
	bus         *EventBus
	userHandler events.HandlerFunc

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics EventBusMetrics
}

func (h *noticeConsumerHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info(context.Background(),
		"Consumer group session setup",
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

func (h *noticeConsumerHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info(context.Background(),
		"Consumer group session cleanup",
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

// ConsumeClaim processes messages from an assigned partition, deserializing
// them into notification events and invoking the user-provided handler.
// Messages that cannot be deserialized go straight to the dead-letter sink
// and are marked; they can never succeed, so retrying would wedge the
// partition.
func (h *noticeConsumerHandler) ConsumeClaim(
	sess sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	h.logger.Info(sess.Context(), "Starting to consume from partition",
		"partition", claim.Partition(),
		"member_id", sess.MemberID(),
	)
	consumeLogger := h.logger.With("operation", "consume_claim", "partition", claim.Partition())

	// Track the latest processed offset for periodic commits.
	lastCommit := time.Now()
	const commitInterval = 1 * time.Second

	for msg := range claim.Messages() {
		func() {
			msgCtx := extractTraceContext(sess.Context(), msg)
			msgCtx, span := startConsumerSpan(msgCtx, msg, h.tracer)
			defer span.End()

			evtType, payloadBytes, err := serialization.UnmarshalUniversalEnvelope(msg.Value)
			if err != nil {
				h.sinkMalformed(msgCtx, msg, err)
				sess.MarkMessage(msg, "")
				span.RecordError(err)
				return
			}

			payloadObj, err := serialization.DeserializePayload(evtType, payloadBytes)
			if err != nil {
				h.sinkMalformed(msgCtx, msg, err)
				sess.MarkMessage(msg, "")
				span.RecordError(err)
				return
			}

			evt := events.EventEnvelope{
				Type:      evtType,
				Key:       string(msg.Key),
				Timestamp: time.Now(),
				Payload:   payloadObj,
				Metadata: events.EventMetadata{
					Partition: claim.Partition(),
					Offset:    msg.Offset,
				},
			}

			consumeLogger.Debug(msgCtx, "Received Kafka message",
				"topic", msg.Topic,
				"partition", claim.Partition(),
				"offset", msg.Offset,
				"event_type", evtType,
				"key", evt.Key,
			)

			ack := func(err error) {
				ackCtx, ackSpan := h.tracer.Start(msgCtx, "kafka_consumer.acknowledge",
					trace.WithLinks(trace.LinkFromContext(msgCtx)),
				)
				defer ackSpan.End()

				if err != nil {
					consumeLogger.Error(ackCtx, "Failed to acknowledge message", "error", err)
					h.metrics.IncConsumeError(ackCtx, msg.Topic)
					ackSpan.RecordError(err)
					ackSpan.SetStatus(codes.Error, "failed to acknowledge message")
					return
				}
				h.metrics.IncMessageConsumed(ackCtx, msg.Topic)

				sess.MarkMessage(msg, "")

				// Commit offsets periodically rather than per message.
				if time.Since(lastCommit) > commitInterval {
					sess.Commit()
					lastCommit = time.Now()
					consumeLogger.Debug(ackCtx, "Committed offsets",
						"topic", msg.Topic,
						"partition", msg.Partition,
						"offset", msg.Offset,
					)
				}
			}

			if err := h.userHandler(msgCtx, evt, ack); err != nil {
				consumeLogger.Error(msgCtx, "Failed to handle message", "error", err)
				span.RecordError(err)
				return
			}

			consumeLogger.Debug(msgCtx, "Successfully processed message", "topic", msg.Topic)
		}()
	}

	// Final commit before exiting.
	sess.Commit()

	return nil
}

func (h *noticeConsumerHandler) sinkMalformed(ctx context.Context, msg *sarama.ConsumerMessage, cause error) {
	h.metrics.IncConsumeError(ctx, msg.Topic)
	dl := notification.DeadLetter{
		EventType: events.EventType(msg.Topic),
		Reason:    cause.Error(),
		Raw:       msg.Value,
		At:        time.Now().UTC(),
	}
	if err := h.bus.deadLetters.Sink(ctx, dl); err != nil {
		h.logger.Error(ctx, "Failed to sink malformed message",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
	}
}
