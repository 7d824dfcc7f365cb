package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mailcourier/internal/domain/events"
	"github.com/ahrav/mailcourier/internal/domain/notification"
	"github.com/ahrav/mailcourier/pkg/common/logger"
)

// Service is the producer-side entry point: it validates notification
// requests, publishes them to the event bus keyed by notice ID, and degrades
// to a synchronous fallback delivery when the broker is unavailable.
type Service struct {
	bus      events.EventBus
	fallback *FallbackDeliverer

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics DeliveryMetrics
}

// NewService creates a publisher service.
func NewService(
	bus events.EventBus,
	fallback *FallbackDeliverer,
	log *logger.Logger,
	tracer trace.Tracer,
	metrics DeliveryMetrics,
) *Service {
	return &Service{
		bus:      bus,
		fallback: fallback,
		logger:   log.With("component", "publisher"),
		tracer:   tracer,
		metrics:  metrics,
	}
}

// Emit validates and publishes a notification event. The returned ID
// identifies the notice for later record lookups. Invalid events fail fast;
// broker outages divert the notice to the fallback path instead of failing
// the caller.
func (s *Service) Emit(
	ctx context.Context,
	eventType events.EventType,
	recipient notification.Recipient,
	payload map[string]any,
) (uuid.UUID, error) {
	ctx, span := s.tracer.Start(ctx, "publisher.emit",
		trace.WithAttributes(attribute.String("event_type", string(eventType))))
	defer span.End()

	if !notification.IsKnownEventType(eventType) {
		return uuid.Nil, fmt.Errorf("%w: %s", notification.ErrUnknownEventType, eventType)
	}

	n := notification.NewNotice(eventType, recipient, payload)
	if err := n.Validate(); err != nil {
		span.RecordError(err)
		return uuid.Nil, err
	}
	span.SetAttributes(attribute.String("notice_id", n.ID.String()))

	evt := events.EventEnvelope{
		Type:      eventType,
		Key:       n.ID.String(),
		Timestamp: time.Now().UTC(),
		Payload:   &n,
	}
	if err := s.bus.Publish(ctx, evt, events.WithKey(n.ID.String())); err != nil {
		if errors.Is(err, notification.ErrBrokerUnavailable) {
			return n.ID, s.publishFallback(ctx, n, err)
		}
		span.RecordError(err)
		return uuid.Nil, fmt.Errorf("publishing %s notice: %w", eventType, err)
	}

	s.metrics.IncNoticesPublished(ctx, string(eventType))
	s.logger.Info(ctx, "Notice published",
		"notice_id", n.ID, "event_type", eventType, "recipient", recipient.Email)
	return n.ID, nil
}

// publishFallback delivers synchronously when the broker is down. The caller
// only sees an error when both the broker and the fallback transport fail.
func (s *Service) publishFallback(ctx context.Context, n notification.Notice, cause error) error {
	s.metrics.IncPublishFallbacks(ctx, string(n.Type))
	s.logger.Warn(ctx, "Broker unavailable, attempting fallback delivery",
		"notice_id", n.ID, "event_type", n.Type, "error", cause)

	if err := s.fallback.Deliver(ctx, n); err != nil {
		return fmt.Errorf("broker unavailable and fallback failed for notice %s: %w", n.ID, err)
	}
	return nil
}

// SendVerification publishes an account verification notice. The worker
// assembles the verification link from the user ID and token.
func (s *Service) SendVerification(ctx context.Context, recipient notification.Recipient, userID, token string) (uuid.UUID, error) {
	return s.Emit(ctx, notification.EventTypeAccountVerification, recipient, map[string]any{
		"user_id":            userID,
		"verification_token": token,
	})
}

// SendAccountLocked publishes an account locked notice.
func (s *Service) SendAccountLocked(ctx context.Context, recipient notification.Recipient) (uuid.UUID, error) {
	return s.Emit(ctx, notification.EventTypeAccountLocked, recipient, map[string]any{})
}

// SendAccountUnlocked publishes an account unlocked notice.
func (s *Service) SendAccountUnlocked(ctx context.Context, recipient notification.Recipient) (uuid.UUID, error) {
	return s.Emit(ctx, notification.EventTypeAccountUnlocked, recipient, map[string]any{})
}

// SendRoleUpgrade publishes a role change notice.
func (s *Service) SendRoleUpgrade(ctx context.Context, recipient notification.Recipient, newRole string) (uuid.UUID, error) {
	return s.Emit(ctx, notification.EventTypeRoleUpgrade, recipient, map[string]any{
		"new_role": newRole,
	})
}

// SendProfessionalStatus publishes a professional status change notice.
func (s *Service) SendProfessionalStatus(ctx context.Context, recipient notification.Recipient, isProfessional bool) (uuid.UUID, error) {
	return s.Emit(ctx, notification.EventTypeProfessionalStatus, recipient, map[string]any{
		"is_professional": isProfessional,
	})
}
