package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mailcourier/internal/domain/notification"
	"github.com/ahrav/mailcourier/internal/infra/storage"
)

var _ notification.DeadLetterSink = (*deadLetterSink)(nil)

// deadLetterSink implements notification.DeadLetterSink using PostgreSQL.
// Rows are insert-only; operators inspect and purge them out of band.
type deadLetterSink struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewDeadLetterSink creates a PostgreSQL-backed dead-letter sink.
func NewDeadLetterSink(pool *pgxpool.Pool, tracer trace.Tracer) *deadLetterSink {
	return &deadLetterSink{db: pool, tracer: tracer}
}

// Sink records a message the pipeline gave up on.
func (s *deadLetterSink) Sink(ctx context.Context, dl notification.DeadLetter) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("event_type", string(dl.EventType)),
		attribute.String("reason", dl.Reason),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.sink_dead_letter", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		var noticeID *uuid.UUID
		if dl.NoticeID != uuid.Nil {
			noticeID = &dl.NoticeID
		}

		_, err := s.db.Exec(ctx, `
			INSERT INTO dead_letters (notice_id, event_type, reason, raw, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			noticeID, string(dl.EventType), dl.Reason, dl.Raw, dl.At,
		)
		if err != nil {
			return fmt.Errorf("inserting dead letter: %w", err)
		}
		return nil
	})
}
