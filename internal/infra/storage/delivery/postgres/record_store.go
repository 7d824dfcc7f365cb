// Package postgres provides PostgreSQL-backed persistence for delivery
// records and dead letters.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mailcourier/internal/domain/events"
	"github.com/ahrav/mailcourier/internal/domain/notification"
	"github.com/ahrav/mailcourier/internal/infra/storage"
)

var _ notification.DeliveryRecordStore = (*recordStore)(nil)

// recordStore implements notification.DeliveryRecordStore using PostgreSQL as
// the backing store. Records are retained for audit; the pipeline never
// deletes them.
type recordStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewRecordStore creates a PostgreSQL-backed delivery record store with
// tracing capabilities.
func NewRecordStore(pool *pgxpool.Pool, tracer trace.Tracer) *recordStore {
	return &recordStore{db: pool, tracer: tracer}
}

// defaultDBAttributes defines standard OpenTelemetry attributes for database
// operations.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

// Save upserts the record keyed by notice ID.
func (s *recordStore) Save(ctx context.Context, rec *notification.DeliveryRecord) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("notice_id", rec.NoticeID.String()),
		attribute.String("status", rec.Status.String()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.save_delivery_record", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		var nextRetryAt *time.Time
		if !rec.NextRetryAt.IsZero() {
			nextRetryAt = &rec.NextRetryAt
		}

		_, err := s.db.Exec(ctx, `
			INSERT INTO delivery_records (
				notice_id, event_type, status, attempts, last_error, next_retry_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (notice_id) DO UPDATE SET
				status = EXCLUDED.status,
				attempts = EXCLUDED.attempts,
				last_error = EXCLUDED.last_error,
				next_retry_at = EXCLUDED.next_retry_at,
				updated_at = EXCLUDED.updated_at`,
			rec.NoticeID, string(rec.EventType), rec.Status.String(), rec.Attempts,
			rec.LastError, nextRetryAt, rec.CreatedAt, rec.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upserting delivery record: %w", err)
		}
		return nil
	})
}

// Get returns the record for the notice ID.
func (s *recordStore) Get(ctx context.Context, noticeID uuid.UUID) (*notification.DeliveryRecord, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("notice_id", noticeID.String()))

	var rec notification.DeliveryRecord
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.get_delivery_record", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		var (
			eventType   string
			status      string
			nextRetryAt *time.Time
		)
		row := s.db.QueryRow(ctx, `
			SELECT notice_id, event_type, status, attempts, last_error, next_retry_at, created_at, updated_at
			FROM delivery_records
			WHERE notice_id = $1`, noticeID)

		if err := row.Scan(
			&rec.NoticeID, &eventType, &status, &rec.Attempts,
			&rec.LastError, &nextRetryAt, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notification.ErrRecordNotFound
			}
			return fmt.Errorf("querying delivery record: %w", err)
		}

		rec.EventType = events.EventType(eventType)
		rec.Status = notification.ParseDeliveryStatus(status)
		if nextRetryAt != nil {
			rec.NextRetryAt = *nextRetryAt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
