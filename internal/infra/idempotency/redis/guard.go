// Package redis provides a Redis-backed idempotency guard shared across all
// workers and the fallback path. Claims are singly-written keys with a
// retention TTL; SET NX gives the atomic compare-and-set the guard contract
// requires.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ahrav/mailcourier/internal/domain/notification"
)

// DefaultRetention is how long a delivered notice's claim is kept. Broker
// redelivery happens within seconds or minutes; a multi-day window comfortably
// outlives any redelivery horizon without growing the keyspace forever.
const DefaultRetention = 7 * 24 * time.Hour

var _ notification.IdempotencyGuard = (*Guard)(nil)

// Guard implements notification.IdempotencyGuard on top of a Redis client.
type Guard struct {
	client    *redis.Client
	keyPrefix string
	retention time.Duration
}

// NewGuard creates a guard using the provided client. A zero retention
// defaults to DefaultRetention.
func NewGuard(client *redis.Client, keyPrefix string, retention time.Duration) *Guard {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if keyPrefix == "" {
		keyPrefix = "notify:claim"
	}
	return &Guard{client: client, keyPrefix: keyPrefix, retention: retention}
}

func (g *Guard) key(noticeID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", g.keyPrefix, noticeID)
}

// TryClaim atomically claims the notice ID with SET NX. It returns false if
// another worker (or the fallback path) already holds the claim.
func (g *Guard) TryClaim(ctx context.Context, noticeID uuid.UUID) (bool, error) {
	granted, err := g.client.SetNX(ctx, g.key(noticeID), time.Now().UTC().Format(time.RFC3339Nano), g.retention).Result()
	if err != nil {
		return false, fmt.Errorf("claiming notice %s: %w", noticeID, err)
	}
	return granted, nil
}

// Release deletes the claim so a later attempt can claim it again.
func (g *Guard) Release(ctx context.Context, noticeID uuid.UUID) error {
	if err := g.client.Del(ctx, g.key(noticeID)).Err(); err != nil {
		return fmt.Errorf("releasing notice %s: %w", noticeID, err)
	}
	return nil
}
