// Package memory provides an in-process idempotency guard. It is suitable
// for single-instance deployments and tests; multi-instance deployments
// should use the redis-backed guard so the claim set is shared across
// workers and the fallback path.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/mailcourier/internal/domain/notification"
)

var _ notification.IdempotencyGuard = (*Guard)(nil)

// Guard implements notification.IdempotencyGuard with a mutex-protected map.
// The mutex makes TryClaim a genuine compare-and-set rather than
// check-then-write, closing the race between concurrent delivery attempts
// for the same notice.
type Guard struct {
	mu     sync.Mutex
	claims map[uuid.UUID]time.Time
}

// NewGuard creates an empty in-process guard.
func NewGuard() *Guard {
	return &Guard{claims: make(map[uuid.UUID]time.Time)}
}

// TryClaim claims the notice ID, returning false if it was already claimed.
func (g *Guard) TryClaim(_ context.Context, noticeID uuid.UUID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.claims[noticeID]; exists {
		return false, nil
	}
	g.claims[noticeID] = time.Now().UTC()
	return true, nil
}

// Release withdraws a claim. Releasing an unclaimed ID is a no-op.
func (g *Guard) Release(_ context.Context, noticeID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claims, noticeID)
	return nil
}

// ClaimedAt reports when the notice ID was claimed, for tests and audits.
func (g *Guard) ClaimedAt(noticeID uuid.UUID) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	at, ok := g.claims[noticeID]
	return at, ok
}
