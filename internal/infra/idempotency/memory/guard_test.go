package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_TryClaim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := NewGuard()
	id := uuid.New()

	granted, err := g.TryClaim(ctx, id)
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = g.TryClaim(ctx, id)
	require.NoError(t, err)
	assert.False(t, granted, "second claim for the same id must be rejected")

	_, claimed := g.ClaimedAt(id)
	assert.True(t, claimed)
}

func TestGuard_Release(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := NewGuard()
	id := uuid.New()

	granted, err := g.TryClaim(ctx, id)
	require.NoError(t, err)
	require.True(t, granted)

	require.NoError(t, g.Release(ctx, id))

	granted, err = g.TryClaim(ctx, id)
	require.NoError(t, err)
	assert.True(t, granted, "claim must be grantable again after release")

	// Releasing an unclaimed id is a no-op.
	assert.NoError(t, g.Release(ctx, uuid.New()))
}

func TestGuard_ConcurrentClaims(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := NewGuard()
	id := uuid.New()

	const contenders = 32
	var granted atomic.Int32
	var wg sync.WaitGroup
	wg.Add(contenders)
	for range contenders {
		go func() {
			defer wg.Done()
			ok, err := g.TryClaim(ctx, id)
			assert.NoError(t, err)
			if ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), granted.Load(), "exactly one contender may win the claim")
}
