package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "test:", nil), mr
}

func TestAllowCountsWithinWindow(t *testing.T) {
	lim, _ := newLimiter(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d := lim.Allow(ctx, "intake:1.2.3.4", 3, time.Hour)
		require.True(t, d.Allowed, "hit %d", i)
		assert.Equal(t, 3-i, d.Remaining)
	}
	d := lim.Allow(ctx, "intake:1.2.3.4", 3, time.Hour)
	assert.False(t, d.Allowed)
	assert.Equal(t, 4, d.Count)
	assert.Zero(t, d.Remaining)

	other := lim.Allow(ctx, "intake:5.6.7.8", 3, time.Hour)
	assert.True(t, other.Allowed, "keys are independent")
}

func TestAllowResetsAfterWindow(t *testing.T) {
	lim, mr := newLimiter(t)
	ctx := context.Background()

	assert.True(t, lim.Allow(ctx, "k", 1, time.Minute).Allowed)
	assert.False(t, lim.Allow(ctx, "k", 1, time.Minute).Allowed)
	assert.Greater(t, mr.TTL("test:k"), time.Duration(0))

	mr.FastForward(61 * time.Second)
	assert.True(t, lim.Allow(ctx, "k", 1, time.Minute).Allowed)
}

func TestAllowFailsOpen(t *testing.T) {
	assert.True(t, New(nil, "", nil).Allow(context.Background(), "k", 1, time.Minute).Allowed)

	lim, mr := newLimiter(t)
	mr.Close()
	d := lim.Allow(context.Background(), "k", 1, time.Minute)
	assert.True(t, d.Allowed)
	assert.Zero(t, d.Count)
}
