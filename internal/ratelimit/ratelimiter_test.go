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

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*SlidingWindowLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewSlidingWindowLimiter(client, limit, window), mr
}

func TestNoopLimiter(t *testing.T) {
	limiter := NewNoopLimiter()
	ctx := context.Background()

	for _, key := range []string{"validation-service", "", "10.0.0.1"} {
		assert.True(t, limiter.Allow(ctx, key))
	}
}

func TestSlidingWindowLimiter_Allow(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(ctx, "caller-1"), "request %d should be allowed", i)
	}
	assert.False(t, limiter.Allow(ctx, "caller-1"), "request over the limit should be denied")
}

func TestSlidingWindowLimiter_KeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "caller-1"))
	assert.False(t, limiter.Allow(ctx, "caller-1"))
	assert.True(t, limiter.Allow(ctx, "caller-2"))
}

func TestSlidingWindowLimiter_WindowSlides(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, 500*time.Millisecond)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "caller-1"))
	assert.False(t, limiter.Allow(ctx, "caller-1"))

	// Move past the window; the old entry slides out.
	mr.FastForward(time.Second)
	time.Sleep(600 * time.Millisecond)

	assert.True(t, limiter.Allow(ctx, "caller-1"))
}

func TestSlidingWindowLimiter_CurrentUsageAndReset(t *testing.T) {
	limiter, _ := newTestLimiter(t, 10, time.Minute)
	ctx := context.Background()

	limiter.Allow(ctx, "caller-1")
	limiter.Allow(ctx, "caller-1")

	usage, err := limiter.CurrentUsage(ctx, "caller-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), usage)

	require.NoError(t, limiter.Reset(ctx, "caller-1"))

	usage, err = limiter.CurrentUsage(ctx, "caller-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage)
}

func TestSlidingWindowLimiter_ZeroLimitAllowsEverything(t *testing.T) {
	limiter, _ := newTestLimiter(t, 0, time.Minute)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow(ctx, "caller-1"))
	}
}

func TestSlidingWindowLimiter_AllowsOnRedisFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter := NewSlidingWindowLimiter(client, 1, time.Minute)
	mr.Close()

	assert.True(t, limiter.Allow(context.Background(), "caller-1"))
}
