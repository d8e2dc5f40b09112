package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter guards the ingest endpoint against runaway upstream retry
// loops. Keys are caller identities (created_by or remote address).
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// NoopLimiter allows everything. The limiter is disabled by default;
// the upstream validation service is trusted and internal.
type NoopLimiter struct{}

func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (l *NoopLimiter) Allow(ctx context.Context, key string) bool {
	return true
}

// SlidingWindowLimiter implements distributed rate limiting on Redis
// sorted sets: one member per request, scored by timestamp, counted
// over a sliding window.
type SlidingWindowLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewSlidingWindowLimiter allows limit requests per key per window.
func NewSlidingWindowLimiter(client *redis.Client, limit int, window time.Duration) *SlidingWindowLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindowLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Allow reports whether one more request fits the caller's window. On
// Redis failure it allows the request: losing an audit row to a
// limiter outage would be worse than briefly over-admitting.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) bool {
	if l.limit <= 0 {
		return true
	}

	allowed, err := l.allowN(ctx, key, 1)
	if err != nil {
		return true
	}
	return allowed
}

func (l *SlidingWindowLimiter) allowN(ctx context.Context, key string, count int) (bool, error) {
	redisKey := l.redisKey(key)
	now := time.Now()
	windowStart := now.Add(-l.window)

	pipe := l.client.Pipeline()

	// Drop entries that slid out of the window.
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixMilli()))

	// Count what is left before admitting the new request(s).
	countCmd := pipe.ZCard(ctx, redisKey)

	for i := 0; i < count; i++ {
		timestamp := now.Add(time.Duration(i) * time.Microsecond).UnixMilli()
		pipe.ZAdd(ctx, redisKey, redis.Z{
			Score:  float64(timestamp),
			Member: fmt.Sprintf("%d:%d", timestamp, i),
		})
	}

	// Expire idle keys.
	pipe.Expire(ctx, redisKey, 2*l.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	return int(countCmd.Val()) < l.limit, nil
}

// CurrentUsage returns the request count inside the caller's window.
func (l *SlidingWindowLimiter) CurrentUsage(ctx context.Context, key string) (int64, error) {
	redisKey := l.redisKey(key)
	windowStart := time.Now().Add(-l.window)

	if err := l.client.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixMilli())).Err(); err != nil {
		return 0, fmt.Errorf("failed to clean old entries: %w", err)
	}

	count, err := l.client.ZCard(ctx, redisKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get current usage: %w", err)
	}

	return count, nil
}

// Reset clears the window for a key.
func (l *SlidingWindowLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.redisKey(key)).Err()
}

func (l *SlidingWindowLimiter) redisKey(key string) string {
	return fmt.Sprintf("audit:ratelimit:%s", key)
}
