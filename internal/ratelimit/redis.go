// Package ratelimit provides the per-identity throttling capability consumed
// by the authentication coordinator.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reelrooms/identity/domain"
)

// RedisFixedWindow is a fixed-window counter keyed per identity. The window
// lives entirely in Redis, so all broker replicas share one budget.
type RedisFixedWindow struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisFixedWindow creates a limiter allowing limit calls per window.
func NewRedisFixedWindow(client *redis.Client, prefix string, limit int, window time.Duration) *RedisFixedWindow {
	return &RedisFixedWindow{
		client: client,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
	}
}

// Allow counts the call against the identity's current window and reports
// whether it fits the budget.
func (l *RedisFixedWindow) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := l.windowKey(key, time.Now())

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	return count.Val() <= l.limit, nil
}

// windowKey buckets time into fixed windows so a key expires together with
// its window.
func (l *RedisFixedWindow) windowKey(key string, now time.Time) string {
	bucket := now.UnixMilli() / l.window.Milliseconds()
	return fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)
}

var _ domain.RateLimiter = (*RedisFixedWindow)(nil)
