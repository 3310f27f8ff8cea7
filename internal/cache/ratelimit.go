package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dtroode/vault-protector/internal/model"
)

const rateLimitPrefix = "ratelimit:"

// RateLimiter is a fixed-window counter per key.
type RateLimiter struct {
	base
}

var _ model.RateLimiter = (*RateLimiter)(nil)

// NewRateLimiter creates a Redis rate limiter.
func NewRateLimiter(rdb redis.UniversalClient, timeout time.Duration) *RateLimiter {
	return &RateLimiter{base: newBase(rdb, timeout)}
}

// Allow counts one hit for key and reports whether it fits into limit for
// the current window.
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (model.RateLimitResult, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	key = rateLimitPrefix + key

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return model.RateLimitResult{}, unavailable(err)
	}

	// The first hit opens the window.
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, window).Err(); err != nil {
			return model.RateLimitResult{}, unavailable(err)
		}
	}

	if count <= int64(limit) {
		return model.RateLimitResult{Allowed: true, Remaining: limit - int(count)}, nil
	}

	ttl, err := l.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return model.RateLimitResult{}, unavailable(err)
	}
	if ttl < 0 {
		// Key lost its expiry; start a new window so it cannot block forever.
		if err := l.rdb.Expire(ctx, key, window).Err(); err != nil {
			return model.RateLimitResult{}, unavailable(err)
		}
		ttl = window
	}

	return model.RateLimitResult{Allowed: false, RetryAfter: ttl}, nil
}
