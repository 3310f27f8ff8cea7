// Package cache implements the Redis-backed revocation blacklist, prelogin
// cache, rate limiter and session activity tracker.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps any Redis failure.
var ErrUnavailable = errors.New("cache unavailable")

const defaultTimeout = 2 * time.Second

// Options configure the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis and verifies the connection with PING.
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// base carries the client and per-call timeout shared by every store.
type base struct {
	rdb     redis.UniversalClient
	timeout time.Duration
}

func newBase(rdb redis.UniversalClient, timeout time.Duration) base {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return base{rdb: rdb, timeout: timeout}
}

func (b base) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
