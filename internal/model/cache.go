package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RevocationCache is the authority on whether a session was revoked
// while its access tokens may still be valid.
type RevocationCache interface {
	Revoke(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

// PreloginCache caches real KDF lookups by email.
type PreloginCache interface {
	Get(ctx context.Context, email string) (KDFParams, bool, error)
	Set(ctx context.Context, email string, kdf KDFParams, ttl time.Duration) error
	Delete(ctx context.Context, email string) error
}

// ActivityTracker stamps the last time a session made a request.
type ActivityTracker interface {
	Touch(ctx context.Context, sessionID uuid.UUID, at time.Time) error
	LastSeen(ctx context.Context, sessionID uuid.UUID) (time.Time, bool, error)
}

// RateLimiter counts hits of key within fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}

// RateLimitResult is the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Transactor runs fn inside a single database transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// VerifierHasher hashes and checks client auth verifiers.
type VerifierHasher interface {
	Hash(verifier string) (string, error)
	Verify(verifier, encoded string) (bool, error)
}
