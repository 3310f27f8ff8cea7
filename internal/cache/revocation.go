package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dtroode/vault-protector/internal/model"
)

const blacklistPrefix = "blacklist:"

// Revocation records revoked session ids until their access tokens expire.
type Revocation struct {
	base
}

var _ model.RevocationCache = (*Revocation)(nil)

// NewRevocation creates the session blacklist.
func NewRevocation(rdb redis.UniversalClient, timeout time.Duration) *Revocation {
	return &Revocation{base: newBase(rdb, timeout)}
}

// Revoke blacklists sessionID for ttl.
func (r *Revocation) Revoke(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.rdb.Set(ctx, blacklistPrefix+sessionID.String(), "1", ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// IsRevoked reports whether sessionID is blacklisted. Any Redis error is
// returned so callers can refuse the request.
func (r *Revocation) IsRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	n, err := r.rdb.Exists(ctx, blacklistPrefix+sessionID.String()).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}
