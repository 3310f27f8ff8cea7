package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dtroode/vault-protector/internal/model"
)

const preloginPrefix = "prelogin:"

// Prelogin caches KDF parameters of existing accounts.
type Prelogin struct {
	base
}

var _ model.PreloginCache = (*Prelogin)(nil)

// NewPrelogin creates the prelogin cache.
func NewPrelogin(rdb redis.UniversalClient, timeout time.Duration) *Prelogin {
	return &Prelogin{base: newBase(rdb, timeout)}
}

// Get returns cached params and whether they were present.
func (p *Prelogin) Get(ctx context.Context, email string) (model.KDFParams, bool, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	raw, err := p.rdb.Get(ctx, preloginPrefix+email).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.KDFParams{}, false, nil
		}
		return model.KDFParams{}, false, unavailable(err)
	}

	var kdf model.KDFParams
	if err := json.Unmarshal(raw, &kdf); err != nil {
		return model.KDFParams{}, false, fmt.Errorf("failed to decode cached kdf: %w", err)
	}
	return kdf, true, nil
}

// Set stores params for ttl.
func (p *Prelogin) Set(ctx context.Context, email string, kdf model.KDFParams, ttl time.Duration) error {
	raw, err := json.Marshal(kdf)
	if err != nil {
		return fmt.Errorf("failed to encode kdf: %w", err)
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	if err := p.rdb.Set(ctx, preloginPrefix+email, raw, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Delete evicts the cached params for email.
func (p *Prelogin) Delete(ctx context.Context, email string) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	if err := p.rdb.Del(ctx, preloginPrefix+email).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}
