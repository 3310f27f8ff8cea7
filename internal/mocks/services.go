package mocks

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dtroode/vault-protector/internal/model"
)

type TokenManager struct {
	mock.Mock
}

func (m *TokenManager) GenerateAccessToken(claims model.AccessClaims) (string, error) {
	args := m.Called(claims)
	return args.String(0), args.Error(1)
}

func (m *TokenManager) GenerateRefreshToken(claims model.RefreshClaims) (string, error) {
	args := m.Called(claims)
	return args.String(0), args.Error(1)
}

func (m *TokenManager) ParseAccessToken(token string) (model.AccessClaims, error) {
	args := m.Called(token)
	return args.Get(0).(model.AccessClaims), args.Error(1)
}

func (m *TokenManager) ParseRefreshToken(token string) (model.RefreshClaims, error) {
	args := m.Called(token)
	return args.Get(0).(model.RefreshClaims), args.Error(1)
}

func (m *TokenManager) AccessTTL() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *TokenManager) RefreshTTL() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

type RevocationCache struct {
	mock.Mock
}

func (m *RevocationCache) Revoke(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) error {
	args := m.Called(ctx, sessionID, ttl)
	return args.Error(0)
}

func (m *RevocationCache) IsRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Bool(0), args.Error(1)
}

type PreloginCache struct {
	mock.Mock
}

func (m *PreloginCache) Get(ctx context.Context, email string) (model.KDFParams, bool, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.KDFParams), args.Bool(1), args.Error(2)
}

func (m *PreloginCache) Set(ctx context.Context, email string, kdf model.KDFParams, ttl time.Duration) error {
	args := m.Called(ctx, email, kdf, ttl)
	return args.Error(0)
}

func (m *PreloginCache) Delete(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

type ActivityTracker struct {
	mock.Mock
}

func (m *ActivityTracker) Touch(ctx context.Context, sessionID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, sessionID, at)
	return args.Error(0)
}

func (m *ActivityTracker) LastSeen(ctx context.Context, sessionID uuid.UUID) (time.Time, bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(time.Time), args.Bool(1), args.Error(2)
}

type RateLimiter struct {
	mock.Mock
}

func (m *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (model.RateLimitResult, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Get(0).(model.RateLimitResult), args.Error(1)
}

type VerifierHasher struct {
	mock.Mock
}

func (m *VerifierHasher) Hash(verifier string) (string, error) {
	args := m.Called(verifier)
	return args.String(0), args.Error(1)
}

func (m *VerifierHasher) Verify(verifier, encoded string) (bool, error) {
	args := m.Called(verifier, encoded)
	return args.Bool(0), args.Error(1)
}

type Storage struct {
	mock.Mock
}

func (m *Storage) Upload(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	args := m.Called(ctx, key, data, metadata)
	return args.Error(0)
}

func (m *Storage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *Storage) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *Storage) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// Transactor runs fn directly, with no transaction.
type Transactor struct{}

func (Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Auditor collects entries in memory.
type Auditor struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func (a *Auditor) Log(_ context.Context, entry model.AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

// Entries returns a copy of everything logged so far.
func (a *Auditor) Entries() []model.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.AuditEntry(nil), a.entries...)
}

// Actions returns the logged actions in order.
func (a *Auditor) Actions() []model.AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.AuditAction, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type SecurityLayer struct {
	mock.Mock
}

// NewSecurityLayer creates a SecurityLayer mock whose expectations are
// asserted when the test ends.
func NewSecurityLayer(t interface {
	mock.TestingT
	Cleanup(func())
}) *SecurityLayer {
	m := &SecurityLayer{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *SecurityLayer) Listen(protocol, addr string) (net.Listener, error) {
	args := m.Called(protocol, addr)
	if ln := args.Get(0); ln != nil {
		return ln.(net.Listener), args.Error(1)
	}
	return nil, args.Error(1)
}
