package service

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/vault-protector/internal/mocks"
	"github.com/dtroode/vault-protector/internal/model"
	"github.com/dtroode/vault-protector/internal/testutil"
	"github.com/dtroode/vault-protector/internal/token"
)

var testMeta = model.RequestMeta{IPAddress: "203.0.113.7", UserAgent: "test-agent"}

// memSessions is an in-memory SessionStore with the same conditional
// semantics as the postgres repository.
type memSessions struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]model.Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[uuid.UUID]model.Session)}
}

func (m *memSessions) Create(_ context.Context, s model.Session) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return s, nil
}

func (m *memSessions) GetByID(_ context.Context, id uuid.UUID) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return model.Session{}, model.ErrNotFound
	}
	return s, nil
}

func (m *memSessions) RotateRefreshHash(_ context.Context, id uuid.UUID, oldHash, newHash []byte, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !s.Active(now) || !bytes.Equal(s.RefreshTokenHash, oldHash) {
		return model.ErrTokenMismatch
	}
	s.RefreshTokenHash = newHash
	s.LastActivityAt = now
	m.sessions[id] = s
	return nil
}

func (m *memSessions) ListActiveByUser(_ context.Context, userID uuid.UUID, now time.Time) ([]model.SessionWithDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SessionWithDevice
	for _, s := range m.sessions {
		if s.UserID == userID && s.Active(now) {
			out = append(out, model.SessionWithDevice{Session: s})
		}
	}
	return out, nil
}

func (m *memSessions) Revoke(_ context.Context, id uuid.UUID, reason string, now time.Time) (model.Session, error) {
	revoked := m.revokeWhere(reason, now, func(s model.Session) bool { return s.ID == id })
	if len(revoked) == 0 {
		return model.Session{}, model.ErrNotFound
	}
	return revoked[0], nil
}

func (m *memSessions) RevokeFamily(_ context.Context, family string, reason string, now time.Time) ([]model.Session, error) {
	return m.revokeWhere(reason, now, func(s model.Session) bool { return s.Family == family }), nil
}

func (m *memSessions) RevokeAllForUser(_ context.Context, userID, exceptID uuid.UUID, reason string, now time.Time) ([]model.Session, error) {
	return m.revokeWhere(reason, now, func(s model.Session) bool { return s.UserID == userID && s.ID != exceptID }), nil
}

func (m *memSessions) RevokeByDevice(_ context.Context, userID, deviceID uuid.UUID, reason string, now time.Time) ([]model.Session, error) {
	return m.revokeWhere(reason, now, func(s model.Session) bool { return s.UserID == userID && s.DeviceID == deviceID }), nil
}

func (m *memSessions) DeleteStale(context.Context, time.Time, int) (int64, error) {
	return 0, nil
}

func (m *memSessions) revokeWhere(reason string, now time.Time, match func(model.Session) bool) []model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Session
	for id, s := range m.sessions {
		if s.RevokedAt != nil || !match(s) {
			continue
		}
		at := now
		s.RevokedAt = &at
		s.RevokedReason = reason
		m.sessions[id] = s
		out = append(out, s)
	}
	return out
}

// memRevocations is an in-memory RevocationCache.
type memRevocations struct {
	mu      sync.Mutex
	revoked map[uuid.UUID]bool
}

func newMemRevocations() *memRevocations {
	return &memRevocations{revoked: make(map[uuid.UUID]bool)}
}

func (m *memRevocations) Revoke(_ context.Context, sessionID uuid.UUID, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[sessionID] = true
	return nil
}

func (m *memRevocations) IsRevoked(_ context.Context, sessionID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[sessionID], nil
}

type sessionFixture struct {
	manager     *SessionManager
	sessions    *memSessions
	revocations *memRevocations
	users       *mocks.UserStore
	activity    *mocks.ActivityTracker
	auditor     *mocks.Auditor
	tokens      *token.JWT
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	f := &sessionFixture{
		sessions:    newMemSessions(),
		revocations: newMemRevocations(),
		users:       &mocks.UserStore{},
		activity:    &mocks.ActivityTracker{},
		auditor:     &mocks.Auditor{},
		tokens: token.NewJWT(token.Config{
			AccessSecret:  "access-secret",
			RefreshSecret: "refresh-secret",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
		}),
	}
	f.manager = NewSessionManager(f.sessions, f.users, f.tokens, f.revocations, f.activity, f.auditor, testutil.MakeNoopLogger())
	return f
}
