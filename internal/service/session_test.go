package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/vault-protector/internal/apperr"
	"github.com/dtroode/vault-protector/internal/mocks"
	"github.com/dtroode/vault-protector/internal/model"
	"github.com/dtroode/vault-protector/internal/testutil"
)

func testUser() model.User {
	return model.User{ID: uuid.New(), Email: "alice@example.com", Status: model.UserStatusActive}
}

func TestSessionManager_Create(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newSessionFixture(t)
	user := testUser()
	deviceID := uuid.New()

	pair, session, err := f.manager.Create(ctx, user, deviceID, testMeta)
	require.NoError(t, err)

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64(900), pair.ExpiresIn)

	stored, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, hashToken(pair.RefreshToken), stored.RefreshTokenHash)
	assert.Equal(t, deviceID, stored.DeviceID)
	assert.Equal(t, testMeta.IPAddress, stored.IPAddress)

	claims, err := f.tokens.ParseAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, session.ID, claims.SessionID)
	assert.Equal(t, deviceID, claims.DeviceID)

	refresh, err := f.tokens.ParseRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, session.Family, refresh.Family)

	assert.Equal(t, []model.AuditAction{model.AuditSessionCreate}, f.auditor.Actions())
}

func TestSessionManager_RotateOnceThenReuseRevokesFamily(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newSessionFixture(t)
	user := testUser()
	f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	original, session, err := f.manager.Create(ctx, user, uuid.New(), testMeta)
	require.NoError(t, err)

	rotated, err := f.manager.Rotate(ctx, original.RefreshToken, testMeta)
	require.NoError(t, err)
	assert.NotEqual(t, original.RefreshToken, rotated.RefreshToken)

	_, err = f.manager.Rotate(ctx, original.RefreshToken, testMeta)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))

	stored, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.RevokedAt)
	assert.Equal(t, model.RevokeReasonTokenReuse, stored.RevokedReason)

	revoked, err := f.revocations.IsRevoked(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	// the rotated token belongs to the revoked family too
	_, err = f.manager.Rotate(ctx, rotated.RefreshToken, testMeta)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))

	entries := f.auditor.Entries()
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, model.AuditSessionRevoke, last.Action)
	assert.Equal(t, model.AuditFailure, last.Status)
	assert.Equal(t, session.Family, last.Metadata["family"])
}

func TestSessionManager_ConcurrentRotateSucceedsOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newSessionFixture(t)
	user := testUser()
	f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	pair, _, err := f.manager.Create(ctx, user, uuid.New(), testMeta)
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.manager.Rotate(ctx, pair.RefreshToken, testMeta); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestSessionManager_RotateRejects(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("garbage token", func(t *testing.T) {
		t.Parallel()
		f := newSessionFixture(t)
		_, err := f.manager.Rotate(ctx, "not-a-token", testMeta)
		assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	})

	t.Run("access token used as refresh", func(t *testing.T) {
		t.Parallel()
		f := newSessionFixture(t)
		pair, _, err := f.manager.Create(ctx, testUser(), uuid.New(), testMeta)
		require.NoError(t, err)

		_, err = f.manager.Rotate(ctx, pair.AccessToken, testMeta)
		assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()
		f := newSessionFixture(t)
		refresh, err := f.tokens.GenerateRefreshToken(model.RefreshClaims{UserID: uuid.New(), SessionID: uuid.New(), Family: "f"})
		require.NoError(t, err)

		_, err = f.manager.Rotate(ctx, refresh, testMeta)
		assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	})

	t.Run("revoked session", func(t *testing.T) {
		t.Parallel()
		f := newSessionFixture(t)
		pair, session, err := f.manager.Create(ctx, testUser(), uuid.New(), testMeta)
		require.NoError(t, err)
		require.NoError(t, f.manager.Revoke(ctx, session.ID, model.RevokeReasonLogout))

		_, err = f.manager.Rotate(ctx, pair.RefreshToken, testMeta)
		assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	})
}

func TestSessionManager_Authenticate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		t.Parallel()
		f := newSessionFixture(t)
		user := testUser()
		deviceID := uuid.New()
		pair, session, err := f.manager.Create(ctx, user, deviceID, testMeta)
		require.NoError(t, err)

		principal, err := f.manager.Authenticate(ctx, pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, model.Principal{UserID: user.ID, Email: user.Email, SessionID: session.ID, DeviceID: deviceID}, principal)
	})

	t.Run("revoked session rejects live access token", func(t *testing.T) {
		t.Parallel()
		f := newSessionFixture(t)
		pair, session, err := f.manager.Create(ctx, testUser(), uuid.New(), testMeta)
		require.NoError(t, err)

		require.NoError(t, f.manager.Revoke(ctx, session.ID, model.RevokeReasonLogout))

		_, err = f.manager.Authenticate(ctx, pair.AccessToken)
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	})

	t.Run("revocation cache failure fails closed", func(t *testing.T) {
		t.Parallel()
		f := newSessionFixture(t)
		pair, _, err := f.manager.Create(ctx, testUser(), uuid.New(), testMeta)
		require.NoError(t, err)

		cache := &mocks.RevocationCache{}
		cache.On("IsRevoked", mock.Anything, mock.Anything).Return(false, errors.New("redis down"))
		f.manager.revocations = cache

		_, err = f.manager.Authenticate(ctx, pair.AccessToken)
		assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	})

	t.Run("expired token", func(t *testing.T) {
		t.Parallel()
		tokens := &mocks.TokenManager{}
		tokens.On("ParseAccessToken", "expired").Return(model.AccessClaims{}, model.ErrTokenExpired)
		m := NewSessionManager(newMemSessions(), &mocks.UserStore{}, tokens, newMemRevocations(), &mocks.ActivityTracker{}, &mocks.Auditor{}, testutil.MakeNoopLogger())

		_, err := m.Authenticate(ctx, "expired")
		require.Error(t, err)
		assert.Equal(t, "token expired", apperr.From(err).Message)
	})
}

func TestSessionManager_RevokeBlacklistFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newSessionFixture(t)
	_, session, err := f.manager.Create(ctx, testUser(), uuid.New(), testMeta)
	require.NoError(t, err)

	cache := &mocks.RevocationCache{}
	cache.On("Revoke", mock.Anything, session.ID, 15*time.Minute).Return(errors.New("redis down"))
	f.manager.revocations = cache

	err = f.manager.Revoke(ctx, session.ID, model.RevokeReasonLogout)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to blacklist session")
}

func TestSessionManager_RevokeAllExcept(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newSessionFixture(t)
	user := testUser()

	_, current, err := f.manager.Create(ctx, user, uuid.New(), testMeta)
	require.NoError(t, err)
	_, other1, err := f.manager.Create(ctx, user, uuid.New(), testMeta)
	require.NoError(t, err)
	_, other2, err := f.manager.Create(ctx, user, uuid.New(), testMeta)
	require.NoError(t, err)
	_, foreign, err := f.manager.Create(ctx, testUser(), uuid.New(), testMeta)
	require.NoError(t, err)

	count, err := f.manager.RevokeAllExcept(ctx, user.ID, current.ID, model.RevokeReasonPasswordChanged)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, id := range []uuid.UUID{other1.ID, other2.ID} {
		revoked, _ := f.revocations.IsRevoked(ctx, id)
		assert.True(t, revoked)
	}
	for _, id := range []uuid.UUID{current.ID, foreign.ID} {
		revoked, _ := f.revocations.IsRevoked(ctx, id)
		assert.False(t, revoked)
	}

	count, err = f.manager.RevokeAllExcept(ctx, user.ID, uuid.Nil, model.RevokeReasonAccountDeleted)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSessionManager_ListAndRevokeOne(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newSessionFixture(t)
	user := testUser()

	_, current, err := f.manager.Create(ctx, user, uuid.New(), testMeta)
	require.NoError(t, err)
	_, other, err := f.manager.Create(ctx, user, uuid.New(), testMeta)
	require.NoError(t, err)
	_, foreign, err := f.manager.Create(ctx, testUser(), uuid.New(), testMeta)
	require.NoError(t, err)
	f.activity.On("LastSeen", mock.Anything, mock.Anything).Return(time.Time{}, false, nil)

	views, err := f.manager.List(ctx, user.ID, current.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, v := range views {
		assert.Equal(t, v.ID == current.ID, v.IsCurrent)
	}

	principal := model.Principal{UserID: user.ID, SessionID: current.ID}

	err = f.manager.RevokeOne(ctx, principal, current.ID, testMeta)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	err = f.manager.RevokeOne(ctx, principal, foreign.ID, testMeta)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	err = f.manager.RevokeOne(ctx, principal, uuid.New(), testMeta)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	require.NoError(t, f.manager.RevokeOne(ctx, principal, other.ID, testMeta))
	stored, err := f.sessions.GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RevokeReasonByUser, stored.RevokedReason)

	views, err = f.manager.List(ctx, user.ID, current.ID)
	require.NoError(t, err)
	assert.Len(t, views, 1)
}

func TestSessionManager_RevokeOthers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newSessionFixture(t)
	user := testUser()

	_, current, err := f.manager.Create(ctx, user, uuid.New(), testMeta)
	require.NoError(t, err)
	_, other, err := f.manager.Create(ctx, user, uuid.New(), testMeta)
	require.NoError(t, err)

	principal := model.Principal{UserID: user.ID, SessionID: current.ID}
	count, err := f.manager.RevokeOthers(ctx, principal, testMeta)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	revoked, _ := f.revocations.IsRevoked(ctx, other.ID)
	assert.True(t, revoked)
	assert.Contains(t, f.auditor.Actions(), model.AuditSessionRevoke)

	count, err = f.manager.RevokeOthers(ctx, principal, testMeta)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSessionManager_ListUsesRequestActivity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		offset time.Duration
		ok     bool
		err    error
		later  bool
	}{
		{name: "newer stamp wins", offset: time.Hour, ok: true, later: true},
		{name: "older stamp ignored", offset: -time.Hour, ok: true},
		{name: "no stamp", ok: false},
		{name: "redis down", err: errors.New("redis down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			f := newSessionFixture(t)
			user := testUser()

			_, session, err := f.manager.Create(ctx, user, uuid.New(), testMeta)
			require.NoError(t, err)

			stamp := session.LastActivityAt.Add(tt.offset)
			f.activity.On("LastSeen", mock.Anything, session.ID).Return(stamp, tt.ok, tt.err).Once()

			views, err := f.manager.List(ctx, user.ID, session.ID)
			require.NoError(t, err)
			require.Len(t, views, 1)
			if tt.later {
				assert.Equal(t, stamp, views[0].LastActivityAt)
			} else {
				assert.Equal(t, session.LastActivityAt, views[0].LastActivityAt)
			}
			f.activity.AssertExpectations(t)
		})
	}
}

func TestSessionManager_Touch(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)
	sid := uuid.New()

	f.activity.On("Touch", mock.Anything, sid, mock.AnythingOfType("time.Time")).Return(errors.New("redis down")).Once()
	assert.NotPanics(t, func() { f.manager.Touch(context.Background(), sid) })
	f.activity.AssertExpectations(t)
}
