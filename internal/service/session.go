package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dtroode/vault-protector/internal/apperr"
	"github.com/dtroode/vault-protector/internal/logger"
	"github.com/dtroode/vault-protector/internal/model"
)

var tracer = otel.Tracer("vault-protector/service")

// SessionView is a live session as shown to its owner.
type SessionView struct {
	model.SessionWithDevice
	IsCurrent bool
}

// SessionManager issues, rotates and revokes device-bound sessions. A session
// stores only the hash of its current refresh token; revocation is pushed to
// the revocation cache so that outstanding access tokens stop working.
type SessionManager struct {
	sessions    model.SessionStore
	users       model.UserStore
	tokens      model.TokenManager
	revocations model.RevocationCache
	activity    model.ActivityTracker
	auditor     model.Auditor
	logger      *logger.Logger
	now         func() time.Time
}

func NewSessionManager(
	sessions model.SessionStore,
	users model.UserStore,
	tokens model.TokenManager,
	revocations model.RevocationCache,
	activity model.ActivityTracker,
	auditor model.Auditor,
	logger *logger.Logger,
) *SessionManager {
	return &SessionManager{
		sessions:    sessions,
		users:       users,
		tokens:      tokens,
		revocations: revocations,
		activity:    activity,
		auditor:     auditor,
		logger:      logger,
		now:         time.Now,
	}
}

func hashToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

// Create opens a new session family for user on deviceID and returns its first token pair.
func (m *SessionManager) Create(ctx context.Context, user model.User, deviceID uuid.UUID, meta model.RequestMeta) (model.TokenPair, model.Session, error) {
	ctx, span := tracer.Start(ctx, "SessionManager.Create")
	defer span.End()

	now := m.now().UTC()

	// the real token embeds the session id, so the row is created with a
	// placeholder that no presented token can ever hash to
	placeholder := make([]byte, sha256.Size)
	if _, err := rand.Read(placeholder); err != nil {
		return model.TokenPair{}, model.Session{}, fmt.Errorf("failed to generate placeholder hash: %w", err)
	}

	session, err := m.sessions.Create(ctx, model.Session{
		ID:               uuid.New(),
		UserID:           user.ID,
		DeviceID:         deviceID,
		RefreshTokenHash: placeholder,
		Family:           uuid.NewString(),
		IPAddress:        meta.IPAddress,
		UserAgent:        meta.UserAgent,
		ExpiresAt:        now.Add(m.tokens.RefreshTTL()),
		LastActivityAt:   now,
		CreatedAt:        now,
	})
	if err != nil {
		m.logger.Error("Session manager: failed to create session",
			"user_id", user.ID,
			"error", err.Error())
		return model.TokenPair{}, model.Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	span.SetAttributes(attribute.String("session.id", session.ID.String()))

	refreshToken, err := m.tokens.GenerateRefreshToken(model.RefreshClaims{
		UserID:    user.ID,
		SessionID: session.ID,
		Family:    session.Family,
	})
	if err != nil {
		return model.TokenPair{}, model.Session{}, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	finalHash := hashToken(refreshToken)
	if err := m.sessions.RotateRefreshHash(ctx, session.ID, placeholder, finalHash, now); err != nil {
		return model.TokenPair{}, model.Session{}, fmt.Errorf("failed to store refresh token hash: %w", err)
	}
	session.RefreshTokenHash = finalHash

	accessToken, err := m.accessToken(user, session)
	if err != nil {
		return model.TokenPair{}, model.Session{}, err
	}

	m.auditor.Log(ctx, model.AuditEntry{
		UserID:    &user.ID,
		Action:    model.AuditSessionCreate,
		Status:    model.AuditSuccess,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata:  map[string]any{"sessionId": session.ID.String(), "deviceId": deviceID.String()},
	})

	m.logger.Debug("Session manager: session created",
		"user_id", user.ID,
		"session_id", session.ID)

	return m.pair(accessToken, refreshToken), session, nil
}

// Rotate exchanges a refresh token for a new pair. Presenting a token that
// is no longer the current one of its session revokes the whole family.
func (m *SessionManager) Rotate(ctx context.Context, refreshToken string, meta model.RequestMeta) (model.TokenPair, error) {
	ctx, span := tracer.Start(ctx, "SessionManager.Rotate")
	defer span.End()

	claims, err := m.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		m.logger.Debug("Session manager: invalid refresh token",
			"error", err.Error())
		return model.TokenPair{}, apperr.Unauthorized("invalid refresh token")
	}

	session, err := m.sessions.GetByID(ctx, claims.SessionID)
	if errors.Is(err, model.ErrNotFound) {
		return model.TokenPair{}, apperr.Unauthorized("session not found")
	}
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("failed to get session: %w", err)
	}
	if session.UserID != claims.UserID {
		return model.TokenPair{}, apperr.Unauthorized("invalid refresh token")
	}

	now := m.now().UTC()
	if !session.Active(now) {
		return model.TokenPair{}, apperr.Unauthorized("session expired or revoked")
	}

	presented := hashToken(refreshToken)
	if subtle.ConstantTimeCompare(session.RefreshTokenHash, presented) != 1 {
		return model.TokenPair{}, m.handleReuse(ctx, session, meta)
	}

	user, err := m.users.GetByID(ctx, session.UserID)
	if errors.Is(err, model.ErrNotFound) {
		return model.TokenPair{}, apperr.Unauthorized("user not found")
	}
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("failed to get user: %w", err)
	}

	newRefresh, err := m.tokens.GenerateRefreshToken(model.RefreshClaims{
		UserID:    session.UserID,
		SessionID: session.ID,
		Family:    session.Family,
	})
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	err = m.sessions.RotateRefreshHash(ctx, session.ID, presented, hashToken(newRefresh), now)
	if errors.Is(err, model.ErrTokenMismatch) {
		// a concurrent refresh with the same token won the race
		return model.TokenPair{}, m.handleReuse(ctx, session, meta)
	}
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	accessToken, err := m.accessToken(user, session)
	if err != nil {
		return model.TokenPair{}, err
	}

	return m.pair(accessToken, newRefresh), nil
}

func (m *SessionManager) handleReuse(ctx context.Context, session model.Session, meta model.RequestMeta) error {
	now := m.now().UTC()

	revoked, err := m.sessions.RevokeFamily(ctx, session.Family, model.RevokeReasonTokenReuse, now)
	if err != nil {
		m.logger.Error("Session manager: failed to revoke token family",
			"family", session.Family,
			"error", err.Error())
		return fmt.Errorf("failed to revoke token family: %w", err)
	}

	if err := m.blacklist(ctx, revoked); err != nil {
		m.logger.Error("Session manager: failed to blacklist reused family",
			"family", session.Family,
			"error", err.Error())
	}

	m.logger.Warn("Session manager: refresh token reuse detected",
		"user_id", session.UserID,
		"family", session.Family,
		"revoked", len(revoked))

	m.auditor.Log(ctx, model.AuditEntry{
		UserID:    &session.UserID,
		Action:    model.AuditSessionRevoke,
		Status:    model.AuditFailure,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata: map[string]any{
			"family":       session.Family,
			"reason":       model.RevokeReasonTokenReuse,
			"revokedCount": len(revoked),
		},
	})

	return apperr.Unauthorized("invalid refresh token")
}

// Revoke marks one session revoked and blacklists it. An unknown or already
// revoked session is still blacklisted.
func (m *SessionManager) Revoke(ctx context.Context, sessionID uuid.UUID, reason string) error {
	_, err := m.sessions.Revoke(ctx, sessionID, reason, m.now().UTC())
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	if err := m.revocations.Revoke(ctx, sessionID, m.tokens.AccessTTL()); err != nil {
		m.logger.Error("Session manager: failed to blacklist session",
			"session_id", sessionID,
			"error", err.Error())
		return fmt.Errorf("failed to blacklist session: %w", err)
	}

	return nil
}

// RevokeAllExcept revokes every live session of userID except exceptID and
// returns how many were revoked. uuid.Nil revokes all of them.
func (m *SessionManager) RevokeAllExcept(ctx context.Context, userID, exceptID uuid.UUID, reason string) (int, error) {
	ctx, span := tracer.Start(ctx, "SessionManager.RevokeAllExcept")
	defer span.End()

	revoked, err := m.sessions.RevokeAllForUser(ctx, userID, exceptID, reason, m.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	if err := m.blacklist(ctx, revoked); err != nil {
		return len(revoked), err
	}

	m.logger.Info("Session manager: sessions revoked",
		"user_id", userID,
		"reason", reason,
		"count", len(revoked))

	return len(revoked), nil
}

// RevokeDevice revokes the sessions bound to deviceID.
func (m *SessionManager) RevokeDevice(ctx context.Context, userID, deviceID uuid.UUID, reason string) (int, error) {
	revoked, err := m.sessions.RevokeByDevice(ctx, userID, deviceID, reason, m.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke device sessions: %w", err)
	}
	if err := m.blacklist(ctx, revoked); err != nil {
		return len(revoked), err
	}
	return len(revoked), nil
}

func (m *SessionManager) blacklist(ctx context.Context, sessions []model.Session) error {
	var errs []error
	for _, s := range sessions {
		if err := m.revocations.Revoke(ctx, s.ID, m.tokens.AccessTTL()); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to blacklist sessions: %w", errors.Join(errs...))
	}
	return nil
}

// List returns the live sessions of userID, most recently active first.
func (m *SessionManager) List(ctx context.Context, userID, currentSessionID uuid.UUID) ([]SessionView, error) {
	sessions, err := m.sessions.ListActiveByUser(ctx, userID, m.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		s.LastActivityAt = m.lastActivity(ctx, s.Session)
		views = append(views, SessionView{SessionWithDevice: s, IsCurrent: s.ID == currentSessionID})
	}
	return views, nil
}

// lastActivity prefers the request stamp kept in Redis over the stored
// value, which only moves on refresh.
func (m *SessionManager) lastActivity(ctx context.Context, s model.Session) time.Time {
	seen, ok, err := m.activity.LastSeen(ctx, s.ID)
	if err != nil {
		m.logger.Warn("Session manager: failed to read activity",
			"session_id", s.ID,
			"error", err.Error())
		return s.LastActivityAt
	}
	if ok && seen.After(s.LastActivityAt) {
		return seen
	}
	return s.LastActivityAt
}

// RevokeOne revokes another session of the caller.
func (m *SessionManager) RevokeOne(ctx context.Context, principal model.Principal, sessionID uuid.UUID, meta model.RequestMeta) error {
	if sessionID == principal.SessionID {
		return apperr.Validation("cannot revoke current session, use logout instead")
	}

	session, err := m.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, model.ErrNotFound) || (err == nil && session.UserID != principal.UserID) {
		return apperr.NotFound("session not found")
	}
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	if err := m.Revoke(ctx, sessionID, model.RevokeReasonByUser); err != nil {
		return err
	}

	m.auditor.Log(ctx, model.AuditEntry{
		UserID:    &principal.UserID,
		Action:    model.AuditSessionRevoke,
		Status:    model.AuditSuccess,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata:  map[string]any{"sessionId": sessionID.String(), "reason": model.RevokeReasonByUser},
	})

	return nil
}

// RevokeOthers signs out every session of the caller except the current one.
func (m *SessionManager) RevokeOthers(ctx context.Context, principal model.Principal, meta model.RequestMeta) (int, error) {
	count, err := m.RevokeAllExcept(ctx, principal.UserID, principal.SessionID, model.RevokeReasonByUser)
	if err != nil {
		return count, err
	}

	if count > 0 {
		m.auditor.Log(ctx, model.AuditEntry{
			UserID:    &principal.UserID,
			Action:    model.AuditSessionRevoke,
			Status:    model.AuditSuccess,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			Metadata:  map[string]any{"reason": model.RevokeReasonByUser, "revokedCount": count},
		})
	}

	return count, nil
}

// Authenticate resolves an access token to its principal. Revocation lookups
// fail closed.
func (m *SessionManager) Authenticate(ctx context.Context, accessToken string) (model.Principal, error) {
	claims, err := m.tokens.ParseAccessToken(accessToken)
	if err != nil {
		if errors.Is(err, model.ErrTokenExpired) {
			return model.Principal{}, apperr.Unauthorized("token expired")
		}
		return model.Principal{}, apperr.Unauthorized("invalid token")
	}

	revoked, err := m.revocations.IsRevoked(ctx, claims.SessionID)
	if err != nil {
		m.logger.Error("Session manager: revocation lookup failed",
			"session_id", claims.SessionID,
			"error", err.Error())
		return model.Principal{}, apperr.Unauthorized("unable to verify session")
	}
	if revoked {
		return model.Principal{}, apperr.Unauthorized("session has been revoked")
	}

	return model.Principal{
		UserID:    claims.UserID,
		Email:     claims.Email,
		SessionID: claims.SessionID,
		DeviceID:  claims.DeviceID,
	}, nil
}

// Touch stamps session activity. Failures are only logged.
func (m *SessionManager) Touch(ctx context.Context, sessionID uuid.UUID) {
	if err := m.activity.Touch(ctx, sessionID, m.now().UTC()); err != nil {
		m.logger.Warn("Session manager: failed to record activity",
			"session_id", sessionID,
			"error", err.Error())
	}
}

func (m *SessionManager) accessToken(user model.User, session model.Session) (string, error) {
	token, err := m.tokens.GenerateAccessToken(model.AccessClaims{
		UserID:    user.ID,
		Email:     user.Email,
		SessionID: session.ID,
		DeviceID:  session.DeviceID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return token, nil
}

func (m *SessionManager) pair(accessToken, refreshToken string) model.TokenPair {
	return model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(m.tokens.AccessTTL().Seconds()),
	}
}
