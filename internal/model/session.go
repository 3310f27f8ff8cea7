package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Revocation reasons recorded on sessions.
const (
	RevokeReasonLogout          = "user logout"
	RevokeReasonTokenReuse      = "token reuse detected"
	RevokeReasonPasswordChanged = "password changed"
	RevokeReasonDeviceRemoved   = "device removed"
	RevokeReasonDuplicateDevice = "duplicate device cleanup"
	RevokeReasonByUser          = "revoked by user"
	RevokeReasonAccountDeleted  = "account deleted"
)

// SessionStore defines persistence operations for sessions.
type SessionStore interface {
	Create(ctx context.Context, session Session) (Session, error)
	GetByID(ctx context.Context, id uuid.UUID) (Session, error)
	// RotateRefreshHash replaces oldHash with newHash only if the session is
	// still live and oldHash is the stored value. Returns ErrTokenMismatch
	// when no row matched.
	RotateRefreshHash(ctx context.Context, id uuid.UUID, oldHash, newHash []byte, now time.Time) error
	ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]SessionWithDevice, error)
	Revoke(ctx context.Context, id uuid.UUID, reason string, now time.Time) (Session, error)
	RevokeFamily(ctx context.Context, family string, reason string, now time.Time) ([]Session, error)
	// RevokeAllForUser revokes every live session of the user except
	// exceptID. uuid.Nil revokes all of them.
	RevokeAllForUser(ctx context.Context, userID, exceptID uuid.UUID, reason string, now time.Time) ([]Session, error)
	RevokeByDevice(ctx context.Context, userID, deviceID uuid.UUID, reason string, now time.Time) ([]Session, error)
	DeleteStale(ctx context.Context, before time.Time, limit int) (int64, error)
}

// Session is a login lineage bound to a device. Only the hash of the
// current refresh token is kept.
type Session struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	DeviceID         uuid.UUID
	RefreshTokenHash []byte
	Family           string
	IPAddress        string
	UserAgent        string
	ExpiresAt        time.Time
	LastActivityAt   time.Time
	RevokedAt        *time.Time
	RevokedReason    string
	CreatedAt        time.Time
}

// Active reports whether the session is neither revoked nor expired at now.
func (s Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}

// SessionWithDevice joins a session with the device it is bound to.
type SessionWithDevice struct {
	Session
	DeviceName     string
	DevicePlatform Platform
}

// RequestMeta carries client network information into services.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// Principal is the authenticated caller resolved from an access token.
type Principal struct {
	UserID    uuid.UUID
	Email     string
	SessionID uuid.UUID
	DeviceID  uuid.UUID
}
