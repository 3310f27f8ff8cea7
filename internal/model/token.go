package model

import (
	"time"

	"github.com/google/uuid"
)

// TokenManager generates and validates access/refresh tokens.
type TokenManager interface {
	GenerateAccessToken(claims AccessClaims) (string, error)
	GenerateRefreshToken(claims RefreshClaims) (string, error)
	ParseAccessToken(token string) (AccessClaims, error)
	ParseRefreshToken(token string) (RefreshClaims, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

// AccessClaims identify the caller of an authenticated request.
type AccessClaims struct {
	UserID    uuid.UUID
	Email     string
	SessionID uuid.UUID
	DeviceID  uuid.UUID
}

// RefreshClaims bind a refresh token to its session and family.
type RefreshClaims struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
	Family    string
}

// TokenPair is returned to clients after login, registration or refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}
