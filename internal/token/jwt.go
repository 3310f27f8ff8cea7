package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dtroode/vault-protector/internal/model"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// accessClaims are carried by short-lived access tokens.
type accessClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	SessionID string `json:"sid"`
	DeviceID  string `json:"did"`
	TokenType string `json:"typ"`
}

// refreshClaims are carried by rotating refresh tokens. The registered ID
// is a fresh jti so two tokens minted in the same second never collide.
type refreshClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	Family    string `json:"family"`
	TokenType string `json:"typ"`
}

// Config holds signing secrets and lifetimes.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// JWT implements TokenManager backed by symmetric HMAC with a distinct
// secret per token type.
type JWT struct {
	cfg Config
	now func() time.Time
}

// NewJWT creates a new JWT token manager.
func NewJWT(cfg Config) *JWT {
	return &JWT{cfg: cfg, now: time.Now}
}

var _ model.TokenManager = (*JWT)(nil)

// AccessTTL returns the access token lifetime.
func (j *JWT) AccessTTL() time.Duration { return j.cfg.AccessTTL }

// RefreshTTL returns the refresh token lifetime.
func (j *JWT) RefreshTTL() time.Duration { return j.cfg.RefreshTTL }

// GenerateAccessToken creates a short-lived access token.
func (j *JWT) GenerateAccessToken(c model.AccessClaims) (string, error) {
	now := j.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.cfg.AccessTTL)),
		},
		Email:     c.Email,
		SessionID: c.SessionID.String(),
		DeviceID:  c.DeviceID.String(),
		TokenType: typeAccess,
	})

	tokenString, err := token.SignedString([]byte(j.cfg.AccessSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, nil
}

// GenerateRefreshToken creates a long-lived refresh token.
func (j *JWT) GenerateRefreshToken(c model.RefreshClaims) (string, error) {
	now := j.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   c.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.cfg.RefreshTTL)),
		},
		SessionID: c.SessionID.String(),
		Family:    c.Family,
		TokenType: typeRefresh,
	})

	tokenString, err := token.SignedString([]byte(j.cfg.RefreshSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return tokenString, nil
}

// ParseAccessToken validates an access token and returns its claims.
func (j *JWT) ParseAccessToken(tokenString string) (model.AccessClaims, error) {
	claims := &accessClaims{}
	if err := j.parse(tokenString, claims, j.cfg.AccessSecret); err != nil {
		return model.AccessClaims{}, fmt.Errorf("failed to parse access token: %w", err)
	}
	if claims.TokenType != typeAccess {
		return model.AccessClaims{}, fmt.Errorf("token type mismatch: %s", claims.TokenType)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.AccessClaims{}, fmt.Errorf("invalid subject: %w", err)
	}
	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return model.AccessClaims{}, fmt.Errorf("invalid session id: %w", err)
	}
	deviceID, err := uuid.Parse(claims.DeviceID)
	if err != nil {
		return model.AccessClaims{}, fmt.Errorf("invalid device id: %w", err)
	}

	return model.AccessClaims{
		UserID:    userID,
		Email:     claims.Email,
		SessionID: sessionID,
		DeviceID:  deviceID,
	}, nil
}

// ParseRefreshToken validates a refresh token and returns its claims.
func (j *JWT) ParseRefreshToken(tokenString string) (model.RefreshClaims, error) {
	claims := &refreshClaims{}
	if err := j.parse(tokenString, claims, j.cfg.RefreshSecret); err != nil {
		return model.RefreshClaims{}, fmt.Errorf("failed to parse refresh token: %w", err)
	}
	if claims.TokenType != typeRefresh {
		return model.RefreshClaims{}, fmt.Errorf("token type mismatch: %s", claims.TokenType)
	}
	if claims.Family == "" {
		return model.RefreshClaims{}, errors.New("refresh token has no family")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.RefreshClaims{}, fmt.Errorf("invalid subject: %w", err)
	}
	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return model.RefreshClaims{}, fmt.Errorf("invalid session id: %w", err)
	}

	return model.RefreshClaims{
		UserID:    userID,
		SessionID: sessionID,
		Family:    claims.Family,
	}, nil
}

func (j *JWT) parse(tokenString string, claims jwt.Claims, secret string) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired(), jwt.WithTimeFunc(j.now))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return fmt.Errorf("%w: %w", model.ErrTokenExpired, err)
	}
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("token is invalid")
	}
	return nil
}
