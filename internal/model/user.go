package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserStore defines persistence operations for users and their credential material.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	Create(ctx context.Context, user User) (User, error)
	// IncrementFailedAttempts records a failed login and locks the account
	// once the counter reaches threshold.
	IncrementFailedAttempts(ctx context.Context, id uuid.UUID, threshold int, lockoutUntil, now time.Time) (User, error)
	// ResetFailedAttempts clears lockout state after a successful login.
	ResetFailedAttempts(ctx context.Context, id uuid.UUID, now time.Time) error
	SetVerifier(ctx context.Context, id uuid.UUID, verifierHash string, wrappedVaultKey *string, now time.Time) error
	SetKDF(ctx context.Context, id uuid.UUID, kdf KDFParams, now time.Time) error
	// SetMasterPassword stores the wrapped key only if none was set before.
	SetMasterPassword(ctx context.Context, id uuid.UUID, wrappedVaultKey string, now time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserStatus is the account state.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusLocked    UserStatus = "locked"
	UserStatusSuspended UserStatus = "suspended"
)

// KDF algorithms a client may use to derive its keys.
const (
	KDFArgon2id = "argon2id"
	KDFPBKDF2   = "pbkdf2"
)

// KDFParams are the public key-derivation parameters returned on prelogin.
type KDFParams struct {
	Algorithm   string `json:"algorithm"`
	Salt        string `json:"salt"`
	Memory      int    `json:"memory"`
	Iterations  int    `json:"iterations"`
	Parallelism int    `json:"parallelism"`
}

// User represents a stored user with authentication material.
type User struct {
	ID                  uuid.UUID
	Email               string
	VerifierHash        string
	KDF                 KDFParams
	WrappedVaultKey     *string
	HasMasterPassword   bool
	EmailVerified       bool
	Status              UserStatus
	FailedLoginAttempts int
	LockoutUntil        *time.Time
	LastLoginAt         *time.Time
	PasswordChangedAt   *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsLocked reports whether login must be refused at now. A locked status
// without a lockout deadline is a manual lock; a locked status whose deadline
// has passed is stale and does not block.
func (u User) IsLocked(now time.Time) bool {
	if u.LockoutUntil != nil {
		return u.LockoutUntil.After(now)
	}
	return u.Status == UserStatusLocked
}
