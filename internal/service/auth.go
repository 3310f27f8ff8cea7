package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/vault-protector/internal/apperr"
	"github.com/dtroode/vault-protector/internal/logger"
	"github.com/dtroode/vault-protector/internal/model"
)

const (
	preloginCacheTTL = 5 * time.Minute
	fakeSaltLength   = 16
	dummyVerifier    = "vault-protector-timing-equalizer"
)

// AuthConfig tunes lockout and the parameters handed out for unknown emails.
type AuthConfig struct {
	PreloginSecret   string
	DefaultKDF       model.KDFParams
	LockoutThreshold int
	LockoutDuration  time.Duration
}

// RegisterInput is a validated registration request.
type RegisterInput struct {
	Email           string
	AuthVerifier    string
	KDF             model.KDFParams
	WrappedVaultKey *string
	InitialVault    *VaultWrite
	Device          model.DeviceDescriptor
}

// LoginInput is a validated login request.
type LoginInput struct {
	Email        string
	AuthVerifier string
	Device       model.DeviceDescriptor
}

// ChangePasswordInput is a validated change-password request.
type ChangePasswordInput struct {
	CurrentAuthVerifier string
	NewAuthVerifier     string
	NewWrappedVaultKey  string
	NewKDF              *model.KDFParams
}

// AuthResult is returned by registration and login.
type AuthResult struct {
	User        model.User
	Device      model.Device
	DeviceIsNew bool
	Tokens      model.TokenPair
}

// Auth implements the zero-knowledge credential flow. The server only ever
// sees a verifier derived on the client and stores its argon2id hash.
type Auth struct {
	cfg       AuthConfig
	users     model.UserStore
	hasher    model.VerifierHasher
	sessions  *SessionManager
	devices   *Device
	vaults    *Vault
	prelogin  model.PreloginCache
	tx        model.Transactor
	auditor   model.Auditor
	logger    *logger.Logger
	now       func() time.Time
	dummyHash string
}

func NewAuth(
	cfg AuthConfig,
	users model.UserStore,
	hasher model.VerifierHasher,
	sessions *SessionManager,
	devices *Device,
	vaults *Vault,
	prelogin model.PreloginCache,
	tx model.Transactor,
	auditor model.Auditor,
	logger *logger.Logger,
) (*Auth, error) {
	// unknown emails are verified against this hash so that both paths cost the same
	dummyHash, err := hasher.Hash(dummyVerifier)
	if err != nil {
		return nil, fmt.Errorf("failed to compute dummy hash: %w", err)
	}

	return &Auth{
		cfg:       cfg,
		users:     users,
		hasher:    hasher,
		sessions:  sessions,
		devices:   devices,
		vaults:    vaults,
		prelogin:  prelogin,
		tx:        tx,
		auditor:   auditor,
		logger:    logger,
		now:       time.Now,
		dummyHash: dummyHash,
	}, nil
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *Auth) Register(ctx context.Context, in RegisterInput, meta model.RequestMeta) (AuthResult, error) {
	ctx, span := tracer.Start(ctx, "Auth.Register")
	defer span.End()

	email := NormalizeEmail(in.Email)
	a.logger.Debug("Auth service: starting user registration",
		"email", email)

	_, err := a.users.GetByEmail(ctx, email)
	if err == nil {
		return AuthResult{}, apperr.Conflict("email already registered")
	}
	if !errors.Is(err, model.ErrNotFound) {
		a.logger.Error("Auth service: failed to get user by email",
			"email", email,
			"error", err.Error())
		return AuthResult{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	verifierHash, err := a.hasher.Hash(in.AuthVerifier)
	if err != nil {
		return AuthResult{}, fmt.Errorf("failed to hash verifier: %w", err)
	}

	now := a.now().UTC()
	hasMasterPassword := in.WrappedVaultKey != nil && in.InitialVault != nil
	user := model.User{
		ID:                uuid.New(),
		Email:             email,
		VerifierHash:      verifierHash,
		KDF:               in.KDF,
		HasMasterPassword: hasMasterPassword,
		Status:            model.UserStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if hasMasterPassword {
		user.WrappedVaultKey = in.WrappedVaultKey
	}

	var (
		device      model.Device
		deviceIsNew bool
		vault       model.Vault
	)
	err = a.tx.WithinTx(ctx, func(ctx context.Context) error {
		created, err := a.users.Create(ctx, user)
		if err != nil {
			return err
		}
		user = created

		if hasMasterPassword {
			if vault, err = a.vaults.Create(ctx, user.ID, *in.InitialVault); err != nil {
				return err
			}
		}

		device, deviceIsNew, err = a.devices.FindOrCreate(ctx, user.ID, in.Device, meta)
		return err
	})
	if errors.Is(err, model.ErrAlreadyExists) {
		return AuthResult{}, apperr.Conflict("email already registered")
	}
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return AuthResult{}, err
		}
		a.logger.Error("Auth service: failed to register user",
			"email", email,
			"error", err.Error())
		return AuthResult{}, fmt.Errorf("failed to register user: %w", err)
	}
	if hasMasterPassword {
		a.vaults.Archive(ctx, vault)
	}

	tokens, session, err := a.sessions.Create(ctx, user, device.ID, meta)
	if err != nil {
		return AuthResult{}, err
	}

	a.auditor.Log(ctx, model.AuditEntry{
		UserID:    &user.ID,
		Action:    model.AuditUserRegister,
		Status:    model.AuditSuccess,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata: map[string]any{
			"deviceId":  device.ID.String(),
			"sessionId": session.ID.String(),
		},
	})

	a.logger.Info("Auth service: user registered",
		"user_id", user.ID)

	return AuthResult{User: user, Device: device, DeviceIsNew: deviceIsNew, Tokens: tokens}, nil
}

// Prelogin returns the KDF parameters for email. Unknown emails get
// parameters derived from a server secret so that they are stable per email
// and indistinguishable from real ones.
func (a *Auth) Prelogin(ctx context.Context, email string) (model.KDFParams, error) {
	email = NormalizeEmail(email)

	kdf, ok, err := a.prelogin.Get(ctx, email)
	if err != nil {
		a.logger.Warn("Auth service: prelogin cache unavailable",
			"error", err.Error())
	}
	if ok {
		return kdf, nil
	}

	user, err := a.users.GetByEmail(ctx, email)
	if errors.Is(err, model.ErrNotFound) {
		return a.fakeKDF(email), nil
	}
	if err != nil {
		return model.KDFParams{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	if err := a.prelogin.Set(ctx, email, user.KDF, preloginCacheTTL); err != nil {
		a.logger.Warn("Auth service: failed to cache prelogin params",
			"error", err.Error())
	}

	return user.KDF, nil
}

func (a *Auth) fakeKDF(email string) model.KDFParams {
	mac := hmac.New(sha256.New, []byte(a.cfg.PreloginSecret))
	mac.Write([]byte(email))
	sum := mac.Sum(nil)

	return model.KDFParams{
		Algorithm:   model.KDFArgon2id,
		Salt:        base64.StdEncoding.EncodeToString(sum[:fakeSaltLength]),
		Memory:      a.cfg.DefaultKDF.Memory,
		Iterations:  a.cfg.DefaultKDF.Iterations,
		Parallelism: a.cfg.DefaultKDF.Parallelism,
	}
}

func (a *Auth) Login(ctx context.Context, in LoginInput, meta model.RequestMeta) (AuthResult, error) {
	ctx, span := tracer.Start(ctx, "Auth.Login")
	defer span.End()

	email := NormalizeEmail(in.Email)

	user, err := a.users.GetByEmail(ctx, email)
	if errors.Is(err, model.ErrNotFound) {
		_, _ = a.hasher.Verify(in.AuthVerifier, a.dummyHash)
		return AuthResult{}, apperr.Unauthorized("invalid email or password")
	}
	if err != nil {
		return AuthResult{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	now := a.now().UTC()
	if user.Status == model.UserStatusSuspended {
		a.loginFailed(ctx, user, meta, "account suspended")
		return AuthResult{}, apperr.Forbidden("account is suspended")
	}
	if user.IsLocked(now) {
		a.loginFailed(ctx, user, meta, "account locked")
		return AuthResult{}, apperr.Forbidden("account is locked, try again later")
	}

	ok, err := a.hasher.Verify(in.AuthVerifier, user.VerifierHash)
	if err != nil {
		return AuthResult{}, fmt.Errorf("failed to verify verifier: %w", err)
	}
	if !ok {
		updated, err := a.users.IncrementFailedAttempts(ctx, user.ID, a.cfg.LockoutThreshold, now.Add(a.cfg.LockoutDuration), now)
		if err != nil {
			a.logger.Error("Auth service: failed to record failed attempt",
				"user_id", user.ID,
				"error", err.Error())
		} else if updated.IsLocked(now) {
			a.logger.Warn("Auth service: account locked",
				"user_id", user.ID,
				"attempts", updated.FailedLoginAttempts)
		}
		a.loginFailed(ctx, user, meta, "invalid password")
		return AuthResult{}, apperr.Unauthorized("invalid email or password")
	}

	if err := a.users.ResetFailedAttempts(ctx, user.ID, now); err != nil {
		return AuthResult{}, fmt.Errorf("failed to reset failed attempts: %w", err)
	}
	user.FailedLoginAttempts = 0
	user.LockoutUntil = nil
	user.LastLoginAt = &now

	device, deviceIsNew, err := a.devices.FindOrCreate(ctx, user.ID, in.Device, meta)
	if err != nil {
		return AuthResult{}, err
	}

	tokens, session, err := a.sessions.Create(ctx, user, device.ID, meta)
	if err != nil {
		return AuthResult{}, err
	}

	a.auditor.Log(ctx, model.AuditEntry{
		UserID:    &user.ID,
		Action:    model.AuditUserLogin,
		Status:    model.AuditSuccess,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata: map[string]any{
			"deviceId":  device.ID.String(),
			"sessionId": session.ID.String(),
		},
	})

	return AuthResult{User: user, Device: device, DeviceIsNew: deviceIsNew, Tokens: tokens}, nil
}

func (a *Auth) loginFailed(ctx context.Context, user model.User, meta model.RequestMeta, reason string) {
	a.auditor.Log(ctx, model.AuditEntry{
		UserID:    &user.ID,
		Action:    model.AuditUserLoginFailed,
		Status:    model.AuditFailure,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata:  map[string]any{"reason": reason},
	})
}

func (a *Auth) Refresh(ctx context.Context, refreshToken string, meta model.RequestMeta) (model.TokenPair, error) {
	return a.sessions.Rotate(ctx, refreshToken, meta)
}

// Logout revokes the caller's session.
func (a *Auth) Logout(ctx context.Context, principal model.Principal, meta model.RequestMeta) error {
	if err := a.sessions.Revoke(ctx, principal.SessionID, model.RevokeReasonLogout); err != nil {
		return err
	}

	a.auditor.Log(ctx, model.AuditEntry{
		UserID:    &principal.UserID,
		Action:    model.AuditUserLogout,
		Status:    model.AuditSuccess,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata:  map[string]any{"sessionId": principal.SessionID.String()},
	})
	return nil
}

// ChangePassword replaces the verifier and wrapped key and signs out every
// other session of the user.
func (a *Auth) ChangePassword(ctx context.Context, principal model.Principal, in ChangePasswordInput, meta model.RequestMeta) error {
	ctx, span := tracer.Start(ctx, "Auth.ChangePassword")
	defer span.End()

	user, err := a.users.GetByID(ctx, principal.UserID)
	if errors.Is(err, model.ErrNotFound) {
		return apperr.NotFound("user not found")
	}
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	ok, err := a.hasher.Verify(in.CurrentAuthVerifier, user.VerifierHash)
	if err != nil {
		return fmt.Errorf("failed to verify verifier: %w", err)
	}
	if !ok {
		a.auditor.Log(ctx, model.AuditEntry{
			UserID:    &user.ID,
			Action:    model.AuditUserPasswordChange,
			Status:    model.AuditFailure,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			Metadata:  map[string]any{"reason": "invalid current password"},
		})
		return apperr.Unauthorized("current password is incorrect")
	}

	newHash, err := a.hasher.Hash(in.NewAuthVerifier)
	if err != nil {
		return fmt.Errorf("failed to hash verifier: %w", err)
	}

	now := a.now().UTC()
	wrapped := in.NewWrappedVaultKey
	err = a.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := a.users.SetVerifier(ctx, user.ID, newHash, &wrapped, now); err != nil {
			return err
		}
		if in.NewKDF != nil {
			return a.users.SetKDF(ctx, user.ID, *in.NewKDF, now)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}

	if in.NewKDF != nil {
		if err := a.prelogin.Delete(ctx, user.Email); err != nil {
			a.logger.Warn("Auth service: failed to evict prelogin cache",
				"user_id", user.ID,
				"error", err.Error())
		}
	}

	// the new credentials are committed, so a revocation failure must not
	// tell the client the change was rejected
	revoked, err := a.sessions.RevokeAllExcept(ctx, user.ID, principal.SessionID, model.RevokeReasonPasswordChanged)
	revocationFailed := err != nil
	if revocationFailed {
		a.logger.Error("Auth service: failed to revoke sessions after password change",
			"user_id", user.ID,
			"error", err.Error())
	}

	a.auditor.Log(ctx, model.AuditEntry{
		UserID:    &user.ID,
		Action:    model.AuditUserPasswordChange,
		Status:    model.AuditSuccess,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata: map[string]any{
			"revokedSessions":  revoked,
			"kdfChanged":       in.NewKDF != nil,
			"revocationFailed": revocationFailed,
		},
	})

	return nil
}

// SetMasterPassword stores the wrapped vault key and first vault of an
// account registered without one.
func (a *Auth) SetMasterPassword(ctx context.Context, principal model.Principal, wrappedVaultKey string, initial VaultWrite, meta model.RequestMeta) error {
	now := a.now().UTC()

	var vault model.Vault
	err := a.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := a.users.SetMasterPassword(ctx, principal.UserID, wrappedVaultKey, now); err != nil {
			return err
		}
		var err error
		vault, err = a.vaults.Create(ctx, principal.UserID, initial)
		return err
	})
	switch {
	case errors.Is(err, model.ErrAlreadyExists):
		return apperr.Conflict("master password is already set")
	case errors.Is(err, model.ErrNotFound):
		return apperr.NotFound("user not found")
	case err != nil:
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return err
		}
		return fmt.Errorf("failed to set master password: %w", err)
	}

	a.vaults.Archive(ctx, vault)

	a.auditor.Log(ctx, model.AuditEntry{
		UserID:    &principal.UserID,
		Action:    model.AuditUserPasswordChange,
		Status:    model.AuditSuccess,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata:  map[string]any{"action": "master password set"},
	})

	return nil
}
