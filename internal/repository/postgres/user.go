package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dtroode/vault-protector/internal/model"
)

var _ model.UserStore = (*UserRepository)(nil)

type UserRepository struct {
	db *Connection
}

func NewUserRepository(db *Connection) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

const userColumns = `id, email, verifier_hash, kdf_algorithm, kdf_salt, kdf_memory, kdf_iterations, kdf_parallelism,
	wrapped_vault_key, has_master_password, email_verified, status, failed_login_attempts, lockout_until,
	last_login_at, password_changed_at, created_at, updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID, &u.Email, &u.VerifierHash, &u.KDF.Algorithm, &u.KDF.Salt, &u.KDF.Memory, &u.KDF.Iterations, &u.KDF.Parallelism,
		&u.WrappedVaultKey, &u.HasMasterPassword, &u.EmailVerified, &u.Status, &u.FailedLoginAttempts, &u.LockoutUntil,
		&u.LastLoginAt, &u.PasswordChangedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, err
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.q(ctx).QueryRow(ctx, query, email))
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, err
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.q(ctx).QueryRow(ctx, query, id))
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.User{}, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, err
}

func (r *UserRepository) Create(ctx context.Context, user model.User) (model.User, error) {
	query := `INSERT INTO users (id, email, verifier_hash, kdf_algorithm, kdf_salt, kdf_memory, kdf_iterations,
			  kdf_parallelism, wrapped_vault_key, has_master_password, email_verified, status, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			  RETURNING ` + userColumns

	saved, err := scanUser(r.db.q(ctx).QueryRow(ctx, query,
		user.ID, user.Email, user.VerifierHash, user.KDF.Algorithm, user.KDF.Salt, user.KDF.Memory, user.KDF.Iterations,
		user.KDF.Parallelism, user.WrappedVaultKey, user.HasMasterPassword, user.EmailVerified, user.Status,
		user.CreatedAt, user.UpdatedAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, model.ErrAlreadyExists
		}
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	return saved, nil
}

// IncrementFailedAttempts counts a failed login in a single statement. A
// lockout that already elapsed restarts the count at one.
func (r *UserRepository) IncrementFailedAttempts(ctx context.Context, id uuid.UUID, threshold int, lockoutUntil, now time.Time) (model.User, error) {
	query := `WITH next AS (
				SELECT id,
					CASE WHEN lockout_until IS NOT NULL AND lockout_until <= $2 THEN 1
						 ELSE failed_login_attempts + 1 END AS attempts,
					lockout_until IS NOT NULL AND lockout_until <= $2 AS expired
				FROM users WHERE id = $1 FOR UPDATE
			  )
			  UPDATE users u SET
				failed_login_attempts = next.attempts,
				status = CASE WHEN next.attempts >= $3 THEN 'locked'
							  WHEN next.expired AND u.status = 'locked' THEN 'active'
							  ELSE u.status END,
				lockout_until = CASE WHEN next.attempts >= $3 THEN $4
									 WHEN next.expired THEN NULL
									 ELSE u.lockout_until END,
				updated_at = $2
			  FROM next WHERE u.id = next.id
			  RETURNING ` + prefixed("u.", userColumns)

	user, err := scanUser(r.db.q(ctx).QueryRow(ctx, query, id, now, threshold, lockoutUntil))
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.User{}, fmt.Errorf("failed to increment failed attempts: %w", err)
	}
	return user, err
}

func (r *UserRepository) ResetFailedAttempts(ctx context.Context, id uuid.UUID, now time.Time) error {
	query := `UPDATE users SET
				failed_login_attempts = 0,
				lockout_until = NULL,
				status = CASE WHEN status = 'locked' THEN 'active' ELSE status END,
				last_login_at = $2,
				updated_at = $2
			  WHERE id = $1`

	return r.execOne(ctx, "reset failed attempts", query, id, now)
}

func (r *UserRepository) SetVerifier(ctx context.Context, id uuid.UUID, verifierHash string, wrappedVaultKey *string, now time.Time) error {
	query := `UPDATE users SET
				verifier_hash = $2,
				wrapped_vault_key = COALESCE($3, wrapped_vault_key),
				password_changed_at = $4,
				updated_at = $4
			  WHERE id = $1`

	return r.execOne(ctx, "set verifier", query, id, verifierHash, wrappedVaultKey, now)
}

func (r *UserRepository) SetKDF(ctx context.Context, id uuid.UUID, kdf model.KDFParams, now time.Time) error {
	query := `UPDATE users SET
				kdf_algorithm = $2, kdf_salt = $3, kdf_memory = $4, kdf_iterations = $5, kdf_parallelism = $6,
				updated_at = $7
			  WHERE id = $1`

	return r.execOne(ctx, "set kdf", query, id, kdf.Algorithm, kdf.Salt, kdf.Memory, kdf.Iterations, kdf.Parallelism, now)
}

// SetMasterPassword stores the wrapped key only while none is set.
// Returns ErrAlreadyExists when the user already has one.
func (r *UserRepository) SetMasterPassword(ctx context.Context, id uuid.UUID, wrappedVaultKey string, now time.Time) error {
	query := `UPDATE users SET wrapped_vault_key = $2, has_master_password = TRUE, updated_at = $3
			  WHERE id = $1 AND has_master_password = FALSE`

	err := r.execOne(ctx, "set master password", query, id, wrappedVaultKey, now)
	if errors.Is(err, model.ErrNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return model.ErrAlreadyExists
	}
	return err
}

func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.execOne(ctx, "delete user", `DELETE FROM users WHERE id = $1`, id)
}

func (r *UserRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	cmd, err := r.db.q(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if cmd.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
