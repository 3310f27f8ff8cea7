package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dtroode/vault-protector/internal/model"
)

var _ model.VaultStore = (*VaultRepository)(nil)

type VaultRepository struct {
	db *Connection
}

func NewVaultRepository(db *Connection) *VaultRepository {
	return &VaultRepository{db: db}
}

const vaultColumns = `user_id, blob, algorithm, iv, auth_tag, version, checksum, blob_format_version,
	last_synced_at, created_at, updated_at`

func scanVault(row pgx.Row) (model.Vault, error) {
	var v model.Vault
	err := row.Scan(&v.UserID, &v.Blob, &v.Encryption.Algorithm, &v.Encryption.IV, &v.Encryption.AuthTag,
		&v.Version, &v.Checksum, &v.BlobFormatVersion, &v.LastSyncedAt, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Vault{}, model.ErrNotFound
		}
		return model.Vault{}, err
	}
	return v, nil
}

func (r *VaultRepository) Create(ctx context.Context, v model.Vault) (model.Vault, error) {
	query := `INSERT INTO vaults (user_id, blob, algorithm, iv, auth_tag, version, checksum, blob_format_version,
			  last_synced_at, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, 1, $6, $7, $8, $8, $8)
			  RETURNING ` + vaultColumns

	saved, err := scanVault(r.db.q(ctx).QueryRow(ctx, query,
		v.UserID, v.Blob, v.Encryption.Algorithm, v.Encryption.IV, v.Encryption.AuthTag,
		v.Checksum, v.BlobFormatVersion, v.LastSyncedAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return model.Vault{}, model.ErrAlreadyExists
		}
		return model.Vault{}, fmt.Errorf("failed to create vault: %w", err)
	}
	return saved, nil
}

func (r *VaultRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (model.Vault, error) {
	query := `SELECT ` + vaultColumns + ` FROM vaults WHERE user_id = $1`

	v, err := scanVault(r.db.q(ctx).QueryRow(ctx, query, userID))
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.Vault{}, fmt.Errorf("failed to get vault: %w", err)
	}
	return v, err
}

func (r *VaultRepository) GetSyncStatus(ctx context.Context, userID uuid.UUID) (model.SyncStatus, error) {
	query := `SELECT version, checksum, last_synced_at FROM vaults WHERE user_id = $1`

	var s model.SyncStatus
	err := r.db.q(ctx).QueryRow(ctx, query, userID).Scan(&s.Version, &s.Checksum, &s.LastSyncedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SyncStatus{}, model.ErrNotFound
		}
		return model.SyncStatus{}, fmt.Errorf("failed to get sync status: %w", err)
	}
	return s, nil
}

// CompareAndSwap writes the vault only if its stored version equals
// expectedVersion, bumping the version by exactly one.
func (r *VaultRepository) CompareAndSwap(ctx context.Context, v model.Vault, expectedVersion int64) (model.Vault, error) {
	query := `UPDATE vaults SET
				blob = $3, algorithm = $4, iv = $5, auth_tag = $6, checksum = $7, blob_format_version = $8,
				version = version + 1, last_synced_at = $9, updated_at = $9
			  WHERE user_id = $1 AND version = $2
			  RETURNING ` + vaultColumns

	saved, err := scanVault(r.db.q(ctx).QueryRow(ctx, query,
		v.UserID, expectedVersion, v.Blob, v.Encryption.Algorithm, v.Encryption.IV, v.Encryption.AuthTag,
		v.Checksum, v.BlobFormatVersion, v.LastSyncedAt,
	))
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.Vault{}, fmt.Errorf("failed to update vault: %w", err)
	}

	// No row matched: either the vault is missing or another writer won.
	status, err := r.GetSyncStatus(ctx, v.UserID)
	if err != nil {
		return model.Vault{}, err
	}
	return model.Vault{}, &model.VersionConflictError{Expected: expectedVersion, Current: status.Version}
}

func (r *VaultRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.q(ctx).Exec(ctx, `DELETE FROM vaults WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete vault: %w", err)
	}
	return nil
}
