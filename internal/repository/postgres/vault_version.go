package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dtroode/vault-protector/internal/model"
)

var _ model.VaultVersionStore = (*VaultVersionRepository)(nil)

type VaultVersionRepository struct {
	db *Connection
}

func NewVaultVersionRepository(db *Connection) *VaultVersionRepository {
	return &VaultVersionRepository{db: db}
}

func (r *VaultVersionRepository) Create(ctx context.Context, v model.VaultVersion) error {
	query := `INSERT INTO vault_versions (id, user_id, version, checksum, object_key, size_bytes, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  ON CONFLICT (user_id, version) DO NOTHING`

	if _, err := r.db.q(ctx).Exec(ctx, query, v.ID, v.UserID, v.Version, v.Checksum, v.ObjectKey, v.SizeBytes, v.CreatedAt); err != nil {
		return fmt.Errorf("failed to create vault version: %w", err)
	}
	return nil
}

func (r *VaultVersionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.VaultVersion, error) {
	query := `SELECT id, user_id, version, checksum, object_key, size_bytes, created_at
			  FROM vault_versions WHERE user_id = $1 ORDER BY version DESC LIMIT $2`

	rows, err := r.db.q(ctx).Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list vault versions: %w", err)
	}
	defer rows.Close()

	var versions []model.VaultVersion
	for rows.Next() {
		var v model.VaultVersion
		if err := rows.Scan(&v.ID, &v.UserID, &v.Version, &v.Checksum, &v.ObjectKey, &v.SizeBytes, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vault version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vault versions: %w", err)
	}
	return versions, nil
}
