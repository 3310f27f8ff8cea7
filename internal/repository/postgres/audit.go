package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/vault-protector/internal/model"
)

var _ model.AuditStore = (*AuditRepository)(nil)

type AuditRepository struct {
	db *Connection
}

func NewAuditRepository(db *Connection) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, e model.AuditEntry) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode audit metadata: %w", err)
	}
	if e.Metadata == nil {
		metadata = []byte("{}")
	}

	query := `INSERT INTO audit_logs (id, user_id, action, status, ip_address, user_agent, metadata, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err := r.db.q(ctx).Exec(ctx, query, e.ID, e.UserID, e.Action, e.Status, e.IPAddress, e.UserAgent, metadata, e.CreatedAt); err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}
	return nil
}

// ListByUser returns one page of the user's entries, newest first, and the total count.
func (r *AuditRepository) ListByUser(ctx context.Context, userID uuid.UUID, f model.AuditFilter) ([]model.AuditEntry, int, error) {
	where := `WHERE user_id = $1 AND ($2 = '' OR action = $2)`

	var total int
	if err := r.db.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs `+where, userID, string(f.Action)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	query := `SELECT id, user_id, action, status, ip_address, user_agent, metadata, created_at
			  FROM audit_logs ` + where + ` ORDER BY created_at DESC LIMIT $3 OFFSET $4`

	rows, err := r.db.q(ctx).Query(ctx, query, userID, string(f.Action), f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var (
			e        model.AuditEntry
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Status, &e.IPAddress, &e.UserAgent, &metadata, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, 0, fmt.Errorf("failed to decode audit metadata: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate audit entries: %w", err)
	}
	return entries, total, nil
}

// DeleteOlderThan removes up to limit entries created before before.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, before time.Time, limit int) (int64, error) {
	query := `DELETE FROM audit_logs WHERE id IN (SELECT id FROM audit_logs WHERE created_at < $1 LIMIT $2)`

	cmd, err := r.db.q(ctx).Exec(ctx, query, before, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit entries: %w", err)
	}
	return cmd.RowsAffected(), nil
}

// AnonymizeUser detaches the user's entries and strips client identifiers.
func (r *AuditRepository) AnonymizeUser(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE audit_logs SET user_id = NULL, ip_address = '', user_agent = '' WHERE user_id = $1`

	if _, err := r.db.q(ctx).Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to anonymize audit entries: %w", err)
	}
	return nil
}
