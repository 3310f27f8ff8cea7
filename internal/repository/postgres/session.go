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

var _ model.SessionStore = (*SessionRepository)(nil)

type SessionRepository struct {
	db *Connection
}

func NewSessionRepository(db *Connection) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, device_id, refresh_token_hash, family, ip_address, user_agent,
	expires_at, last_activity_at, revoked_at, revoked_reason, created_at`

func scanSession(row pgx.Row) (model.Session, error) {
	var s model.Session
	err := row.Scan(&s.ID, &s.UserID, &s.DeviceID, &s.RefreshTokenHash, &s.Family, &s.IPAddress, &s.UserAgent,
		&s.ExpiresAt, &s.LastActivityAt, &s.RevokedAt, &s.RevokedReason, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Session{}, model.ErrNotFound
		}
		return model.Session{}, err
	}
	return s, nil
}

func (r *SessionRepository) Create(ctx context.Context, s model.Session) (model.Session, error) {
	query := `INSERT INTO sessions (id, user_id, device_id, refresh_token_hash, family, ip_address, user_agent,
			  expires_at, last_activity_at, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			  RETURNING ` + sessionColumns

	saved, err := scanSession(r.db.q(ctx).QueryRow(ctx, query,
		s.ID, s.UserID, s.DeviceID, s.RefreshTokenHash, s.Family, s.IPAddress, s.UserAgent,
		s.ExpiresAt, s.LastActivityAt, s.CreatedAt,
	))
	if err != nil {
		return model.Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	return saved, nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	s, err := scanSession(r.db.q(ctx).QueryRow(ctx, query, id))
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	return s, err
}

// RotateRefreshHash is a compare-and-swap on the stored hash. Of two
// concurrent rotations presenting the same token only one matches.
func (r *SessionRepository) RotateRefreshHash(ctx context.Context, id uuid.UUID, oldHash, newHash []byte, now time.Time) error {
	query := `UPDATE sessions SET refresh_token_hash = $3, last_activity_at = $4
			  WHERE id = $1 AND refresh_token_hash = $2 AND revoked_at IS NULL AND expires_at > $4`

	cmd, err := r.db.q(ctx).Exec(ctx, query, id, oldHash, newHash, now)
	if err != nil {
		return fmt.Errorf("failed to rotate refresh hash: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return model.ErrTokenMismatch
	}
	return nil
}

func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]model.SessionWithDevice, error) {
	query := `SELECT ` + prefixed("s.", sessionColumns) + `, d.name, d.platform
			  FROM sessions s JOIN devices d ON d.id = s.device_id
			  WHERE s.user_id = $1 AND s.revoked_at IS NULL AND s.expires_at > $2
			  ORDER BY s.last_activity_at DESC`

	rows, err := r.db.q(ctx).Query(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.SessionWithDevice
	for rows.Next() {
		var s model.SessionWithDevice
		if err := rows.Scan(&s.ID, &s.UserID, &s.DeviceID, &s.RefreshTokenHash, &s.Family, &s.IPAddress, &s.UserAgent,
			&s.ExpiresAt, &s.LastActivityAt, &s.RevokedAt, &s.RevokedReason, &s.CreatedAt,
			&s.DeviceName, &s.DevicePlatform); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// Revoke marks one live session revoked. An already revoked or unknown
// session yields ErrNotFound.
func (r *SessionRepository) Revoke(ctx context.Context, id uuid.UUID, reason string, now time.Time) (model.Session, error) {
	query := `UPDATE sessions SET revoked_at = $2, revoked_reason = $3
			  WHERE id = $1 AND revoked_at IS NULL
			  RETURNING ` + sessionColumns

	s, err := scanSession(r.db.q(ctx).QueryRow(ctx, query, id, now, reason))
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.Session{}, fmt.Errorf("failed to revoke session: %w", err)
	}
	return s, err
}

func (r *SessionRepository) RevokeFamily(ctx context.Context, family string, reason string, now time.Time) ([]model.Session, error) {
	query := `UPDATE sessions SET revoked_at = $2, revoked_reason = $3
			  WHERE family = $1 AND revoked_at IS NULL
			  RETURNING ` + sessionColumns

	return r.revokeMany(ctx, "revoke family", query, family, now, reason)
}

func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID, exceptID uuid.UUID, reason string, now time.Time) ([]model.Session, error) {
	query := `UPDATE sessions SET revoked_at = $2, revoked_reason = $3
			  WHERE user_id = $1 AND id <> $4 AND revoked_at IS NULL AND expires_at > $2
			  RETURNING ` + sessionColumns

	return r.revokeMany(ctx, "revoke user sessions", query, userID, now, reason, exceptID)
}

func (r *SessionRepository) RevokeByDevice(ctx context.Context, userID, deviceID uuid.UUID, reason string, now time.Time) ([]model.Session, error) {
	query := `UPDATE sessions SET revoked_at = $2, revoked_reason = $3
			  WHERE user_id = $1 AND device_id = $4 AND revoked_at IS NULL
			  RETURNING ` + sessionColumns

	return r.revokeMany(ctx, "revoke device sessions", query, userID, now, reason, deviceID)
}

// DeleteStale removes up to limit sessions that expired or were revoked before before.
func (r *SessionRepository) DeleteStale(ctx context.Context, before time.Time, limit int) (int64, error) {
	query := `DELETE FROM sessions WHERE id IN (
				SELECT id FROM sessions
				WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)
				LIMIT $2
			  )`

	cmd, err := r.db.q(ctx).Exec(ctx, query, before, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale sessions: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *SessionRepository) revokeMany(ctx context.Context, op, query string, args ...any) ([]model.Session, error) {
	rows, err := r.db.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return sessions, nil
}
