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

var _ model.DeviceStore = (*DeviceRepository)(nil)

type DeviceRepository struct {
	db *Connection
}

func NewDeviceRepository(db *Connection) *DeviceRepository {
	return &DeviceRepository{db: db}
}

const deviceColumns = `id, user_id, name, platform, fingerprint_hash, trusted, last_seen_at, last_ip_address, created_at, updated_at`

func scanDevice(row pgx.Row) (model.Device, error) {
	var d model.Device
	err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.Platform, &d.FingerprintHash, &d.Trusted,
		&d.LastSeenAt, &d.LastIPAddress, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Device{}, model.ErrNotFound
		}
		return model.Device{}, err
	}
	return d, nil
}

// Upsert inserts device or refreshes the existing row with the same
// (user_id, fingerprint_hash). created_at is never touched on conflict.
// xmax is zero only for a row this statement inserted.
func (r *DeviceRepository) Upsert(ctx context.Context, device model.Device) (model.Device, bool, error) {
	query := `INSERT INTO devices (id, user_id, name, platform, fingerprint_hash, trusted, last_seen_at, last_ip_address, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7, $6, $6)
			  ON CONFLICT (user_id, fingerprint_hash) DO UPDATE SET
				name = EXCLUDED.name,
				platform = EXCLUDED.platform,
				last_seen_at = EXCLUDED.last_seen_at,
				last_ip_address = EXCLUDED.last_ip_address,
				updated_at = EXCLUDED.updated_at
			  RETURNING ` + deviceColumns + `, (xmax = 0) AS inserted`

	var (
		saved    model.Device
		inserted bool
	)
	err := r.db.q(ctx).QueryRow(ctx, query,
		device.ID, device.UserID, device.Name, device.Platform, device.FingerprintHash, device.LastSeenAt, device.LastIPAddress,
	).Scan(&saved.ID, &saved.UserID, &saved.Name, &saved.Platform, &saved.FingerprintHash, &saved.Trusted,
		&saved.LastSeenAt, &saved.LastIPAddress, &saved.CreatedAt, &saved.UpdatedAt, &inserted)
	if err != nil {
		return model.Device{}, false, fmt.Errorf("failed to upsert device: %w", err)
	}
	return saved, inserted, nil
}

func (r *DeviceRepository) GetByID(ctx context.Context, userID, deviceID uuid.UUID) (model.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1 AND user_id = $2`

	d, err := scanDevice(r.db.q(ctx).QueryRow(ctx, query, deviceID, userID))
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.Device{}, fmt.Errorf("failed to get device: %w", err)
	}
	return d, err
}

func (r *DeviceRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE user_id = $1 ORDER BY last_seen_at DESC, created_at DESC`

	rows, err := r.db.q(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}
	return devices, nil
}

func (r *DeviceRepository) UpdateName(ctx context.Context, userID, deviceID uuid.UUID, name string, now time.Time) (model.Device, error) {
	query := `UPDATE devices SET name = $3, updated_at = $4 WHERE id = $1 AND user_id = $2 RETURNING ` + deviceColumns

	d, err := scanDevice(r.db.q(ctx).QueryRow(ctx, query, deviceID, userID, name, now))
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.Device{}, fmt.Errorf("failed to rename device: %w", err)
	}
	return d, err
}

func (r *DeviceRepository) SetTrusted(ctx context.Context, userID, deviceID uuid.UUID, now time.Time) (model.Device, error) {
	query := `UPDATE devices SET trusted = TRUE, updated_at = $3 WHERE id = $1 AND user_id = $2 RETURNING ` + deviceColumns

	d, err := scanDevice(r.db.q(ctx).QueryRow(ctx, query, deviceID, userID, now))
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.Device{}, fmt.Errorf("failed to trust device: %w", err)
	}
	return d, err
}

func (r *DeviceRepository) Delete(ctx context.Context, userID, deviceID uuid.UUID) error {
	cmd, err := r.db.q(ctx).Exec(ctx, `DELETE FROM devices WHERE id = $1 AND user_id = $2`, deviceID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
