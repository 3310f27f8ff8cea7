package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/vault-protector/internal/apperr"
	"github.com/dtroode/vault-protector/internal/logger"
	"github.com/dtroode/vault-protector/internal/model"
)

// deviceSessionRevoker revokes the sessions bound to a device.
type deviceSessionRevoker interface {
	RevokeDevice(ctx context.Context, userID, deviceID uuid.UUID, reason string) (int, error)
}

// DeviceView is a device as shown to its owner.
type DeviceView struct {
	model.Device
	IsCurrent bool
}

type Device struct {
	devices  model.DeviceStore
	sessions deviceSessionRevoker
	auditor  model.Auditor
	logger   *logger.Logger
	now      func() time.Time
}

func NewDevice(devices model.DeviceStore, sessions deviceSessionRevoker, auditor model.Auditor, logger *logger.Logger) *Device {
	return &Device{
		devices:  devices,
		sessions: sessions,
		auditor:  auditor,
		logger:   logger,
		now:      time.Now,
	}
}

// fingerprint is the stored identity of a raw client device identifier.
func fingerprint(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return hex.EncodeToString(sum[:])
}

// FindOrCreate registers the device declared by a client or refreshes the
// existing one with the same fingerprint. The flag reports a first sighting.
func (d *Device) FindOrCreate(ctx context.Context, userID uuid.UUID, desc model.DeviceDescriptor, meta model.RequestMeta) (model.Device, bool, error) {
	now := d.now().UTC()

	device, isNew, err := d.devices.Upsert(ctx, model.Device{
		ID:              uuid.New(),
		UserID:          userID,
		Name:            desc.Name,
		Platform:        desc.Platform,
		FingerprintHash: fingerprint(desc.Identifier),
		LastSeenAt:      now,
		LastIPAddress:   meta.IPAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		d.logger.Error("Device service: failed to upsert device",
			"user_id", userID,
			"error", err.Error())
		return model.Device{}, false, fmt.Errorf("failed to register device: %w", err)
	}

	if isNew {
		d.auditor.Log(ctx, model.AuditEntry{
			UserID:    &userID,
			Action:    model.AuditDeviceAdd,
			Status:    model.AuditSuccess,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			Metadata:  map[string]any{"deviceId": device.ID.String(), "platform": string(device.Platform)},
		})
	}

	return device, isNew, nil
}

// List returns the user's devices, most recently seen first.
func (d *Device) List(ctx context.Context, userID, currentDeviceID uuid.UUID) ([]DeviceView, error) {
	devices, err := d.devices.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	views := make([]DeviceView, 0, len(devices))
	for _, device := range devices {
		views = append(views, DeviceView{Device: device, IsCurrent: device.ID == currentDeviceID})
	}
	return views, nil
}

func (d *Device) Rename(ctx context.Context, userID, deviceID uuid.UUID, name string) (model.Device, error) {
	device, err := d.devices.UpdateName(ctx, userID, deviceID, name, d.now().UTC())
	if errors.Is(err, model.ErrNotFound) {
		return model.Device{}, apperr.NotFound("device not found")
	}
	if err != nil {
		return model.Device{}, fmt.Errorf("failed to rename device: %w", err)
	}
	return device, nil
}

func (d *Device) Trust(ctx context.Context, userID, deviceID uuid.UUID, meta model.RequestMeta) (model.Device, error) {
	device, err := d.devices.SetTrusted(ctx, userID, deviceID, d.now().UTC())
	if errors.Is(err, model.ErrNotFound) {
		return model.Device{}, apperr.NotFound("device not found")
	}
	if err != nil {
		return model.Device{}, fmt.Errorf("failed to trust device: %w", err)
	}

	d.auditor.Log(ctx, model.AuditEntry{
		UserID:    &userID,
		Action:    model.AuditDeviceTrust,
		Status:    model.AuditSuccess,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata:  map[string]any{"deviceId": deviceID.String()},
	})

	return device, nil
}

// Delete removes one of the caller's other devices after revoking its sessions.
func (d *Device) Delete(ctx context.Context, principal model.Principal, deviceID uuid.UUID, meta model.RequestMeta) error {
	if deviceID == principal.DeviceID {
		return apperr.Forbidden("cannot remove current device, use logout instead")
	}

	if _, err := d.devices.GetByID(ctx, principal.UserID, deviceID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return apperr.NotFound("device not found")
		}
		return fmt.Errorf("failed to get device: %w", err)
	}

	if err := d.remove(ctx, principal.UserID, deviceID, model.RevokeReasonDeviceRemoved); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return apperr.NotFound("device not found")
		}
		return err
	}

	d.auditor.Log(ctx, model.AuditEntry{
		UserID:    &principal.UserID,
		Action:    model.AuditDeviceRemove,
		Status:    model.AuditSuccess,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata:  map[string]any{"deviceId": deviceID.String()},
	})

	return nil
}

// CleanupDuplicates collapses devices sharing a name and platform into one,
// keeping the caller's current device when it is part of the group and the
// most recently seen one otherwise. It returns the number removed.
func (d *Device) CleanupDuplicates(ctx context.Context, principal model.Principal, meta model.RequestMeta) (int, error) {
	devices, err := d.devices.ListByUser(ctx, principal.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to list devices: %w", err)
	}

	type groupKey struct {
		name     string
		platform model.Platform
	}
	groups := make(map[groupKey][]model.Device)
	var order []groupKey
	for _, device := range devices {
		key := groupKey{name: strings.ToLower(device.Name), platform: device.Platform}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], device)
	}

	removed := 0
	for _, key := range order {
		group := groups[key]
		if len(group) < 2 {
			continue
		}

		keep := pickSurvivor(group, principal.DeviceID)
		for _, device := range group {
			if device.ID == keep {
				continue
			}
			if err := d.remove(ctx, principal.UserID, device.ID, model.RevokeReasonDuplicateDevice); err != nil {
				if errors.Is(err, model.ErrNotFound) {
					continue
				}
				return removed, err
			}
			removed++
		}
	}

	if removed > 0 {
		d.logger.Info("Device service: duplicate devices removed",
			"user_id", principal.UserID,
			"count", removed)
		d.auditor.Log(ctx, model.AuditEntry{
			UserID:    &principal.UserID,
			Action:    model.AuditDeviceRemove,
			Status:    model.AuditSuccess,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			Metadata:  map[string]any{"reason": model.RevokeReasonDuplicateDevice, "removedCount": removed},
		})
	}

	return removed, nil
}

func pickSurvivor(group []model.Device, currentDeviceID uuid.UUID) uuid.UUID {
	latest := group[0]
	for _, device := range group {
		if device.ID == currentDeviceID {
			return device.ID
		}
		if device.LastSeenAt.After(latest.LastSeenAt) {
			latest = device
		}
	}
	return latest.ID
}

// remove revokes the device's sessions before deleting it.
func (d *Device) remove(ctx context.Context, userID, deviceID uuid.UUID, reason string) error {
	if _, err := d.sessions.RevokeDevice(ctx, userID, deviceID, reason); err != nil {
		return fmt.Errorf("failed to revoke device sessions: %w", err)
	}
	if err := d.devices.Delete(ctx, userID, deviceID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete device: %w", err)
	}
	return nil
}
