// Package mocks holds testify mocks of the model interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dtroode/vault-protector/internal/model"
)

type UserStore struct {
	mock.Mock
}

func (m *UserStore) GetByEmail(ctx context.Context, email string) (model.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserStore) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserStore) Create(ctx context.Context, user model.User) (model.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserStore) IncrementFailedAttempts(ctx context.Context, id uuid.UUID, threshold int, lockoutUntil, now time.Time) (model.User, error) {
	args := m.Called(ctx, id, threshold, lockoutUntil, now)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserStore) ResetFailedAttempts(ctx context.Context, id uuid.UUID, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

func (m *UserStore) SetVerifier(ctx context.Context, id uuid.UUID, verifierHash string, wrappedVaultKey *string, now time.Time) error {
	args := m.Called(ctx, id, verifierHash, wrappedVaultKey, now)
	return args.Error(0)
}

func (m *UserStore) SetKDF(ctx context.Context, id uuid.UUID, kdf model.KDFParams, now time.Time) error {
	args := m.Called(ctx, id, kdf, now)
	return args.Error(0)
}

func (m *UserStore) SetMasterPassword(ctx context.Context, id uuid.UUID, wrappedVaultKey string, now time.Time) error {
	args := m.Called(ctx, id, wrappedVaultKey, now)
	return args.Error(0)
}

func (m *UserStore) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type DeviceStore struct {
	mock.Mock
}

func (m *DeviceStore) Upsert(ctx context.Context, device model.Device) (model.Device, bool, error) {
	args := m.Called(ctx, device)
	return args.Get(0).(model.Device), args.Bool(1), args.Error(2)
}

func (m *DeviceStore) GetByID(ctx context.Context, userID, deviceID uuid.UUID) (model.Device, error) {
	args := m.Called(ctx, userID, deviceID)
	return args.Get(0).(model.Device), args.Error(1)
}

func (m *DeviceStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Device, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]model.Device), args.Error(1)
}

func (m *DeviceStore) UpdateName(ctx context.Context, userID, deviceID uuid.UUID, name string, now time.Time) (model.Device, error) {
	args := m.Called(ctx, userID, deviceID, name, now)
	return args.Get(0).(model.Device), args.Error(1)
}

func (m *DeviceStore) SetTrusted(ctx context.Context, userID, deviceID uuid.UUID, now time.Time) (model.Device, error) {
	args := m.Called(ctx, userID, deviceID, now)
	return args.Get(0).(model.Device), args.Error(1)
}

func (m *DeviceStore) Delete(ctx context.Context, userID, deviceID uuid.UUID) error {
	args := m.Called(ctx, userID, deviceID)
	return args.Error(0)
}

type SessionStore struct {
	mock.Mock
}

func (m *SessionStore) Create(ctx context.Context, session model.Session) (model.Session, error) {
	args := m.Called(ctx, session)
	return args.Get(0).(model.Session), args.Error(1)
}

func (m *SessionStore) GetByID(ctx context.Context, id uuid.UUID) (model.Session, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Session), args.Error(1)
}

func (m *SessionStore) RotateRefreshHash(ctx context.Context, id uuid.UUID, oldHash, newHash []byte, now time.Time) error {
	args := m.Called(ctx, id, oldHash, newHash, now)
	return args.Error(0)
}

func (m *SessionStore) ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]model.SessionWithDevice, error) {
	args := m.Called(ctx, userID, now)
	return args.Get(0).([]model.SessionWithDevice), args.Error(1)
}

func (m *SessionStore) Revoke(ctx context.Context, id uuid.UUID, reason string, now time.Time) (model.Session, error) {
	args := m.Called(ctx, id, reason, now)
	return args.Get(0).(model.Session), args.Error(1)
}

func (m *SessionStore) RevokeFamily(ctx context.Context, family string, reason string, now time.Time) ([]model.Session, error) {
	args := m.Called(ctx, family, reason, now)
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *SessionStore) RevokeAllForUser(ctx context.Context, userID, exceptID uuid.UUID, reason string, now time.Time) ([]model.Session, error) {
	args := m.Called(ctx, userID, exceptID, reason, now)
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *SessionStore) RevokeByDevice(ctx context.Context, userID, deviceID uuid.UUID, reason string, now time.Time) ([]model.Session, error) {
	args := m.Called(ctx, userID, deviceID, reason, now)
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *SessionStore) DeleteStale(ctx context.Context, before time.Time, limit int) (int64, error) {
	args := m.Called(ctx, before, limit)
	return args.Get(0).(int64), args.Error(1)
}

type VaultStore struct {
	mock.Mock
}

func (m *VaultStore) Create(ctx context.Context, vault model.Vault) (model.Vault, error) {
	args := m.Called(ctx, vault)
	return args.Get(0).(model.Vault), args.Error(1)
}

func (m *VaultStore) GetByUserID(ctx context.Context, userID uuid.UUID) (model.Vault, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(model.Vault), args.Error(1)
}

func (m *VaultStore) GetSyncStatus(ctx context.Context, userID uuid.UUID) (model.SyncStatus, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(model.SyncStatus), args.Error(1)
}

func (m *VaultStore) CompareAndSwap(ctx context.Context, vault model.Vault, expectedVersion int64) (model.Vault, error) {
	args := m.Called(ctx, vault, expectedVersion)
	return args.Get(0).(model.Vault), args.Error(1)
}

func (m *VaultStore) Delete(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type VaultVersionStore struct {
	mock.Mock
}

func (m *VaultVersionStore) Create(ctx context.Context, version model.VaultVersion) error {
	args := m.Called(ctx, version)
	return args.Error(0)
}

func (m *VaultVersionStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.VaultVersion, error) {
	args := m.Called(ctx, userID, limit)
	return args.Get(0).([]model.VaultVersion), args.Error(1)
}

type AuditStore struct {
	mock.Mock
}

func (m *AuditStore) Create(ctx context.Context, entry model.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *AuditStore) ListByUser(ctx context.Context, userID uuid.UUID, filter model.AuditFilter) ([]model.AuditEntry, int, error) {
	args := m.Called(ctx, userID, filter)
	return args.Get(0).([]model.AuditEntry), args.Int(1), args.Error(2)
}

func (m *AuditStore) DeleteOlderThan(ctx context.Context, before time.Time, limit int) (int64, error) {
	args := m.Called(ctx, before, limit)
	return args.Get(0).(int64), args.Error(1)
}

func (m *AuditStore) AnonymizeUser(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}
