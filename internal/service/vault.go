package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dtroode/vault-protector/internal/apperr"
	"github.com/dtroode/vault-protector/internal/logger"
	"github.com/dtroode/vault-protector/internal/model"
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 50

	// archivePurgeLimit bounds how many archived versions are purged on account deletion.
	archivePurgeLimit = 10000
)

// VaultWrite is the client payload of a vault write.
type VaultWrite struct {
	Blob              string
	Encryption        model.Encryption
	Checksum          string
	BlobFormatVersion int
}

// Vault synchronizes the single encrypted blob of each user. Writes are
// conditional on the version the client last saw.
type Vault struct {
	vaults   model.VaultStore
	versions model.VaultVersionStore
	archive  model.Storage
	auditor  model.Auditor
	logger   *logger.Logger
	now      func() time.Time
}

// NewVault creates the vault service. archive may be nil, which disables history.
func NewVault(vaults model.VaultStore, versions model.VaultVersionStore, archive model.Storage, auditor model.Auditor, logger *logger.Logger) *Vault {
	return &Vault{
		vaults:   vaults,
		versions: versions,
		archive:  archive,
		auditor:  auditor,
		logger:   logger,
		now:      time.Now,
	}
}

func archiveKey(userID uuid.UUID, version int64) string {
	return fmt.Sprintf("vaults/%s/%d.blob", userID, version)
}

func formatVersion(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

// Create stores the first version of a user's vault. It may run inside a
// transaction, so the version is not archived here; callers pass the result
// to Archive once the write is committed.
func (s *Vault) Create(ctx context.Context, userID uuid.UUID, w VaultWrite) (model.Vault, error) {
	now := s.now().UTC()

	vault, err := s.vaults.Create(ctx, model.Vault{
		UserID:            userID,
		Blob:              w.Blob,
		Encryption:        w.Encryption,
		Version:           1,
		Checksum:          w.Checksum,
		BlobFormatVersion: formatVersion(w.BlobFormatVersion),
		LastSyncedAt:      now,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if errors.Is(err, model.ErrAlreadyExists) {
		return model.Vault{}, apperr.Conflict("vault already exists")
	}
	if err != nil {
		return model.Vault{}, fmt.Errorf("failed to create vault: %w", err)
	}

	return vault, nil
}

// Get returns the user's vault. The flag is true when clientVersion is
// already current and no payload needs to be sent.
func (s *Vault) Get(ctx context.Context, userID uuid.UUID, clientVersion *int64, meta model.RequestMeta) (model.Vault, bool, error) {
	ctx, span := tracer.Start(ctx, "Vault.Get")
	defer span.End()

	vault, err := s.vaults.GetByUserID(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		return model.Vault{}, false, apperr.NotFound("vault not found")
	}
	if err != nil {
		return model.Vault{}, false, fmt.Errorf("failed to get vault: %w", err)
	}

	if clientVersion != nil && *clientVersion >= vault.Version {
		return vault, true, nil
	}

	s.auditor.Log(ctx, model.AuditEntry{
		UserID:    &userID,
		Action:    model.AuditVaultSync,
		Status:    model.AuditSuccess,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata:  map[string]any{"version": vault.Version},
	})

	return vault, false, nil
}

// Update writes a new vault version if expectedVersion is still current.
func (s *Vault) Update(ctx context.Context, principal model.Principal, expectedVersion int64, w VaultWrite, meta model.RequestMeta) (model.Vault, error) {
	ctx, span := tracer.Start(ctx, "Vault.Update")
	defer span.End()
	span.SetAttributes(attribute.Int64("vault.expected_version", expectedVersion))

	vault, err := s.vaults.CompareAndSwap(ctx, model.Vault{
		UserID:            principal.UserID,
		Blob:              w.Blob,
		Encryption:        w.Encryption,
		Checksum:          w.Checksum,
		BlobFormatVersion: formatVersion(w.BlobFormatVersion),
		LastSyncedAt:      s.now().UTC(),
	}, expectedVersion)

	var conflict *model.VersionConflictError
	switch {
	case errors.As(err, &conflict):
		s.logger.Info("Vault service: version conflict",
			"user_id", principal.UserID,
			"expected", conflict.Expected,
			"current", conflict.Current)
		return model.Vault{}, apperr.VersionConflict(conflict.Expected, conflict.Current, err)
	case errors.Is(err, model.ErrNotFound):
		return model.Vault{}, apperr.NotFound("vault not found")
	case err != nil:
		s.logger.Error("Vault service: failed to update vault",
			"user_id", principal.UserID,
			"error", err.Error())
		return model.Vault{}, fmt.Errorf("failed to update vault: %w", err)
	}

	s.archiveVersion(ctx, vault)

	s.auditor.Log(ctx, model.AuditEntry{
		UserID:    &principal.UserID,
		Action:    model.AuditVaultUpdate,
		Status:    model.AuditSuccess,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata: map[string]any{
			"version":  vault.Version,
			"deviceId": principal.DeviceID.String(),
		},
	})

	return vault, nil
}

// SyncStatus returns the version probe of the user's vault.
func (s *Vault) SyncStatus(ctx context.Context, userID uuid.UUID) (model.SyncStatus, error) {
	status, err := s.vaults.GetSyncStatus(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		return model.SyncStatus{}, apperr.NotFound("vault not found")
	}
	if err != nil {
		return model.SyncStatus{}, fmt.Errorf("failed to get sync status: %w", err)
	}
	return status, nil
}

// History lists archived versions, newest first.
func (s *Vault) History(ctx context.Context, userID uuid.UUID, limit int) ([]model.VaultVersion, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	versions, err := s.versions.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list vault history: %w", err)
	}
	return versions, nil
}

// VersionBlob returns the archived blob of one version.
func (s *Vault) VersionBlob(ctx context.Context, userID uuid.UUID, version int64) (string, error) {
	if s.archive == nil {
		return "", apperr.NotFound("vault version not found")
	}

	key := archiveKey(userID, version)
	exists, err := s.archive.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to check archived version: %w", err)
	}
	if !exists {
		return "", apperr.NotFound("vault version not found")
	}

	rc, err := s.archive.Download(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to download archived version: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, model.MaxVaultBlobSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read archived version: %w", err)
	}
	return string(data), nil
}

// PurgeArchive removes every archived object of the user. Metadata rows go
// with the user by cascade.
func (s *Vault) PurgeArchive(ctx context.Context, userID uuid.UUID) error {
	if s.archive == nil {
		return nil
	}

	versions, err := s.versions.ListByUser(ctx, userID, archivePurgeLimit)
	if err != nil {
		return fmt.Errorf("failed to list archived versions: %w", err)
	}

	var errs []error
	for _, v := range versions {
		if err := s.archive.Delete(ctx, v.ObjectKey); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to purge archive: %w", errors.Join(errs...))
	}
	return nil
}

// Archive copies a committed vault version to the history archive.
func (s *Vault) Archive(ctx context.Context, vault model.Vault) {
	s.archiveVersion(ctx, vault)
}

// archiveVersion copies an accepted version to object storage. Failures are
// logged and never reach the writer.
func (s *Vault) archiveVersion(ctx context.Context, vault model.Vault) {
	if s.archive == nil {
		return
	}

	key := archiveKey(vault.UserID, vault.Version)
	data := []byte(vault.Blob)
	err := s.archive.Upload(ctx, key, data, map[string]string{
		"checksum":  vault.Checksum,
		"version":   strconv.FormatInt(vault.Version, 10),
		"algorithm": string(vault.Encryption.Algorithm),
	})
	if err != nil {
		s.logger.Warn("Vault service: failed to archive version",
			"user_id", vault.UserID,
			"version", vault.Version,
			"error", err.Error())
		return
	}

	err = s.versions.Create(ctx, model.VaultVersion{
		ID:        uuid.New(),
		UserID:    vault.UserID,
		Version:   vault.Version,
		Checksum:  vault.Checksum,
		ObjectKey: key,
		SizeBytes: int64(len(data)),
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("Vault service: failed to record archived version",
			"user_id", vault.UserID,
			"version", vault.Version,
			"error", err.Error())
	}
}
