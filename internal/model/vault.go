package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MaxVaultBlobSize caps the encoded blob accepted on update.
const MaxVaultBlobSize = 10 * 1024 * 1024

// VaultStore defines persistence operations for vaults.
type VaultStore interface {
	Create(ctx context.Context, vault Vault) (Vault, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (Vault, error)
	GetSyncStatus(ctx context.Context, userID uuid.UUID) (SyncStatus, error)
	// CompareAndSwap writes vault and bumps the version by one only if the
	// stored version equals expectedVersion. A lost race yields a
	// *VersionConflictError, a missing vault ErrNotFound.
	CompareAndSwap(ctx context.Context, vault Vault, expectedVersion int64) (Vault, error)
	Delete(ctx context.Context, userID uuid.UUID) error
}

// VaultVersionStore keeps metadata of archived vault versions.
type VaultVersionStore interface {
	Create(ctx context.Context, version VaultVersion) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]VaultVersion, error)
}

// EncryptionAlgorithm is the client-side cipher of the vault blob.
type EncryptionAlgorithm string

const (
	EncryptionAES256GCM         EncryptionAlgorithm = "aes-256-gcm"
	EncryptionXChaCha20Poly1305 EncryptionAlgorithm = "xchacha20-poly1305"
)

// Valid reports whether a is a supported algorithm.
func (a EncryptionAlgorithm) Valid() bool {
	return a == EncryptionAES256GCM || a == EncryptionXChaCha20Poly1305
}

// Encryption is metadata a client needs to decrypt the blob.
type Encryption struct {
	Algorithm EncryptionAlgorithm `json:"algorithm"`
	IV        string              `json:"iv"`
	AuthTag   string              `json:"authTag"`
}

// Vault is the single encrypted blob stored per user.
type Vault struct {
	UserID            uuid.UUID
	Blob              string
	Encryption        Encryption
	Version           int64
	Checksum          string
	BlobFormatVersion int
	LastSyncedAt      time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SyncStatus is the lightweight projection clients poll.
type SyncStatus struct {
	Version      int64
	Checksum     string
	LastSyncedAt time.Time
}

// VaultVersion describes an archived copy of a vault blob.
type VaultVersion struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Version   int64
	Checksum  string
	ObjectKey string
	SizeBytes int64
	CreatedAt time.Time
}
