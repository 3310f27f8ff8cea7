package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditRetention is how long audit entries are kept.
const AuditRetention = 90 * 24 * time.Hour

// AuditAction is the audit taxonomy.
type AuditAction string

const (
	AuditUserRegister       AuditAction = "user.register"
	AuditUserLogin          AuditAction = "user.login"
	AuditUserLoginFailed    AuditAction = "user.login.failed"
	AuditUserLogout         AuditAction = "user.logout"
	AuditUserPasswordChange AuditAction = "user.password.change"
	AuditUserEmailVerify    AuditAction = "user.email.verify"
	AuditUserDelete         AuditAction = "user.delete"
	AuditVaultSync          AuditAction = "vault.sync"
	AuditVaultUpdate        AuditAction = "vault.update"
	AuditSessionCreate      AuditAction = "session.create"
	AuditSessionRevoke      AuditAction = "session.revoke"
	AuditDeviceAdd          AuditAction = "device.add"
	AuditDeviceRemove       AuditAction = "device.remove"
	AuditDeviceTrust        AuditAction = "device.trust"
)

var auditActions = map[AuditAction]struct{}{
	AuditUserRegister: {}, AuditUserLogin: {}, AuditUserLoginFailed: {}, AuditUserLogout: {},
	AuditUserPasswordChange: {}, AuditUserEmailVerify: {}, AuditUserDelete: {},
	AuditVaultSync: {}, AuditVaultUpdate: {}, AuditSessionCreate: {}, AuditSessionRevoke: {},
	AuditDeviceAdd: {}, AuditDeviceRemove: {}, AuditDeviceTrust: {},
}

// Valid reports whether a belongs to the taxonomy.
func (a AuditAction) Valid() bool {
	_, ok := auditActions[a]
	return ok
}

// AuditStatus is the outcome of an audited operation.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFailure AuditStatus = "failure"
)

// AuditEntry is one immutable audit record.
type AuditEntry struct {
	ID        uuid.UUID
	UserID    *uuid.UUID
	Action    AuditAction
	Status    AuditStatus
	IPAddress string
	UserAgent string
	Metadata  map[string]any
	CreatedAt time.Time
}

// AuditStore persists audit entries.
type AuditStore interface {
	Create(ctx context.Context, entry AuditEntry) error
	ListByUser(ctx context.Context, userID uuid.UUID, filter AuditFilter) ([]AuditEntry, int, error)
	DeleteOlderThan(ctx context.Context, before time.Time, limit int) (int64, error)
	AnonymizeUser(ctx context.Context, userID uuid.UUID) error
}

// AuditFilter selects a page of a user's audit log.
type AuditFilter struct {
	Action AuditAction
	Limit  int
	Offset int
}

// Auditor records security events without ever failing the caller.
type Auditor interface {
	Log(ctx context.Context, entry AuditEntry)
}
