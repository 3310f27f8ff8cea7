package handler

import (
	"time"

	"github.com/dtroode/vault-protector/internal/model"
	"github.com/dtroode/vault-protector/internal/service"
)

type userView struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	EmailVerified     bool       `json:"emailVerified"`
	HasMasterPassword bool       `json:"hasMasterPassword"`
	CreatedAt         *time.Time `json:"createdAt,omitempty"`
	LastLoginAt       *time.Time `json:"lastLoginAt,omitempty"`
}

func newUserView(u model.User) userView {
	return userView{
		ID:                u.ID.String(),
		Email:             u.Email,
		EmailVerified:     u.EmailVerified,
		HasMasterPassword: u.HasMasterPassword,
	}
}

func newProfileView(u model.User) userView {
	view := newUserView(u)
	createdAt := u.CreatedAt
	view.CreatedAt = &createdAt
	view.LastLoginAt = u.LastLoginAt
	return view
}

type authDeviceView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	IsNew bool   `json:"isNew"`
}

type authView struct {
	User   userView        `json:"user"`
	Device authDeviceView  `json:"device"`
	Tokens model.TokenPair `json:"tokens"`
}

func newAuthView(res service.AuthResult) authView {
	return authView{
		User: newUserView(res.User),
		Device: authDeviceView{
			ID:    res.Device.ID.String(),
			Name:  res.Device.Name,
			IsNew: res.DeviceIsNew,
		},
		Tokens: res.Tokens,
	}
}

// loginView adds the wrapped key, null until a master password is set.
type loginView struct {
	authView
	WrappedVaultKey *string `json:"wrappedVaultKey"`
}

type deviceView struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Platform      model.Platform `json:"platform"`
	Trusted       bool           `json:"trusted"`
	LastSeenAt    time.Time      `json:"lastSeenAt"`
	LastIPAddress string         `json:"lastIpAddress"`
	CreatedAt     time.Time      `json:"createdAt"`
	IsCurrent     bool           `json:"isCurrent"`
}

func newDeviceView(d model.Device, current bool) deviceView {
	return deviceView{
		ID:            d.ID.String(),
		Name:          d.Name,
		Platform:      d.Platform,
		Trusted:       d.Trusted,
		LastSeenAt:    d.LastSeenAt,
		LastIPAddress: d.LastIPAddress,
		CreatedAt:     d.CreatedAt,
		IsCurrent:     current,
	}
}

type sessionDeviceView struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Platform model.Platform `json:"platform"`
}

type sessionView struct {
	ID             string            `json:"id"`
	Device         sessionDeviceView `json:"device"`
	IPAddress      string            `json:"ipAddress"`
	UserAgent      string            `json:"userAgent"`
	CreatedAt      time.Time         `json:"createdAt"`
	LastActivityAt time.Time         `json:"lastActivityAt"`
	ExpiresAt      time.Time         `json:"expiresAt"`
	IsCurrent      bool              `json:"isCurrent"`
}

func newSessionView(s service.SessionView) sessionView {
	return sessionView{
		ID: s.ID.String(),
		Device: sessionDeviceView{
			ID:       s.DeviceID.String(),
			Name:     s.DeviceName,
			Platform: s.DevicePlatform,
		},
		IPAddress:      s.IPAddress,
		UserAgent:      s.UserAgent,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
		IsCurrent:      s.IsCurrent,
	}
}

type vaultView struct {
	Blob              string           `json:"blob"`
	Encryption        model.Encryption `json:"encryption"`
	Version           int64            `json:"version"`
	Checksum          string           `json:"checksum"`
	BlobFormatVersion int              `json:"blobFormatVersion"`
	LastSyncedAt      time.Time        `json:"lastSyncedAt"`
}

func newVaultView(v model.Vault) vaultView {
	return vaultView{
		Blob:              v.Blob,
		Encryption:        v.Encryption,
		Version:           v.Version,
		Checksum:          v.Checksum,
		BlobFormatVersion: v.BlobFormatVersion,
		LastSyncedAt:      v.LastSyncedAt,
	}
}

type syncStatusView struct {
	Version      int64     `json:"version"`
	Checksum     string    `json:"checksum"`
	LastSyncedAt time.Time `json:"lastSyncedAt"`
}

type vaultVersionView struct {
	Version   int64     `json:"version"`
	Checksum  string    `json:"checksum"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

type auditEntryView struct {
	ID        string            `json:"id"`
	Action    model.AuditAction `json:"action"`
	Status    model.AuditStatus `json:"status"`
	IPAddress string            `json:"ipAddress"`
	UserAgent string            `json:"userAgent"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

func newAuditEntryView(e model.AuditEntry) auditEntryView {
	ip, agent := e.IPAddress, e.UserAgent
	if ip == "" {
		ip = "unknown"
	}
	if agent == "" {
		agent = "unknown"
	}
	return auditEntryView{
		ID:        e.ID.String(),
		Action:    e.Action,
		Status:    e.Status,
		IPAddress: ip,
		UserAgent: agent,
		Metadata:  e.Metadata,
		CreatedAt: e.CreatedAt,
	}
}

type paginationView struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}
