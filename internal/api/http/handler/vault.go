package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/vault-protector/internal/api/http/response"
	"github.com/dtroode/vault-protector/internal/apperr"
	"github.com/dtroode/vault-protector/internal/logger"
	"github.com/dtroode/vault-protector/internal/model"
	"github.com/dtroode/vault-protector/internal/service"
)

// VaultService defines vault synchronization operations.
type VaultService interface {
	Get(ctx context.Context, userID uuid.UUID, clientVersion *int64, meta model.RequestMeta) (model.Vault, bool, error)
	Update(ctx context.Context, principal model.Principal, expectedVersion int64, w service.VaultWrite, meta model.RequestMeta) (model.Vault, error)
	SyncStatus(ctx context.Context, userID uuid.UUID) (model.SyncStatus, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]model.VaultVersion, error)
	VersionBlob(ctx context.Context, userID uuid.UUID, version int64) (string, error)
}

// Vault handles vault endpoints.
type Vault struct {
	vaultService   VaultService
	contextManager model.ContextManager
	writer         *response.Writer
	logger         *logger.Logger
}

// NewVault creates a new Vault handler.
func NewVault(vaultService VaultService, contextManager model.ContextManager, writer *response.Writer, logger *logger.Logger) *Vault {
	return &Vault{
		vaultService:   vaultService,
		contextManager: contextManager,
		writer:         writer,
		logger:         logger,
	}
}

// Get returns the vault, or 304 when ?version= is already current.
func (h *Vault) Get(w http.ResponseWriter, r *http.Request) {
	p, err := principal(h.contextManager, r)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	var clientVersion *int64
	version, ok, err := queryInt(r, "version")
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}
	if ok {
		clientVersion = &version
	}

	vault, notModified, err := h.vaultService.Get(r.Context(), p.UserID, clientVersion, h.contextManager.GetRequestMetaFromContext(r.Context()))
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}
	if notModified {
		h.writer.NotModified(w)
		return
	}

	h.writer.JSON(w, http.StatusOK, map[string]vaultView{"vault": newVaultView(vault)})
}

// Update writes a new vault version.
func (h *Vault) Update(w http.ResponseWriter, r *http.Request) {
	p, err := principal(h.contextManager, r)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	var req UpdateVaultRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writer.Error(w, r, err)
		return
	}

	vault, err := h.vaultService.Update(r.Context(), p, req.ExpectedVersion, req.write(), h.contextManager.GetRequestMetaFromContext(r.Context()))
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.writer.JSON(w, http.StatusOK, struct {
		Version      int64     `json:"version"`
		LastSyncedAt time.Time `json:"lastSyncedAt"`
	}{vault.Version, vault.LastSyncedAt})
}

// SyncStatus returns the version probe.
func (h *Vault) SyncStatus(w http.ResponseWriter, r *http.Request) {
	p, err := principal(h.contextManager, r)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	status, err := h.vaultService.SyncStatus(r.Context(), p.UserID)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.writer.JSON(w, http.StatusOK, syncStatusView{
		Version:      status.Version,
		Checksum:     status.Checksum,
		LastSyncedAt: status.LastSyncedAt,
	})
}

// History lists archived versions.
func (h *Vault) History(w http.ResponseWriter, r *http.Request) {
	p, err := principal(h.contextManager, r)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	limit, err := queryRange(r, "limit", service.DefaultHistoryLimit, 1, service.MaxHistoryLimit)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	versions, err := h.vaultService.History(r.Context(), p.UserID, limit)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	views := make([]vaultVersionView, 0, len(versions))
	for _, v := range versions {
		views = append(views, vaultVersionView{
			Version:   v.Version,
			Checksum:  v.Checksum,
			SizeBytes: v.SizeBytes,
			CreatedAt: v.CreatedAt,
		})
	}

	h.writer.JSON(w, http.StatusOK, map[string][]vaultVersionView{"versions": views})
}

// HistoryVersion returns the archived blob of one version.
func (h *Vault) HistoryVersion(w http.ResponseWriter, r *http.Request) {
	p, err := principal(h.contextManager, r)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	version, err := strconv.ParseInt(r.PathValue("version"), 10, 64)
	if err != nil || version < 1 {
		h.writer.Error(w, r, apperr.Validation("invalid version",
			apperr.FieldError{Field: "version", Message: "must be a positive integer"}))
		return
	}

	blob, err := h.vaultService.VersionBlob(r.Context(), p.UserID, version)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.writer.JSON(w, http.StatusOK, struct {
		Version int64  `json:"version"`
		Blob    string `json:"blob"`
	}{version, blob})
}
