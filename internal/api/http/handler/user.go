package handler

import (
	"context"
	"math"
	"net/http"

	"github.com/google/uuid"

	"github.com/dtroode/vault-protector/internal/api/http/response"
	"github.com/dtroode/vault-protector/internal/apperr"
	"github.com/dtroode/vault-protector/internal/logger"
	"github.com/dtroode/vault-protector/internal/model"
	"github.com/dtroode/vault-protector/internal/service"
)

// UserService defines account level operations.
type UserService interface {
	Profile(ctx context.Context, userID uuid.UUID) (model.User, error)
	AuditLogs(ctx context.Context, userID uuid.UUID, q service.AuditQuery) (service.AuditPage, error)
	DeleteAccount(ctx context.Context, principal model.Principal, authVerifier string, meta model.RequestMeta) error
}

// User handles account endpoints.
type User struct {
	userService    UserService
	contextManager model.ContextManager
	writer         *response.Writer
	logger         *logger.Logger
}

// NewUser creates a new User handler.
func NewUser(userService UserService, contextManager model.ContextManager, writer *response.Writer, logger *logger.Logger) *User {
	return &User{
		userService:    userService,
		contextManager: contextManager,
		writer:         writer,
		logger:         logger,
	}
}

func (h *User) Profile(w http.ResponseWriter, r *http.Request) {
	p, err := principal(h.contextManager, r)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	user, err := h.userService.Profile(r.Context(), p.UserID)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.writer.JSON(w, http.StatusOK, map[string]userView{"user": newProfileView(user)})
}

// AuditLogs returns one page of the caller's audit log.
func (h *User) AuditLogs(w http.ResponseWriter, r *http.Request) {
	p, err := principal(h.contextManager, r)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	page, err := queryRange(r, "page", 1, 1, math.MaxInt32)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}
	limit, err := queryRange(r, "limit", service.DefaultAuditPageSize, 1, service.MaxAuditPageSize)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}
	action := model.AuditAction(r.URL.Query().Get("action"))
	if action != "" && !action.Valid() {
		h.writer.Error(w, r, apperr.Validation("invalid query parameter",
			apperr.FieldError{Field: "action", Message: "unknown audit action"}))
		return
	}

	result, err := h.userService.AuditLogs(r.Context(), p.UserID, service.AuditQuery{
		Page:   page,
		Limit:  limit,
		Action: action,
	})
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	logs := make([]auditEntryView, 0, len(result.Entries))
	for _, e := range result.Entries {
		logs = append(logs, newAuditEntryView(e))
	}

	h.writer.JSON(w, http.StatusOK, struct {
		Logs       []auditEntryView `json:"logs"`
		Pagination paginationView   `json:"pagination"`
	}{
		Logs: logs,
		Pagination: paginationView{
			Page:       result.Page,
			Limit:      result.Limit,
			Total:      result.Total,
			TotalPages: result.TotalPages,
		},
	})
}

// DeleteAccount permanently removes the caller's account.
func (h *User) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	p, err := principal(h.contextManager, r)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	var req DeleteAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writer.Error(w, r, err)
		return
	}

	if err := h.userService.DeleteAccount(r.Context(), p, req.AuthVerifier, h.contextManager.GetRequestMetaFromContext(r.Context())); err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.logger.Info("User handler: account deleted", "user_id", p.UserID)
	h.writer.NoContent(w)
}
