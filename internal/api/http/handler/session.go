package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/dtroode/vault-protector/internal/api/http/response"
	"github.com/dtroode/vault-protector/internal/logger"
	"github.com/dtroode/vault-protector/internal/model"
	"github.com/dtroode/vault-protector/internal/service"
)

// SessionService defines session listing and revocation.
type SessionService interface {
	List(ctx context.Context, userID, currentSessionID uuid.UUID) ([]service.SessionView, error)
	RevokeOne(ctx context.Context, principal model.Principal, sessionID uuid.UUID, meta model.RequestMeta) error
	RevokeOthers(ctx context.Context, principal model.Principal, meta model.RequestMeta) (int, error)
}

// Session handles session endpoints.
type Session struct {
	sessionService SessionService
	contextManager model.ContextManager
	writer         *response.Writer
	logger         *logger.Logger
}

// NewSession creates a new Session handler.
func NewSession(sessionService SessionService, contextManager model.ContextManager, writer *response.Writer, logger *logger.Logger) *Session {
	return &Session{
		sessionService: sessionService,
		contextManager: contextManager,
		writer:         writer,
		logger:         logger,
	}
}

// List returns the caller's active sessions.
func (h *Session) List(w http.ResponseWriter, r *http.Request) {
	p, err := principal(h.contextManager, r)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	sessions, err := h.sessionService.List(r.Context(), p.UserID, p.SessionID)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, newSessionView(s))
	}

	h.writer.JSON(w, http.StatusOK, map[string][]sessionView{"sessions": views})
}

// Revoke signs out one of the caller's other sessions.
func (h *Session) Revoke(w http.ResponseWriter, r *http.Request) {
	p, err := principal(h.contextManager, r)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	sessionID, err := pathID(r, "id")
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	if err := h.sessionService.RevokeOne(r.Context(), p, sessionID, h.contextManager.GetRequestMetaFromContext(r.Context())); err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.writer.NoContent(w)
}

// RevokeOthers signs out every session except the caller's.
func (h *Session) RevokeOthers(w http.ResponseWriter, r *http.Request) {
	p, err := principal(h.contextManager, r)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	count, err := h.sessionService.RevokeOthers(r.Context(), p, h.contextManager.GetRequestMetaFromContext(r.Context()))
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.logger.Info("Session handler: other sessions revoked",
		"user_id", p.UserID,
		"count", count)

	h.writer.JSON(w, http.StatusOK, map[string]int{"revokedCount": count})
}
