package handler

import (
	"context"
	"net/http"

	"github.com/dtroode/vault-protector/internal/api/http/response"
	"github.com/dtroode/vault-protector/internal/apperr"
	"github.com/dtroode/vault-protector/internal/logger"
	"github.com/dtroode/vault-protector/internal/model"
	"github.com/dtroode/vault-protector/internal/service"
)

// AuthService defines the credential and token lifecycle operations.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput, meta model.RequestMeta) (service.AuthResult, error)
	Prelogin(ctx context.Context, email string) (model.KDFParams, error)
	Login(ctx context.Context, in service.LoginInput, meta model.RequestMeta) (service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string, meta model.RequestMeta) (model.TokenPair, error)
	Logout(ctx context.Context, principal model.Principal, meta model.RequestMeta) error
	ChangePassword(ctx context.Context, principal model.Principal, in service.ChangePasswordInput, meta model.RequestMeta) error
	SetMasterPassword(ctx context.Context, principal model.Principal, wrappedVaultKey string, initial service.VaultWrite, meta model.RequestMeta) error
}

// Auth handles authentication endpoints.
type Auth struct {
	authService    AuthService
	contextManager model.ContextManager
	writer         *response.Writer
	logger         *logger.Logger
}

// NewAuth creates a new Auth handler.
func NewAuth(authService AuthService, contextManager model.ContextManager, writer *response.Writer, logger *logger.Logger) *Auth {
	return &Auth{
		authService:    authService,
		contextManager: contextManager,
		writer:         writer,
		logger:         logger,
	}
}

// Register creates an account and signs the new device in.
func (h *Auth) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.logger.Debug("Auth handler: processing registration request",
		"platform", req.Device.Platform)

	res, err := h.authService.Register(r.Context(), req.input(), h.contextManager.GetRequestMetaFromContext(r.Context()))
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.logger.Info("Auth handler: registration completed",
		"user_id", res.User.ID,
		"device_id", res.Device.ID)

	h.writer.JSON(w, http.StatusCreated, newAuthView(res))
}

// Prelogin returns the key derivation parameters for an email.
func (h *Auth) Prelogin(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	var f fieldErrors
	f.email("email", email)
	if len(f) > 0 {
		h.writer.Error(w, r, apperr.Validation("validation failed", f...))
		return
	}

	kdf, err := h.authService.Prelogin(r.Context(), email)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.writer.JSON(w, http.StatusOK, map[string]model.KDFParams{"kdf": kdf})
}

// Login verifies credentials and opens a session.
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writer.Error(w, r, err)
		return
	}

	res, err := h.authService.Login(r.Context(), service.LoginInput{
		Email:        req.Email,
		AuthVerifier: req.AuthVerifier,
		Device:       req.Device.descriptor(),
	}, h.contextManager.GetRequestMetaFromContext(r.Context()))
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.logger.Info("Auth handler: login completed",
		"user_id", res.User.ID,
		"device_id", res.Device.ID,
		"new_device", res.DeviceIsNew)

	h.writer.JSON(w, http.StatusOK, loginView{
		authView:        newAuthView(res),
		WrappedVaultKey: res.User.WrappedVaultKey,
	})
}

// Refresh rotates a refresh token.
func (h *Auth) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writer.Error(w, r, err)
		return
	}

	tokens, err := h.authService.Refresh(r.Context(), req.RefreshToken, h.contextManager.GetRequestMetaFromContext(r.Context()))
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.writer.JSON(w, http.StatusOK, map[string]model.TokenPair{"tokens": tokens})
}

// Logout revokes the caller's session.
func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	p, err := principal(h.contextManager, r)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	if err := h.authService.Logout(r.Context(), p, h.contextManager.GetRequestMetaFromContext(r.Context())); err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.writer.NoContent(w)
}

// ChangePassword replaces the caller's credentials.
func (h *Auth) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p, err := principal(h.contextManager, r)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writer.Error(w, r, err)
		return
	}

	if err := h.authService.ChangePassword(r.Context(), p, req.input(), h.contextManager.GetRequestMetaFromContext(r.Context())); err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.logger.Info("Auth handler: password changed", "user_id", p.UserID)
	h.writer.NoContent(w)
}

// SetMasterPassword stores the first wrapped key and vault of an account
// registered without one.
func (h *Auth) SetMasterPassword(w http.ResponseWriter, r *http.Request) {
	p, err := principal(h.contextManager, r)
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	var req SetMasterPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writer.Error(w, r, err)
		return
	}

	err = h.authService.SetMasterPassword(r.Context(), p, *req.WrappedVaultKey, req.InitialVault.write(),
		h.contextManager.GetRequestMetaFromContext(r.Context()))
	if err != nil {
		h.writer.Error(w, r, err)
		return
	}

	h.writer.NoContent(w)
}
