package router

import (
	"net/http"

	"github.com/dtroode/vault-protector/internal/api/http/handler"
	"github.com/dtroode/vault-protector/internal/api/http/middleware"
	"github.com/dtroode/vault-protector/internal/api/http/response"
	"github.com/dtroode/vault-protector/internal/apperr"
	"github.com/dtroode/vault-protector/internal/logger"
	"github.com/dtroode/vault-protector/internal/model"
)

const apiPrefix = "/api/v1"

// SessionService is served by the session endpoints and backs the
// authentication middleware.
type SessionService interface {
	handler.SessionService
	middleware.SessionAuthenticator
}

// Services groups the application services exposed over HTTP.
type Services struct {
	Auth     handler.AuthService
	Vault    handler.VaultService
	Sessions SessionService
	Devices  handler.DeviceService
	Users    handler.UserService
}

// Config tunes the middleware stack.
type Config struct {
	TrustProxy bool
	RateLimits map[middleware.RateClass]middleware.RateRule
}

// Router builds the HTTP handler tree.
type Router struct {
	cfg            Config
	services       Services
	limiter        model.RateLimiter
	contextManager model.ContextManager
	writer         *response.Writer
	logger         *logger.Logger
}

// New creates a new HTTP Router instance. A nil limiter disables rate limiting.
func New(
	cfg Config,
	services Services,
	limiter model.RateLimiter,
	contextManager model.ContextManager,
	writer *response.Writer,
	logger *logger.Logger,
) *Router {
	return &Router{
		cfg:            cfg,
		services:       services,
		limiter:        limiter,
		contextManager: contextManager,
		writer:         writer,
		logger:         logger,
	}
}

// Register wires every route and the global middleware.
func (r *Router) Register() http.Handler {
	mux := http.NewServeMux()

	logging := middleware.NewLogging(r.logger)
	authenticate := middleware.NewAuthenticate(r.services.Sessions, r.contextManager, r.writer)
	limits := middleware.NewRateLimit(r.limiter, r.cfg.RateLimits, r.contextManager, r.writer, r.logger)

	public := func(class middleware.RateClass, h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, limits.Limit(class))
	}
	private := func(class middleware.RateClass, h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, limits.Limit(class), authenticate.Handle)
	}

	r.registerAuthRoutes(mux, public, private)
	r.registerVaultRoutes(mux, private)
	r.registerSessionRoutes(mux, private)
	r.registerDeviceRoutes(mux, private)
	r.registerUserRoutes(mux, private)

	mux.HandleFunc("GET /healthz", handler.NewHealth(r.writer).Live)
	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		r.writer.Error(w, req, apperr.NotFound("route not found"))
	})

	return middleware.Chain(mux,
		logging.Handle,
		middleware.Recover(r.writer, r.logger),
		middleware.RequestMeta(r.contextManager, r.cfg.TrustProxy),
	)
}

type wrapFunc func(class middleware.RateClass, h http.HandlerFunc) http.Handler

func (r *Router) registerAuthRoutes(mux *http.ServeMux, public, private wrapFunc) {
	h := handler.NewAuth(r.services.Auth, r.contextManager, r.writer, r.logger)

	mux.Handle("POST "+apiPrefix+"/auth/register", public(middleware.RateAuth, h.Register))
	mux.Handle("GET "+apiPrefix+"/auth/prelogin", public(middleware.RateAuth, h.Prelogin))
	mux.Handle("POST "+apiPrefix+"/auth/login", public(middleware.RateAuth, h.Login))
	mux.Handle("POST "+apiPrefix+"/auth/refresh", public(middleware.RateAuth, h.Refresh))
	mux.Handle("POST "+apiPrefix+"/auth/logout", private(middleware.RateGeneral, h.Logout))
	mux.Handle("POST "+apiPrefix+"/auth/change-password", private(middleware.RatePassword, h.ChangePassword))
	mux.Handle("POST "+apiPrefix+"/auth/set-master-password", private(middleware.RateGeneral, h.SetMasterPassword))
}

func (r *Router) registerVaultRoutes(mux *http.ServeMux, private wrapFunc) {
	h := handler.NewVault(r.services.Vault, r.contextManager, r.writer, r.logger)

	mux.Handle("GET "+apiPrefix+"/vault", private(middleware.RateGeneral, h.Get))
	mux.Handle("PUT "+apiPrefix+"/vault", private(middleware.RateGeneral, h.Update))
	mux.Handle("GET "+apiPrefix+"/vault/sync", private(middleware.RateGeneral, h.SyncStatus))
	mux.Handle("GET "+apiPrefix+"/vault/history", private(middleware.RateGeneral, h.History))
	mux.Handle("GET "+apiPrefix+"/vault/history/{version}", private(middleware.RateGeneral, h.HistoryVersion))
}

func (r *Router) registerSessionRoutes(mux *http.ServeMux, private wrapFunc) {
	h := handler.NewSession(r.services.Sessions, r.contextManager, r.writer, r.logger)

	mux.Handle("GET "+apiPrefix+"/sessions", private(middleware.RateGeneral, h.List))
	mux.Handle("DELETE "+apiPrefix+"/sessions", private(middleware.RateGeneral, h.RevokeOthers))
	mux.Handle("DELETE "+apiPrefix+"/sessions/{id}", private(middleware.RateGeneral, h.Revoke))
}

func (r *Router) registerDeviceRoutes(mux *http.ServeMux, private wrapFunc) {
	h := handler.NewDevice(r.services.Devices, r.contextManager, r.writer, r.logger)

	mux.Handle("GET "+apiPrefix+"/devices", private(middleware.RateGeneral, h.List))
	mux.Handle("POST "+apiPrefix+"/devices/cleanup", private(middleware.RateGeneral, h.Cleanup))
	mux.Handle("PATCH "+apiPrefix+"/devices/{id}", private(middleware.RateGeneral, h.Rename))
	mux.Handle("DELETE "+apiPrefix+"/devices/{id}", private(middleware.RateGeneral, h.Delete))
	mux.Handle("POST "+apiPrefix+"/devices/{id}/trust", private(middleware.RateGeneral, h.Trust))
}

func (r *Router) registerUserRoutes(mux *http.ServeMux, private wrapFunc) {
	h := handler.NewUser(r.services.Users, r.contextManager, r.writer, r.logger)

	mux.Handle("GET "+apiPrefix+"/users/me", private(middleware.RateGeneral, h.Profile))
	mux.Handle("GET "+apiPrefix+"/users/me/audit-logs", private(middleware.RateGeneral, h.AuditLogs))
	mux.Handle("DELETE "+apiPrefix+"/users/me", private(middleware.RatePassword, h.DeleteAccount))
}
