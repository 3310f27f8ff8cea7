package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/dtroode/vault-protector/internal/api/http/response"
	"github.com/dtroode/vault-protector/internal/apperr"
	"github.com/dtroode/vault-protector/internal/logger"
)

// Recover converts handler panics into an internal error response.
func Recover(writer *response.Writer, logger *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if recovered := recover(); recovered != nil {
					logger.Error("HTTP: panic recovered",
						"method", r.Method,
						"path", r.URL.Path,
						"panic", fmt.Sprint(recovered),
						"stack", string(debug.Stack()))
					writer.Error(w, r, apperr.Internal("internal server error", fmt.Errorf("panic: %v", recovered)))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
