package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dtroode/vault-protector/internal/api/http/response"
	"github.com/dtroode/vault-protector/internal/apperr"
	"github.com/dtroode/vault-protector/internal/model"
)

// SessionAuthenticator resolves access tokens to callers.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, accessToken string) (model.Principal, error)
	Touch(ctx context.Context, sessionID uuid.UUID)
}

// Authenticate validates bearer tokens and injects the caller into context.
type Authenticate struct {
	sessions       SessionAuthenticator
	contextManager model.ContextManager
	writer         *response.Writer
}

// NewAuthenticate creates a new Authenticate middleware instance.
func NewAuthenticate(sessions SessionAuthenticator, contextManager model.ContextManager, writer *response.Writer) *Authenticate {
	return &Authenticate{sessions: sessions, contextManager: contextManager, writer: writer}
}

// Handle rejects the request unless it carries a live access token.
func (m *Authenticate) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			m.writer.Error(w, r, apperr.Unauthorized("missing authorization token"))
			return
		}

		principal, err := m.sessions.Authenticate(r.Context(), tokenString)
		if err != nil {
			m.writer.Error(w, r, err)
			return
		}

		m.sessions.Touch(r.Context(), principal.SessionID)

		ctx := m.contextManager.SetPrincipalToContext(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
