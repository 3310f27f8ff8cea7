package context

import (
	"context"

	"github.com/dtroode/vault-protector/internal/model"
)

type ctxKey int

// Keys under which the manager stores request-scoped values.
const (
	principalKey ctxKey = iota
	requestMetaKey
)

// Manager represents an HTTP context manager for the authenticated caller
// and client network metadata.
type Manager struct{}

var _ model.ContextManager = (*Manager)(nil)

// NewManager creates a new context manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// SetPrincipalToContext stores the authenticated caller.
func (m *Manager) SetPrincipalToContext(ctx context.Context, principal model.Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// GetPrincipalFromContext returns the caller stored by the authentication
// middleware and whether there was one.
func (m *Manager) GetPrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	principal, ok := ctx.Value(principalKey).(model.Principal)
	return principal, ok
}

// SetRequestMetaToContext stores the client address and user agent.
func (m *Manager) SetRequestMetaToContext(ctx context.Context, meta model.RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey, meta)
}

// GetRequestMetaFromContext returns the stored client metadata. Missing
// metadata yields the zero value.
func (m *Manager) GetRequestMetaFromContext(ctx context.Context) model.RequestMeta {
	meta, _ := ctx.Value(requestMetaKey).(model.RequestMeta)
	return meta
}
