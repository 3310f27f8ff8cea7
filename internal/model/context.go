package model

import (
	"context"
)

// ContextManager moves the authenticated caller and client metadata through
// a request context.
type ContextManager interface {
	SetPrincipalToContext(ctx context.Context, principal Principal) context.Context
	GetPrincipalFromContext(ctx context.Context) (Principal, bool)
	SetRequestMetaToContext(ctx context.Context, meta RequestMeta) context.Context
	GetRequestMetaFromContext(ctx context.Context) RequestMeta
}
