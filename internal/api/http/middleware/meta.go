package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/dtroode/vault-protector/internal/model"
)

const unknownClient = "unknown"

// RequestMeta stores the client address and user agent in the request
// context. With trustProxy set the first X-Forwarded-For hop wins over the
// socket address.
func RequestMeta(contextManager model.ContextManager, trustProxy bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userAgent := r.UserAgent()
			if userAgent == "" {
				userAgent = unknownClient
			}
			ctx := contextManager.SetRequestMetaToContext(r.Context(), model.RequestMeta{
				IPAddress: ClientIP(r, trustProxy),
				UserAgent: userAgent,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP resolves the address of the client that sent r.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return unknownClient
	}
	return host
}
