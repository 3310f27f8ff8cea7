package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/dtroode/vault-protector/internal/api/http/response"
	"github.com/dtroode/vault-protector/internal/apperr"
	"github.com/dtroode/vault-protector/internal/logger"
	"github.com/dtroode/vault-protector/internal/model"
)

// RateClass groups endpoints sharing one request budget.
type RateClass string

const (
	RateGeneral  RateClass = "general"
	RateAuth     RateClass = "auth"
	RatePassword RateClass = "password"
)

// RateRule is a request budget per client address and window.
type RateRule struct {
	Max    int
	Window time.Duration
}

// RateLimit enforces per-class fixed-window budgets keyed by client address.
// Limiter failures let the request through.
type RateLimit struct {
	limiter        model.RateLimiter
	rules          map[RateClass]RateRule
	contextManager model.ContextManager
	writer         *response.Writer
	logger         *logger.Logger
}

// NewRateLimit creates a RateLimit middleware. A nil limiter disables it.
func NewRateLimit(
	limiter model.RateLimiter,
	rules map[RateClass]RateRule,
	contextManager model.ContextManager,
	writer *response.Writer,
	logger *logger.Logger,
) *RateLimit {
	return &RateLimit{
		limiter:        limiter,
		rules:          rules,
		contextManager: contextManager,
		writer:         writer,
		logger:         logger,
	}
}

// Limit returns middleware charging requests against class.
func (m *RateLimit) Limit(class RateClass) Middleware {
	return func(next http.Handler) http.Handler {
		rule, ok := m.rules[class]
		if m.limiter == nil || !ok || rule.Max <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			meta := m.contextManager.GetRequestMetaFromContext(r.Context())
			key := string(class) + ":" + meta.IPAddress

			result, err := m.limiter.Allow(r.Context(), key, rule.Max, rule.Window)
			if err != nil {
				m.logger.Warn("Rate limiter: check failed, allowing request",
					"class", class,
					"error", err.Error())
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Max))
			if !result.Allowed {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(result.RetryAfter)))
				m.logger.Warn("Rate limiter: limit exceeded",
					"class", class,
					"ip", meta.IPAddress)
				m.writer.Error(w, r, apperr.TooManyRequests("too many requests, please try again later"))
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
