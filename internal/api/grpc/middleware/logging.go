package middleware

import (
	"context"
	"log/slog"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/selector"
	"google.golang.org/grpc"

	"github.com/dtroode/vault-protector/internal/logger"
)

const healthServicePrefix = "/grpc.health.v1.Health/"

// Logging logs finished ops RPCs. Health probes are polled constantly by
// orchestrators and are left out.
type Logging struct {
	logger *logger.Logger
}

// NewLogging creates a new Logging middleware.
func NewLogging(logger *logger.Logger) *Logging {
	return &Logging{logger: logger}
}

// Logger adapts the service logger to the interceptor logging API.
func (l *Logging) Logger() logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.logger.Log(ctx, slog.Level(lvl), "gRPC: "+msg, fields...)
	})
}

// UnaryInterceptor logs each finished unary call.
func (l *Logging) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return selector.UnaryServerInterceptor(
		logging.UnaryServerInterceptor(l.Logger(), logging.WithLogOnEvents(logging.FinishCall)),
		selector.MatchFunc(notHealthCheck),
	)
}

// StreamInterceptor logs each finished stream.
func (l *Logging) StreamInterceptor() grpc.StreamServerInterceptor {
	return selector.StreamServerInterceptor(
		logging.StreamServerInterceptor(l.Logger(), logging.WithLogOnEvents(logging.FinishCall)),
		selector.MatchFunc(notHealthCheck),
	)
}

func notHealthCheck(_ context.Context, c interceptors.CallMeta) bool {
	return !strings.HasPrefix(c.FullMethod(), healthServicePrefix)
}
