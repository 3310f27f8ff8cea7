package router

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/dtroode/vault-protector/internal/api/grpc/handler"
	"github.com/dtroode/vault-protector/internal/api/grpc/middleware"
	"github.com/dtroode/vault-protector/internal/logger"
)

// Router builds the ops gRPC server.
type Router struct {
	health *handler.Health
	logger *logger.Logger
}

// New creates new gRPC Router instance.
func New(health *handler.Health, logger *logger.Logger) *Router {
	return &Router{
		health: health,
		logger: logger,
	}
}

// Register creates the server with tracing, panic recovery and request
// logging, and registers the health and reflection services.
func (r *Router) Register() *grpc.Server {
	logging := middleware.NewLogging(r.logger)
	recoverUnary, recoverStream := middleware.NewRecovery(r.logger)

	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			recoverUnary,
			logging.UnaryInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			recoverStream,
			logging.StreamInterceptor(),
		),
	)

	r.health.Register(s)
	reflection.Register(s)

	return s
}
