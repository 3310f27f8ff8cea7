package handler

import (
	"context"
	"sort"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dtroode/vault-protector/internal/logger"
)

const defaultProbeTimeout = 2 * time.Second

// Probe reports whether a backing dependency is reachable.
type Probe func(ctx context.Context) error

// Health publishes dependency reachability through grpc.health.v1. Each
// probe is exposed under its own service name; the empty name is SERVING
// only while every probe passes.
type Health struct {
	server  *health.Server
	probes  map[string]Probe
	names   []string
	timeout time.Duration
	logger  *logger.Logger
}

// NewHealth creates a Health handler. All services start NOT_SERVING until
// the first Check.
func NewHealth(probes map[string]Probe, timeout time.Duration, logger *logger.Logger) *Health {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)

	h := &Health{
		server:  health.NewServer(),
		probes:  probes,
		names:   names,
		timeout: timeout,
		logger:  logger,
	}

	h.server.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	for _, name := range names {
		h.server.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}

	return h
}

// Register attaches the health service to s.
func (h *Health) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Check runs every probe once and updates the published statuses. It
// returns true when all probes passed.
func (h *Health) Check(ctx context.Context) bool {
	healthy := true
	for _, name := range h.names {
		status := healthpb.HealthCheckResponse_SERVING

		probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := h.probes[name](probeCtx)
		cancel()

		if err != nil {
			healthy = false
			status = healthpb.HealthCheckResponse_NOT_SERVING
			h.logger.Warn("Health: dependency probe failed",
				"dependency", name,
				"error", err.Error())
		}
		h.server.SetServingStatus(name, status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", overall)

	return healthy
}

// Run checks immediately and then every interval until ctx is done.
func (h *Health) Run(ctx context.Context, interval time.Duration) {
	h.Check(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING and ignores further updates.
func (h *Health) Shutdown() {
	h.server.Shutdown()
}
