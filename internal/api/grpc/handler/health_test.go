package handler

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dtroode/vault-protector/internal/testutil"
)

func dialHealth(t *testing.T, h *Health) healthpb.HealthClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	h.Register(s)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return healthpb.NewHealthClient(conn)
}

func servingStatus(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealth_Check(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		redis       error
		wantHealthy bool
		wantOverall healthpb.HealthCheckResponse_ServingStatus
		wantRedis   healthpb.HealthCheckResponse_ServingStatus
	}{
		{
			name:        "all dependencies up",
			wantHealthy: true,
			wantOverall: healthpb.HealthCheckResponse_SERVING,
			wantRedis:   healthpb.HealthCheckResponse_SERVING,
		},
		{
			name:        "redis down",
			redis:       errors.New("connection refused"),
			wantOverall: healthpb.HealthCheckResponse_NOT_SERVING,
			wantRedis:   healthpb.HealthCheckResponse_NOT_SERVING,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealth(map[string]Probe{
				"postgres": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return tt.redis },
			}, time.Second, testutil.MakeNoopLogger())
			client := dialHealth(t, h)

			assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, client, ""))

			assert.Equal(t, tt.wantHealthy, h.Check(context.Background()))
			assert.Equal(t, tt.wantOverall, servingStatus(t, client, ""))
			assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, client, "postgres"))
			assert.Equal(t, tt.wantRedis, servingStatus(t, client, "redis"))
		})
	}
}

func TestHealth_ProbeTimeout(t *testing.T) {
	t.Parallel()

	h := NewHealth(map[string]Probe{
		"postgres": func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}, 10*time.Millisecond, testutil.MakeNoopLogger())

	assert.False(t, h.Check(context.Background()))
}

func TestHealth_RunStopsWithContext(t *testing.T) {
	t.Parallel()

	calls := make(chan struct{}, 16)
	h := NewHealth(map[string]Probe{
		"postgres": func(context.Context) error {
			select {
			case calls <- struct{}{}:
			default:
			}
			return nil
		},
	}, time.Second, testutil.MakeNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	<-calls
	<-calls
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHealth_Shutdown(t *testing.T) {
	t.Parallel()

	h := NewHealth(map[string]Probe{
		"postgres": func(context.Context) error { return nil },
	}, time.Second, testutil.MakeNoopLogger())
	client := dialHealth(t, h)

	require.True(t, h.Check(context.Background()))
	h.Shutdown()
	h.Check(context.Background())

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, client, ""))
}
