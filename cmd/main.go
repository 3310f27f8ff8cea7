package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	grpchandler "github.com/dtroode/vault-protector/internal/api/grpc/handler"
	grpcrouter "github.com/dtroode/vault-protector/internal/api/grpc/router"
	grpcserver "github.com/dtroode/vault-protector/internal/api/grpc/server"
	httpcontext "github.com/dtroode/vault-protector/internal/api/http/context"
	"github.com/dtroode/vault-protector/internal/api/http/middleware"
	"github.com/dtroode/vault-protector/internal/api/http/response"
	httprouter "github.com/dtroode/vault-protector/internal/api/http/router"
	httpserver "github.com/dtroode/vault-protector/internal/api/http/server"
	"github.com/dtroode/vault-protector/internal/audit"
	"github.com/dtroode/vault-protector/internal/cache"
	"github.com/dtroode/vault-protector/internal/config"
	"github.com/dtroode/vault-protector/internal/jobs"
	"github.com/dtroode/vault-protector/internal/logger"
	"github.com/dtroode/vault-protector/internal/model"
	"github.com/dtroode/vault-protector/internal/password"
	"github.com/dtroode/vault-protector/internal/repository/postgres"
	"github.com/dtroode/vault-protector/internal/server"
	"github.com/dtroode/vault-protector/internal/service"
	storage "github.com/dtroode/vault-protector/internal/storage/minio"
	"github.com/dtroode/vault-protector/internal/telemetry"
	"github.com/dtroode/vault-protector/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

const (
	shutdownTimeout   = 10 * time.Second
	auditWriteTimeout = 5 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	logAppVersion()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		logger.Fatal("failed to initialize telemetry", "error", err)
	}

	db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize database", "error", err)
	}

	rdb, err := cache.NewClient(ctx, cache.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal("failed to initialize redis", "error", err)
	}

	var archive model.Storage
	if cfg.Storage.Enabled {
		client, err := storage.NewClient(ctx, storage.Options{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		})
		if err != nil {
			logger.Fatal("failed to initialize object storage", "error", err)
		}
		archive = client
		logger.Info("vault history archive enabled", "bucket", cfg.Storage.Bucket)
	}

	userRepo := postgres.NewUserRepository(db)
	deviceRepo := postgres.NewDeviceRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)
	vaultRepo := postgres.NewVaultRepository(db)
	vaultVersionRepo := postgres.NewVaultVersionRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	transactor := postgres.NewTransactor(db)

	auditor := audit.NewDispatcher(audit.Config{BufferSize: cfg.Audit.BufferSize},
		audit.NewStoreSink(auditRepo, auditWriteTimeout, logger), logger)

	hasher, err := password.NewHasher(password.Params{
		Memory:      cfg.Hash.Memory,
		Time:        cfg.Hash.Time,
		Parallelism: cfg.Hash.Parallelism,
	})
	if err != nil {
		logger.Fatal("failed to initialize verifier hasher", "error", err)
	}

	tokenManager := token.NewJWT(token.Config{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
	})

	preloginCache := cache.NewPrelogin(rdb, cfg.Redis.Timeout)

	sessionManager := service.NewSessionManager(sessionRepo, userRepo, tokenManager,
		cache.NewRevocation(rdb, cfg.Redis.Timeout), cache.NewActivity(rdb, cfg.Redis.Timeout), auditor, logger)
	deviceService := service.NewDevice(deviceRepo, sessionManager, auditor, logger)
	vaultService := service.NewVault(vaultRepo, vaultVersionRepo, archive, auditor, logger)
	userService := service.NewUser(userRepo, auditRepo, hasher, sessionManager, vaultService, preloginCache, transactor, auditor, logger)
	authService, err := service.NewAuth(service.AuthConfig{
		PreloginSecret: cfg.KDF.PreloginSecret,
		DefaultKDF: model.KDFParams{
			Algorithm:   model.KDFArgon2id,
			Memory:      cfg.KDF.Memory,
			Iterations:  cfg.KDF.Iterations,
			Parallelism: cfg.KDF.Parallelism,
		},
		LockoutThreshold: cfg.Lockout.MaxAttempts,
		LockoutDuration:  cfg.Lockout.Duration,
	}, userRepo, hasher, sessionManager, deviceService, vaultService, preloginCache, transactor, auditor, logger)
	if err != nil {
		logger.Fatal("failed to initialize auth service", "error", err)
	}

	retention := jobs.NewRetention(auditRepo, sessionRepo, jobs.Config{
		AuditRetention: cfg.Audit.Retention,
		Interval:       cfg.Audit.CleanupInterval,
	}, logger)
	retention.Start()

	var limiter model.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = cache.NewRateLimiter(rdb, cfg.Redis.Timeout)
	}

	ctxMgr := httpcontext.NewManager()
	writer := response.NewWriter(logger, cfg.Development())
	handler := httprouter.New(httprouter.Config{
		TrustProxy: cfg.HTTP.TrustProxy,
		RateLimits: rateLimits(cfg.RateLimit),
	}, httprouter.Services{
		Auth:     authService,
		Vault:    vaultService,
		Sessions: sessionManager,
		Devices:  deviceService,
		Users:    userService,
	}, limiter, ctxMgr, writer, logger).Register()

	apiServer := httpserver.NewHTTPServer(handler, fmt.Sprintf(":%s", cfg.HTTP.Port), httpserver.Options{
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	})

	health := grpchandler.NewHealth(map[string]grpchandler.Probe{
		"postgres": db.Ping,
		"redis":    redisProbe(rdb),
	}, cfg.Redis.Timeout, logger)
	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	go health.Run(healthCtx, cfg.GRPC.HealthCheckInterval)

	opsServer := grpcserver.NewGRPCServer(grpcrouter.New(health, logger).Register(), fmt.Sprintf(":%s", cfg.GRPC.Port))

	var wg sync.WaitGroup
	startServer(&wg, logger, apiServer,
		server.NewSecurityLayer(cfg.HTTP.EnableHTTPS, cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName), stop)
	startServer(&wg, logger, opsServer,
		server.NewSecurityLayer(cfg.GRPC.EnableHTTPS, cfg.GRPC.CertFileName, cfg.GRPC.PrivateKeyFileName), stop)

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", apiServer.Address())
	}
	health.Shutdown()
	stopHealth()
	if err := opsServer.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", opsServer.Address())
	}
	wg.Wait()

	retention.Stop()
	auditor.Close()
	if dropped := auditor.Dropped(); dropped > 0 {
		logger.Warn("audit entries dropped during run", "count", dropped)
	}

	if err := rdb.Close(); err != nil {
		logger.Error("failed to close redis client", "error", err)
	}
	if err := db.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("failed to flush telemetry", "error", err)
	}

	logger.Info("shutdown complete")
}

// startServer runs s in the background. A server that fails to start
// triggers shutdown of the whole process.
func startServer(wg *sync.WaitGroup, logger *logger.Logger, s model.Server, sl model.SecurityLayer, stop context.CancelFunc) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Starting server on", "address", s.Address())
		if err := s.Start(sl); err != nil {
			logger.Error("failed to start server", "error", err, "address", s.Address())
			stop()
		}
	}()
}

func redisProbe(rdb *redis.Client) grpchandler.Probe {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

func rateLimits(cfg config.RateLimit) map[middleware.RateClass]middleware.RateRule {
	return map[middleware.RateClass]middleware.RateRule{
		middleware.RateGeneral:  {Max: cfg.GeneralMax, Window: cfg.GeneralWindow},
		middleware.RateAuth:     {Max: cfg.AuthMax, Window: cfg.AuthWindow},
		middleware.RatePassword: {Max: cfg.PasswordMax, Window: cfg.PasswordWindow},
	}
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
