// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pedrozc90/tenantusers/internal/admin"
	"github.com/pedrozc90/tenantusers/internal/auth"
	"github.com/pedrozc90/tenantusers/internal/config"
	"github.com/pedrozc90/tenantusers/internal/core"
	"github.com/pedrozc90/tenantusers/internal/health"
	"github.com/pedrozc90/tenantusers/internal/index"
	"github.com/pedrozc90/tenantusers/internal/middleware"
	"github.com/pedrozc90/tenantusers/internal/server"
	"github.com/pedrozc90/tenantusers/internal/tenant"
	"github.com/pedrozc90/tenantusers/internal/user"
)

const tokenPurgeInterval = time.Hour

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	if cfg.Database.ApplySchema {
		if err := db.ApplySchema(ctx); err != nil {
			return err
		}
		logger.Info("database schema applied")
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized",
		"algorithm", "ES256",
		"key_id", jwtManager.GetKeyID(),
	)

	hasher := core.NewPasswordHasher(core.DefaultArgon2Params)

	tenantRepo := tenant.NewRepository(db.DB)
	tenantSvc := tenant.NewService(tenantRepo)
	tenantHandler := tenant.NewHandler(tenantSvc)

	authRepo := auth.NewRepository(db.DB)

	userRepo := user.NewRepository(db.DB)
	userSvc := user.NewService(userRepo, tenantSvc, authRepo, hasher)
	userHandler := user.NewHandler(userSvc)

	if cfg.Auth.MasterPassword != "" {
		if _, err := userSvc.EnsureMaster(
			ctx,
			cfg.Auth.MasterUsername,
			cfg.Auth.MasterEmail,
			cfg.Auth.MasterPassword,
		); err != nil {
			return err
		}
	}

	authSvc := auth.NewService(
		authRepo,
		jwtManager,
		userSvc,
		hasher,
		auth.NewRedisBlacklist(redis.Client),
	)
	authHandler := auth.NewHandler(authSvc, cfg.Auth.HideLockStatus)

	indexHandler := index.NewHandler(
		index.NewService(userSvc, tenantSvc),
		cfg.App.Name,
		cfg.App.Version,
	)

	healthHandler := health.NewHandler(
		health.Dependency{Name: "database", Checker: db},
		health.Dependency{Name: "redis", Checker: redis},
	)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:    db.Stats,
		RedisStats: redis.PoolStats,
		DBPing:     db.Ping,
		RedisPing:  redis.Ping,
		Tokens:     authSvc,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit: middleware.PerMinute(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
			),
			BypassFunc: health.IsProbe,
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.App.Environment == "production"))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	router.Get("/.well-known/jwks.json", jwtManager.GetJWKSHandler())

	loginLimiter := middleware.NewRateLimiter(
		redis.Client,
		middleware.RateLimitConfig{
			Limit: middleware.PerMinute(
				cfg.RateLimit.LoginRequests,
				cfg.RateLimit.LoginBurst,
			),
			KeyFunc: middleware.KeyByIPAndEndpoint,
		},
	).Handler

	userLimiter := middleware.NewRateLimiter(
		redis.Client,
		middleware.RateLimitConfig{
			Limit: middleware.PerMinute(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
			),
			KeyFunc: middleware.KeyByUser,
		},
	).Handler

	verify := middleware.Authenticator(authSvc)
	authenticator := func(next http.Handler) http.Handler {
		return verify(userLimiter(next))
	}

	indexHandler.RegisterRoutes(router, authenticator)
	authHandler.RegisterRoutes(router, authenticator, loginLimiter)
	userHandler.RegisterRoutes(router, authenticator)
	tenantHandler.RegisterRoutes(router, authenticator, middleware.RequireMaster)
	adminHandler.RegisterRoutes(router, authenticator)

	go purgeExpiredTokens(ctx, authSvc, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	drainDelay := cfg.Server.DrainDelay

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func purgeExpiredTokens(ctx context.Context, svc *auth.Service, logger *slog.Logger) {
	ticker := time.NewTicker(tokenPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := svc.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("refresh token purge failed", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Info("expired refresh tokens purged", "deleted", deleted)
			}
		}
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
