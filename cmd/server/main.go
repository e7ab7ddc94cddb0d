// Package main is the entrypoint for the fleetledger API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/fleetledger/internal/api"
	"github.com/kiranshivaraju/fleetledger/internal/api/handler"
	mw "github.com/kiranshivaraju/fleetledger/internal/api/middleware"
	"github.com/kiranshivaraju/fleetledger/internal/auth"
	"github.com/kiranshivaraju/fleetledger/internal/cache"
	"github.com/kiranshivaraju/fleetledger/internal/config"
	"github.com/kiranshivaraju/fleetledger/internal/metrics"
	"github.com/kiranshivaraju/fleetledger/internal/notify"
	"github.com/kiranshivaraju/fleetledger/internal/report"
	"github.com/kiranshivaraju/fleetledger/internal/store"
	"github.com/kiranshivaraju/fleetledger/internal/telemetry"
	"github.com/kiranshivaraju/fleetledger/internal/tenancy"
	"github.com/kiranshivaraju/fleetledger/internal/workflow"
)

const (
	shutdownTimeout = 30 * time.Second
	tokenTTL        = 12 * time.Hour
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	slog.SetDefault(newLogger(os.Getenv("LOG_LEVEL")))

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run() error {
	// 1. Load config, failing fast when it is invalid
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("config loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Caches: Redis is shared across instances, ristretto is per process.
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	l1, err := cache.NewMemoryCache(cfg.Cache.L1MaxBytes)
	if err != nil {
		return fmt.Errorf("create memory cache: %w", err)
	}
	defer l1.Close()

	// 5. Notification gateway
	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.Notify.NATSURL != "" {
		n, closeNATS, err := notify.Connect(cfg.Notify.NATSURL, cfg.Notify.SubjectPrefix)
		if err != nil {
			return fmt.Errorf("connect notifier: %w", err)
		}
		defer closeNATS()
		notifier = n
	}

	// 6. Services
	pgStore := store.NewPostgresStore(pool)
	m := metrics.New("fleetledger")

	tokens, err := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, tokenTTL)
	if err != nil {
		return fmt.Errorf("create token service: %w", err)
	}

	reports := report.New(pgStore,
		cache.NewTiered(l1, redisCache, cfg.Cache.SummaryTTL/2),
		redisCache,
		cfg.Cache.SummaryTTL,
		report.WithLookupRecorder(m),
	)
	engine := workflow.New(pgStore,
		workflow.WithNotifier(notifier),
		workflow.WithInvalidator(reports),
		workflow.WithRecorder(m),
	)

	// 7. Build router with dependencies
	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(pgStore, tokens),
		RateLimit: mw.NewRateLimit(redisCache, cfg.RateLimit.PerMinute),
		Resolver:  tenancy.NewResolver(pgStore),

		Workflow: engine,
		Reports:  reports,
		Health: handler.Health(map[string]handler.Pinger{
			"database": pgStore,
			"cache":    redisCache,
		}),

		Metrics:     m,
		ServiceName: cfg.Telemetry.ServiceName,
	})

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
