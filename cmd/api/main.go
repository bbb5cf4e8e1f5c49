// Copyright (c) 2026 Shuhai. All rights reserved.

// Command api is the entry point for the Shuhai HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire the blob store, provider clients, quota ledger and task engine.
//  7. Wire HTTP handlers.
//  8. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wenqiu/shuhai/internal/api"
	"github.com/wenqiu/shuhai/internal/core/artifact"
	"github.com/wenqiu/shuhai/internal/core/book"
	"github.com/wenqiu/shuhai/internal/core/quota"
	"github.com/wenqiu/shuhai/internal/core/reader"
	"github.com/wenqiu/shuhai/internal/core/task"
	"github.com/wenqiu/shuhai/internal/platform/config"
	"github.com/wenqiu/shuhai/internal/platform/constants"
	"github.com/wenqiu/shuhai/internal/platform/migration"
	pgstore "github.com/wenqiu/shuhai/internal/platform/postgres"
	redisstore "github.com/wenqiu/shuhai/internal/platform/redis"
	"github.com/wenqiu/shuhai/internal/platform/sec"
	"github.com/wenqiu/shuhai/internal/source"
	"github.com/wenqiu/shuhai/internal/store/blob"
	"github.com/wenqiu/shuhai/internal/users/account"
	"github.com/wenqiu/shuhai/internal/users/auth"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("service_initializing", slog.String("version", constants.AppVersion))

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.Bool("auth_enabled", cfg.AuthEnabled()),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing_postgres_pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing_redis_client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis_close_error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Storage, Providers, Quota, Engine ──────────────────────────────
	blobs, err := blob.New(cfg.DataDir)
	must(log, err, "initialize blob store")

	sources := source.NewFactory(source.Options{
		BaseURL: cfg.RainAPIBaseURL,
		APIKey:  cfg.RainAPIKey,
		Timeout: cfg.APITimeout(),
		Retries: cfg.APIRetryTimes,
		Logger:  log,
	})

	bookRepository := book.NewBookRepository(pool)
	chapterRepository := book.NewChapterRepository(pool)
	taskRepository := task.NewRepository(pool)

	ledger := quota.NewLedger(quota.NewStore(pool), cfg.DailyWordLimit, log)
	bus := task.NewBus(log)

	engine := task.NewEngine(task.Deps{
		Tasks:    taskRepository,
		Books:    bookRepository,
		Chapters: chapterRepository,
		Ledger:   ledger,
		Sources:  sources,
		Blobs:    blobs,
		Bus:      bus,
		Logger:   log,
		Workers:  cfg.ConcurrentDownloads,
		Delay:    cfg.DownloadDelay(),
	})
	defer engine.Close()

	// ── 7. Auth & Sessions ────────────────────────────────────────────────
	tokenService := sec.NewTokenService(cfg.SecretKey, constants.AuthIssuer)
	sessionRepository := auth.NewSessionRepository(rdb)
	authService, err := auth.NewService(sessionRepository, tokenService, cfg.AppPassword, cfg.SessionTTL(), log)
	must(log, err, "initialize auth service")

	// ── 8. Domain Services ────────────────────────────────────────────────
	bookService := book.NewService(bookRepository, chapterRepository, sources, blobs, log)

	readerService := reader.NewService(
		bookRepository,
		chapterRepository,
		reader.NewProgressRepository(pool),
		reader.NewBookmarkRepository(pool),
		reader.NewHistoryRepository(pool),
		blobs,
		engine,
		log,
	)

	builder := artifact.NewBuilder(bookRepository, chapterRepository, blobs, artifact.Metadata{
		Language:  cfg.EpubLanguage,
		Publisher: cfg.EpubPublisher,
	}, log)

	accountService := account.NewService(
		account.NewUserRepository(pool),
		account.NewShelfRepository(pool),
		bookRepository,
		log,
	)

	// ── 9. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      auth.NewHandler(authService, cfg.IsProduction()),
		Account:   account.NewHandler(accountService),
		Book:      book.NewHandler(bookService),
		Reader:    reader.NewHandler(readerService, account.DefaultUserID),
		Task:      task.NewHandler(engine, taskRepository),
		TaskSocket: task.NewSocketHandler(
			engine, taskRepository, bookRepository, bus,
			cfg.AuthEnabled(), tokenService, sessionRepository, log,
		),
		Quota:    quota.NewHandler(ledger),
		Artifact: artifact.NewHandler(builder),
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	server := api.NewServer(rootCtx, cfg, log, tokenService, sessionRepository, handlers)

	// ── 11. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server_startup_error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting_down_server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown_error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server_stopped_cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup_failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
