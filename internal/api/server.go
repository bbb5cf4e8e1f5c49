// Copyright (c) 2026 Shuhai. All rights reserved.

/*
Package api wires together the HTTP router, middleware chain, and all
domain handlers into a runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the central composition root for the HTTP transport framework (chi router).
  - Only this package and cmd/api are allowed to import net/http server primitives.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wenqiu/shuhai/internal/core/artifact"
	"github.com/wenqiu/shuhai/internal/core/book"
	"github.com/wenqiu/shuhai/internal/core/quota"
	"github.com/wenqiu/shuhai/internal/core/reader"
	"github.com/wenqiu/shuhai/internal/core/task"
	"github.com/wenqiu/shuhai/internal/platform/config"
	"github.com/wenqiu/shuhai/internal/platform/constants"
	"github.com/wenqiu/shuhai/internal/platform/middleware"
	"github.com/wenqiu/shuhai/internal/users/account"
	"github.com/wenqiu/shuhai/internal/users/auth"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Handler Registry

// Handlers groups all domain-specific HTTP handler sets.
//
// # Usage
//
// New domains add a field here — no other change to server.go is required.
type Handlers struct {
	// Liveness is the /health handler — always returns 200 if process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler — returns 200 when all deps are healthy.
	Readiness http.HandlerFunc

	// Auth handles the application password gate (login, logout, status).
	Auth *auth.Handler

	// Account manages reader profiles and their shelves.
	Account *account.Handler

	// Book handles the catalog: search, ingestion, TOC, stats.
	Book *book.Handler

	// Reader serves chapter content, progress, bookmarks and history.
	Reader *reader.Handler

	// Task drives download orchestration over HTTP.
	Task *task.Handler

	// TaskSocket streams live task progress over WebSocket.
	TaskSocket *task.SocketHandler

	// Quota exposes the daily word ledger.
	Quota *quota.Handler

	// Artifact assembles and serves EPUB/TXT outputs.
	Artifact *artifact.Handler
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups.
func NewServer(
	context context.Context,
	cfg *config.Config,
	log *slog.Logger,
	verifier middleware.TokenVerifier,
	sessions middleware.SessionChecker,
	h Handlers,
) *Server {
	r := chi.NewRouter()

	// # Middleware Chain
	// Global middleware applied in order of execution.
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(log))
	r.Use(chimw.Timeout(constants.GlobalRequestTimeout))
	r.Use(middleware.RateLimit(context))
	r.Use(middleware.PanicRecovery(log))
	r.Use(middleware.Authenticate(cfg.AuthEnabled(), verifier, sessions))
	r.Use(middleware.CORS(cfg))
	r.Use(chimw.CleanPath)

	// # Infrastructure Endpoints
	// Unauthenticated health probes for container orchestration.
	r.Get("/health", h.Liveness)
	r.Head("/health", h.Liveness)
	r.Get("/ready", h.Readiness)

	// # Application API
	// Handlers register flat paths on a shared /api subtree because several
	// packages contribute routes under the same /books/{id} prefix.
	r.Route("/api", func(api chi.Router) {
		h.Auth.RegisterRoutes(api)
		h.Account.RegisterRoutes(api)
		h.Book.RegisterRoutes(api)
		h.Reader.RegisterRoutes(api)
		h.Task.RegisterRoutes(api)
		h.Quota.RegisterRoutes(api)
		h.Artifact.RegisterRoutes(api)
	})

	// # Progress Streaming
	// Sockets live outside /api: the auth middleware skips /ws/ paths so the
	// handlers can close with code 4001 instead of an HTTP error body.
	h.TaskSocket.RegisterRoutes(r)

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server_starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}
