// Copyright (c) 2026 Shuhai. All rights reserved.

/*
Package auth implements the application password gate.

The deployment is protected by a single shared password rather than
per-user credentials. A successful login creates a revocable session in
Redis and hands the browser a signed JWT cookie carrying the session ID.
Every subsequent request is verified by the middleware against both the
signature and the live session, so logout takes effect immediately.

An empty configured password disables the gate entirely; the login
endpoint then reports auth as disabled and the middleware passes all
requests through.
*/
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wenqiu/shuhai/internal/platform/apperr"
	"github.com/wenqiu/shuhai/internal/platform/sec"
	"github.com/wenqiu/shuhai/pkg/uuid"
)

// # Contracts & Types

// SessionStore tracks live session IDs. Implemented on Redis so a
// restart does not log everyone out.
type SessionStore interface {

	// Create registers a session ID with a TTL.
	Create(context context.Context, sessionID string, ttl time.Duration) error

	// SessionExists reports whether the session is still live. Satisfies
	// [middleware.SessionChecker].
	SessionExists(context context.Context, sessionID string) (bool, error)

	// Delete revokes a session immediately.
	Delete(context context.Context, sessionID string) error
}

// TokenIssuer signs session tokens for the auth cookie.
type TokenIssuer interface {
	GenerateSessionToken(sessionID string, timeToLive time.Duration) (string, error)
}

// Session is the transport-ready result of a successful login.
type Session struct {
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// # Service Implementation

// Service implements the password gate use cases.
type Service struct {
	sessions     SessionStore
	tokens       TokenIssuer
	passwordHash string
	sessionTTL   time.Duration
	logger       *slog.Logger
}

/*
NewService constructs the auth [Service].

Description: The plain configured password is hashed once at startup so
the plaintext never lingers in memory past boot. An empty password
yields a disabled gate.

Parameters:
  - sessions: SessionStore
  - tokens: TokenIssuer
  - appPassword: string (Plain configured password, empty disables auth)
  - sessionTTL: time.Duration (Cookie and session lifetime)
  - logger: *slog.Logger

Returns:
  - *Service
  - error: Hashing failures
*/
func NewService(sessions SessionStore, tokens TokenIssuer, appPassword string, sessionTTL time.Duration, logger *slog.Logger) (*Service, error) {
	service := &Service{
		sessions:   sessions,
		tokens:     tokens,
		sessionTTL: sessionTTL,
		logger:     logger,
	}

	if appPassword != "" {
		hash, err := sec.HashPassword(appPassword)
		if err != nil {
			return nil, fmt.Errorf("auth: hash app password: %w", err)
		}
		service.passwordHash = hash
	}

	return service, nil
}

// Enabled reports whether the password gate is active.
func (service *Service) Enabled() bool {
	return service.passwordHash != ""
}

/*
Login verifies the application password and establishes a session.

Parameters:
  - context: context.Context
  - password: string

Returns:
  - *Session: Signed cookie token and its expiry
  - error: Conflict when auth is disabled, Unauthorized on a wrong
    password, storage failures otherwise
*/
func (service *Service) Login(context context.Context, password string) (*Session, error) {
	if !service.Enabled() {
		return nil, apperr.Conflict("Authentication is disabled")
	}

	if !sec.CheckPasswordHash(password, service.passwordHash) {
		service.logger.Warn("auth_login_rejected")
		return nil, apperr.Unauthorized("Invalid password")
	}

	sessionID := uuid.New()
	if err := service.sessions.Create(context, sessionID, service.sessionTTL); err != nil {
		return nil, fmt.Errorf("auth: create session: %w", err)
	}

	token, err := service.tokens.GenerateSessionToken(sessionID, service.sessionTTL)
	if err != nil {
		// Roll back the orphaned session entry.
		_ = service.sessions.Delete(context, sessionID)
		return nil, fmt.Errorf("auth: sign session token: %w", err)
	}

	service.logger.Info("auth_session_created", slog.String("session_id", sessionID))

	return &Session{
		Token:     token,
		ExpiresAt: time.Now().Add(service.sessionTTL),
	}, nil
}

/*
Logout revokes the session behind the presented cookie.

Description: Idempotent; a missing or already-revoked session still
counts as a successful logout.
*/
func (service *Service) Logout(context context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := service.sessions.Delete(context, sessionID); err != nil {
		return fmt.Errorf("auth: revoke session: %w", err)
	}

	service.logger.Info("auth_session_revoked", slog.String("session_id", sessionID))
	return nil
}

// Status describes the gate for the login screen.
type Status struct {
	Enabled       bool `json:"enabled"`
	Authenticated bool `json:"authenticated"`
}
