// Copyright (c) 2026 Shuhai. All rights reserved.

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/wenqiu/shuhai/internal/platform/apperr"
	"github.com/wenqiu/shuhai/internal/platform/constants"
	"github.com/wenqiu/shuhai/internal/platform/ctxutil"
	"github.com/wenqiu/shuhai/internal/platform/respond"
	"github.com/wenqiu/shuhai/internal/platform/sec"
)

// TokenVerifier defines the interface needed to verify session tokens in middleware.
//
// # Why an interface?
//
// Defining TokenVerifier here decouples the middleware from the `sec` token
// service, allowing us to easily inject mocks during unit testing.
type TokenVerifier interface {
	VerifyToken(tokenStr string) (*sec.SessionClaims, error)
}

// SessionChecker reports whether a session ID is still live (not revoked).
type SessionChecker interface {
	SessionExists(ctx context.Context, sessionID string) (bool, error)
}

// exemptPrefixes are paths reachable without an auth cookie: login, health
// probes, and static assets.
var exemptPrefixes = []string{
	"/api/auth/login",
	"/health",
	"/ready",
	"/static/",
}

func isExemptPath(path string) bool {
	for _, prefix := range exemptPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Authenticate verifies the signed auth_token cookie on every non-exempt request.
//
// # Flow
//  1. Exempt paths and disabled auth pass through untouched.
//  2. Read the auth_token cookie; reject if absent.
//  3. Verify signature and expiry via [TokenVerifier].
//  4. Confirm the session has not been revoked via [SessionChecker].
//  5. Inject [*sec.SessionClaims] into the request context.
//
// WebSocket upgrade paths are NOT rejected here even when unauthorized: the
// socket handlers perform their own check so they can close with code 4001
// instead of an HTTP error body.
func Authenticate(enabled bool, verifier TokenVerifier, sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if !enabled || isExemptPath(request.URL.Path) || strings.HasPrefix(request.URL.Path, "/ws/") {
				next.ServeHTTP(writer, request)
				return
			}

			claims, err := VerifyRequest(request, verifier, sessions)
			if err != nil {
				respond.Error(writer, request, err)
				return
			}

			ctx := ctxutil.WithSession(request.Context(), claims)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// VerifyRequest validates the auth cookie on a single request.
//
// It is shared between the HTTP middleware and the WebSocket handlers,
// which need to translate failures into close code 4001.
func VerifyRequest(request *http.Request, verifier TokenVerifier, sessions SessionChecker) (*sec.SessionClaims, error) {
	cookie, err := request.Cookie(constants.AuthCookieName)
	if err != nil || cookie.Value == "" {
		return nil, apperr.Unauthorized("Authentication required")
	}

	claims, err := verifier.VerifyToken(cookie.Value)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired token")
	}

	if sessions != nil {
		live, err := sessions.SessionExists(request.Context(), claims.SessionID)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if !live {
			return nil, apperr.Unauthorized("Session has been revoked")
		}
	}

	return claims, nil
}
