// Copyright (c) 2026 Shuhai. All rights reserved.

package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenqiu/shuhai/internal/platform/apperr"
	"github.com/wenqiu/shuhai/internal/platform/sec"
)

// # Test Fakes

type memSessionStore struct {
	sessions map[string]struct{}
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]struct{})}
}

func (store *memSessionStore) Create(_ context.Context, sessionID string, _ time.Duration) error {
	store.sessions[sessionID] = struct{}{}
	return nil
}

func (store *memSessionStore) SessionExists(_ context.Context, sessionID string) (bool, error) {
	_, ok := store.sessions[sessionID]
	return ok, nil
}

func (store *memSessionStore) Delete(_ context.Context, sessionID string) error {
	delete(store.sessions, sessionID)
	return nil
}

func newTestService(t *testing.T, password string) (*Service, *memSessionStore, *sec.TokenService) {
	t.Helper()

	store := newMemSessionStore()
	tokens := sec.NewTokenService("test-secret", "shuhai.test")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	service, err := NewService(store, tokens, password, time.Hour, logger)
	require.NoError(t, err)

	return service, store, tokens
}

// # Tests

func TestLoginIssuesRevocableSession(t *testing.T) {
	service, store, tokens := newTestService(t, "hunter22")

	session, err := service.Login(context.Background(), "hunter22")
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)

	claims, err := tokens.VerifyToken(session.Token)
	require.NoError(t, err)

	live, err := store.SessionExists(context.Background(), claims.SessionID)
	require.NoError(t, err)
	assert.True(t, live, "the token must reference a live session")
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	service, store, _ := newTestService(t, "hunter22")

	_, err := service.Login(context.Background(), "wrong")
	require.Error(t, err)

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, 401, appErr.HTTPStatus)
	assert.Empty(t, store.sessions)
}

func TestLoginWhenGateDisabled(t *testing.T) {
	service, _, _ := newTestService(t, "")

	assert.False(t, service.Enabled())

	_, err := service.Login(context.Background(), "anything")
	require.Error(t, err)

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, 409, appErr.HTTPStatus)
}

func TestLogoutRevokesSession(t *testing.T) {
	service, store, tokens := newTestService(t, "hunter22")

	session, err := service.Login(context.Background(), "hunter22")
	require.NoError(t, err)

	claims, err := tokens.VerifyToken(session.Token)
	require.NoError(t, err)

	require.NoError(t, service.Logout(context.Background(), claims.SessionID))

	live, err := store.SessionExists(context.Background(), claims.SessionID)
	require.NoError(t, err)
	assert.False(t, live)

	// Idempotent: a second logout is not an error.
	require.NoError(t, service.Logout(context.Background(), claims.SessionID))
}
