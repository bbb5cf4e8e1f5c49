// Copyright (c) 2026 Shuhai. All rights reserved.

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wenqiu/shuhai/internal/platform/constants"
)

// RedisSessionRepository implements [SessionStore] on Redis. Sessions
// expire server-side via the key TTL, matching the cookie lifetime.
type RedisSessionRepository struct {
	client *redis.Client
}

// NewSessionRepository creates a new Redis-backed [SessionStore].
func NewSessionRepository(client *redis.Client) *RedisSessionRepository {
	return &RedisSessionRepository{client: client}
}

func sessionKey(sessionID string) string {
	return constants.RedisPrefixSession + sessionID
}

/*
Create registers a session ID with a TTL.

Parameters:
  - context: context.Context
  - sessionID: string (UUID)
  - ttl: time.Duration

Returns:
  - error: Execution errors
*/
func (repository *RedisSessionRepository) Create(context context.Context, sessionID string, ttl time.Duration) error {
	createdAt := time.Now().UTC().Format(time.RFC3339)

	if err := repository.client.Set(context, sessionKey(sessionID), createdAt, ttl).Err(); err != nil {
		return fmt.Errorf("redis_session_set_failed: %w", err)
	}

	return nil
}

/*
SessionExists reports whether the session is still live.

Parameters:
  - context: context.Context
  - sessionID: string

Returns:
  - bool: True when the key is present and unexpired
  - error: Connectivity errors
*/
func (repository *RedisSessionRepository) SessionExists(context context.Context, sessionID string) (bool, error) {
	_, err := repository.client.Get(context, sessionKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis_session_get_failed: %w", err)
	}

	return true, nil
}

/*
Delete revokes a session immediately.

Parameters:
  - context: context.Context
  - sessionID: string

Returns:
  - error: Deletion failures
*/
func (repository *RedisSessionRepository) Delete(context context.Context, sessionID string) error {
	if err := repository.client.Del(context, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis_session_delete_failed: %w", err)
	}

	return nil
}
