package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const namespace = "piazza:"

// UserTTL bounds how stale a cached user read can be.
const UserTTL = 5 * time.Minute

// UserKey caches a user row by id.
func UserKey(userID uint) string {
	return namespace + "user:" + strconv.FormatUint(uint64(userID), 10)
}

// BlacklistKey marks a revoked token id.
func BlacklistKey(jti string) string {
	return namespace + "blacklist:" + jti
}

// Aside serves dest from Redis when the key is present. On a miss, or when
// Redis errors, it calls fetch to fill dest and then stores it with ttl. A
// failing fetch is never cached.
func Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	if client != nil {
		raw, err := client.Get(ctx, key).Bytes()
		if err == nil && json.Unmarshal(raw, dest) == nil {
			return nil
		}
	}

	if err := fetch(); err != nil {
		return err
	}

	if client != nil {
		if raw, err := json.Marshal(dest); err == nil {
			_ = client.Set(ctx, key, raw, ttl).Err()
		}
	}
	return nil
}

// Invalidate drops a cached key.
func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

// InvalidateUser drops the cached copy of a user after a write.
func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}

// RevokeToken blacklists a token id until ttl elapses. Tokens that are
// already expired need no entry.
func RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if client == nil || jti == "" || ttl <= 0 {
		return nil
	}
	if err := client.Set(ctx, BlacklistKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsTokenRevoked reports whether a token id is blacklisted. Without Redis
// nothing is ever revoked.
func IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if client == nil || jti == "" {
		return false, nil
	}
	err := client.Get(ctx, BlacklistKey(jti)).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}
