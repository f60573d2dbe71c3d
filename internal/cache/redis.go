// Package cache holds the shared Redis client and the small set of cached
// reads and token revocations built on it. Every helper is a no-op when
// Redis is not configured.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"piazza/internal/middleware"

	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// errorCounter feeds failed commands into the Prometheus counter. A cache
// miss (redis.Nil) is not a failure.
type errorCounter struct{}

func (errorCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (errorCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		countFailure(cmd.Name(), err)
		return err
	}
}

func (errorCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		countFailure("pipeline", err)
		return err
	}
}

func countFailure(command string, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		middleware.RedisErrors.WithLabelValues(command).Inc()
	}
}

// Connect builds a client from a redis:// URL or a bare host:port and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("redis address is empty")
	}

	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		opts = parsed
	}

	c := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// InitRedis connects the shared client. On failure the client stays nil and
// the application runs without a cache.
func InitRedis(addr string) {
	c, err := Connect(context.Background(), addr)
	if err != nil {
		middleware.Logger.Warn("Redis unavailable, continuing without cache",
			slog.String("error", err.Error()))
		SetClient(nil)
		return
	}
	SetClient(c)
	middleware.Logger.Info("Redis connected successfully")
}

// SetClient replaces the shared client. Tests point it at miniredis.
func SetClient(c *redis.Client) {
	if c != nil {
		c.AddHook(errorCounter{})
	}
	client = c
}

// GetClient returns the shared client, which may be nil.
func GetClient() *redis.Client {
	return client
}
