// Package bootstrap connects the stores and caches a process needs.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"piazza/internal/cache"
	"piazza/internal/config"
	"piazza/internal/database"
	"piazza/internal/docstore"
	"piazza/internal/repository"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// ApplySchema runs migrations (or AutoMigrate) on relational stores.
	ApplySchema bool
}

// Runtime bundles the connected backends and the repositories built on them.
// Exactly one of DB and Docs is set.
type Runtime struct {
	DB    *gorm.DB
	Docs  *docstore.Store
	Redis *redis.Client

	Users repository.UserRepository
	Posts repository.PostRepository
}

// InitRuntime connects the store selected by DB_DRIVER and Redis. Redis is
// optional; without it Redis stays nil and callers degrade.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	var rt *Runtime

	if cfg.DBDriver == config.DriverMongo {
		docs, err := docstore.Connect(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("document store connection failed: %w", err)
		}
		rt = &Runtime{Docs: docs, Users: docs.Users(), Posts: docs.Posts()}
	} else {
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		if opts.ApplySchema {
			if err := database.ApplySchema(ctx, db, cfg); err != nil {
				_ = database.Close(db)
				return nil, fmt.Errorf("schema setup failed: %w", err)
			}
		}
		rt = NewSQLRuntime(db, nil)
	}

	// Init Redis (may result in nil client if unreachable)
	cache.InitRedis(cfg.RedisURL)
	rt.Redis = cache.GetClient()

	return rt, nil
}

// NewSQLRuntime wraps an open gorm DB. Tests use it with SQLite.
func NewSQLRuntime(db *gorm.DB, rdb *redis.Client) *Runtime {
	return &Runtime{
		DB:    db,
		Redis: rdb,
		Users: repository.NewUserRepository(db),
		Posts: repository.NewPostRepository(db),
	}
}

// Driver names the active store for health output.
func (r *Runtime) Driver() string {
	if r.Docs != nil {
		return config.DriverMongo
	}
	if r.DB != nil {
		return r.DB.Dialector.Name()
	}
	return "none"
}

// Ping checks the primary store.
func (r *Runtime) Ping(ctx context.Context) error {
	switch {
	case r.Docs != nil:
		return r.Docs.Ping(ctx)
	case r.DB != nil:
		return database.Ping(ctx, r.DB)
	default:
		return errors.New("no store configured")
	}
}

// Close releases the store and the Redis client.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.Docs != nil {
		errs = append(errs, r.Docs.Close(ctx))
	}
	if r.DB != nil {
		errs = append(errs, database.Close(r.DB))
	}
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	return errors.Join(errs...)
}
