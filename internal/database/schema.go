package database

import (
	"context"
	"fmt"
	"log/slog"

	"piazza/internal/config"
	"piazza/internal/middleware"

	"gorm.io/gorm"
)

// SchemaStatus describes what ApplySchema will do for the current configuration.
type SchemaStatus struct {
	Driver             string
	Environment        string
	WillRunSQL         bool
	WillRunAutoMigrate bool
	AppliedVersions    []int
	PendingMigrations  []Migration
}

// schemaPolicy decides which schema steps apply. Versioned SQL targets
// PostgreSQL only; AutoMigrate fills gaps outside production and is the
// sole mechanism for SQLite.
func schemaPolicy(cfg *config.Config) (runSQL bool, runAuto bool) {
	if cfg.DBDriver == config.DriverSQLite {
		return false, true
	}
	return true, !cfg.IsProduction()
}

// AutoMigrate syncs every persistent model with GORM.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(PersistentModels()...)
}

// ApplySchema brings the relational schema up to date.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	runSQL, runAuto := schemaPolicy(cfg)

	if runSQL {
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	}

	if runAuto {
		middleware.Logger.Info("Running GORM AutoMigrate", slog.String("driver", cfg.DBDriver), slog.String("env", cfg.Env))
		if err := AutoMigrate(db); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}

	return nil
}

// GetSchemaStatus reports applied and pending SQL migrations.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	runSQL, runAuto := schemaPolicy(cfg)

	status := &SchemaStatus{
		Driver:             cfg.DBDriver,
		Environment:        cfg.Env,
		WillRunSQL:         runSQL,
		WillRunAutoMigrate: runAuto,
	}

	if !runSQL {
		return status, nil
	}

	store := NewMigrationStore(db)
	applied, err := store.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	status.AppliedVersions = applied
	status.PendingMigrations = pendingMigrations(applied, GetMigrations())

	return status, nil
}
