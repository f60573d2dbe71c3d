package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"piazza/internal/middleware"

	"gorm.io/gorm"
)

// Migration is one versioned SQL step with its rollback.
type Migration struct {
	Version    int
	Name       string
	UpScript   string
	DownScript string
}

func (m *Migration) String() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

//go:embed migrations/*.sql
var migrationFS embed.FS

var migrations, migrationsErr = parseMigrations(migrationFS, "migrations")

// parseMigrations pairs every NNNNNN_name.up.sql in dir with its .down.sql.
func parseMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	ups, err := fs.Glob(fsys, path.Join(dir, "*.up.sql"))
	if err != nil {
		return nil, err
	}

	out := make([]Migration, 0, len(ups))
	seen := make(map[int]string, len(ups))
	for _, up := range ups {
		base := strings.TrimSuffix(path.Base(up), ".up.sql")
		rawVersion, name, ok := strings.Cut(base, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: expected <version>_<name>.up.sql", up)
		}
		version, err := strconv.Atoi(rawVersion)
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version: %w", up, err)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by %s and %s", version, prev, name)
		}
		seen[version] = name

		upSQL, err := fs.ReadFile(fsys, up)
		if err != nil {
			return nil, err
		}
		downSQL, err := fs.ReadFile(fsys, path.Join(dir, base+".down.sql"))
		if err != nil {
			return nil, fmt.Errorf("migration %s has no down script: %w", base, err)
		}

		out = append(out, Migration{Version: version, Name: name, UpScript: string(upSQL), DownScript: string(downSQL)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// GetMigrations returns the embedded migrations in version order.
func GetMigrations() []Migration {
	return migrations
}

// GetMigrationByVersion returns nil for an unknown version.
func GetMigrationByVersion(version int) *Migration {
	for i := range migrations {
		if migrations[i].Version == version {
			return &migrations[i]
		}
	}
	return nil
}

// MigrationLog records an applied migration.
type MigrationLog struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	AppliedAt time.Time `gorm:"autoCreateTime;index"`
}

// TableName returns the database table name for MigrationLog.
func (MigrationLog) TableName() string {
	return "migration_logs"
}

// MigrationStore tracks which migrations a database has applied.
type MigrationStore interface {
	GetAppliedMigrations(ctx context.Context) ([]int, error)
	Apply(ctx context.Context, m Migration) error
	Revert(ctx context.Context, m Migration) error
}

type migrationStore struct {
	db *gorm.DB
}

// NewMigrationStore creates a MigrationStore over db.
func NewMigrationStore(db *gorm.DB) MigrationStore {
	return &migrationStore{db: db}
}

// GetAppliedMigrations returns an empty list before the ledger table exists.
func (s *migrationStore) GetAppliedMigrations(ctx context.Context) ([]int, error) {
	db := s.db.WithContext(ctx)
	if !db.Migrator().HasTable(&MigrationLog{}) {
		return []int{}, nil
	}
	var versions []int
	if err := db.Model(&MigrationLog{}).Order("version ASC").Pluck("version", &versions).Error; err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	return versions, nil
}

// Apply runs the up script and records it in one transaction.
func (s *migrationStore) Apply(ctx context.Context, m Migration) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.UpScript).Error; err != nil {
			return err
		}
		return tx.Create(&MigrationLog{Version: m.Version, Name: m.Name}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to apply migration %s: %w", m.String(), err)
	}
	middleware.Logger.Info("Migration applied", slog.Int("version", m.Version), slog.String("name", m.Name))
	return nil
}

// Revert runs the down script and forgets the version in one transaction.
func (s *migrationStore) Revert(ctx context.Context, m Migration) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.DownScript).Error; err != nil {
			return err
		}
		return tx.Where("version = ?", m.Version).Delete(&MigrationLog{}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to roll back migration %s: %w", m.String(), err)
	}
	middleware.Logger.Info("Migration rolled back", slog.Int("version", m.Version), slog.String("name", m.Name))
	return nil
}

// pendingMigrations returns registered migrations missing from applied.
func pendingMigrations(applied []int, registered []Migration) []Migration {
	done := make(map[int]struct{}, len(applied))
	for _, v := range applied {
		done[v] = struct{}{}
	}
	var pending []Migration
	for _, m := range registered {
		if _, ok := done[m.Version]; !ok {
			pending = append(pending, m)
		}
	}
	return pending
}

// validateAppliedVersions rejects a ledger that knows versions the binary
// does not, which means the database was migrated by newer code.
func validateAppliedVersions(applied []int, registered []Migration) error {
	known := make(map[int]struct{}, len(registered))
	for _, m := range registered {
		known[m.Version] = struct{}{}
	}

	var unknown []string
	for _, version := range applied {
		if _, ok := known[version]; !ok {
			unknown = append(unknown, fmt.Sprintf("%06d", version))
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("migration_logs contains unknown versions not present in code: %s", strings.Join(unknown, ", "))
}

// RunMigrations creates the ledger if needed and applies pending migrations
// in version order.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	if migrationsErr != nil {
		return fmt.Errorf("embedded migrations are invalid: %w", migrationsErr)
	}
	if err := db.WithContext(ctx).AutoMigrate(&MigrationLog{}); err != nil {
		return fmt.Errorf("failed to ensure migration logs table: %w", err)
	}

	store := NewMigrationStore(db)
	applied, err := store.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if err := validateAppliedVersions(applied, migrations); err != nil {
		return err
	}

	for _, m := range pendingMigrations(applied, migrations) {
		middleware.Logger.Info("Applying migration", slog.String("migration", m.String()))
		if err := store.Apply(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// RollbackMigration reverts one applied migration.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	m := GetMigrationByVersion(version)
	if m == nil {
		return fmt.Errorf("migration version %d not found", version)
	}

	store := NewMigrationStore(db)
	applied, err := store.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if len(pendingMigrations(applied, []Migration{*m})) > 0 {
		return fmt.Errorf("migration %d has not been applied", version)
	}
	return store.Revert(ctx, *m)
}
