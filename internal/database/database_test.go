package database

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"piazza/internal/config"
	"piazza/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestConfigurePool(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := &config.Config{
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	}
	require.NoError(t, configurePool(db, cfg))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestConfigurePool_Defaults(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, configurePool(db, &config.Config{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 25, sqlDB.Stats().MaxOpenConnections)
}

func TestPostgresDSN(t *testing.T) {
	cfg := &config.Config{DBHost: "db", DBPort: "5432", DBUser: "u", DBPassword: "p", DBName: "piazza"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=piazza sslmode=disable", PostgresDSN(cfg))

	cfg.DBSSLMode = "require"
	assert.Contains(t, PostgresDSN(cfg), "sslmode=require")
}

func TestConnectAndApplySchema_SQLite(t *testing.T) {
	cfg := &config.Config{
		Env:        "test",
		DBDriver:   config.DriverSQLite,
		SQLitePath: "file:" + t.Name() + "?mode=memory&cache=shared",
	}

	db, err := Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	ctx := context.Background()
	require.NoError(t, Ping(ctx, db))
	require.NoError(t, ApplySchema(ctx, db, cfg))

	for _, table := range []interface{}{&models.User{}, &models.Post{}, &models.Comment{}} {
		assert.True(t, db.Migrator().HasTable(table))
	}

	status, err := GetSchemaStatus(ctx, db, cfg)
	require.NoError(t, err)
	assert.False(t, status.WillRunSQL)
	assert.True(t, status.WillRunAutoMigrate)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "piazza.db?_foreign_keys=on", SQLiteDSN("piazza.db"))
	assert.Equal(t, "file:x?mode=memory&_foreign_keys=on", SQLiteDSN("file:x?mode=memory"))
}

func TestConnect_SQLiteCascadesOnEveryConnection(t *testing.T) {
	cfg := &config.Config{
		Env:        "test",
		DBDriver:   config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "fk.db") + "?_busy_timeout=5000",
	}
	db, err := Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	ctx := context.Background()
	require.NoError(t, ApplySchema(ctx, db, cfg))

	u := &models.User{Name: "Ada", Email: "ada@example.com", Password: "hash"}
	require.NoError(t, db.Create(u).Error)
	p := &models.Post{Title: "t", Content: "c", UserID: u.ID, Topic: "tech", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, db.Create(p).Error)
	require.NoError(t, db.Create(&models.Comment{PostID: p.ID, UserID: u.ID, Message: "hi"}).Error)

	// Pin one pooled connection so the delete runs on another.
	tx := db.Begin()
	require.NoError(t, tx.Error)
	defer tx.Rollback()

	require.NoError(t, db.Delete(&models.User{}, u.ID).Error)

	var posts, comments int64
	require.NoError(t, db.Model(&models.Post{}).Count(&posts).Error)
	require.NoError(t, db.Model(&models.Comment{}).Count(&comments).Error)
	assert.Zero(t, posts)
	assert.Zero(t, comments)
}

func TestConnect_RejectsDocumentDriver(t *testing.T) {
	_, err := Connect(&config.Config{DBDriver: config.DriverMongo})
	assert.Error(t, err)
}

func TestSchemaPolicy(t *testing.T) {
	runSQL, runAuto := schemaPolicy(&config.Config{DBDriver: config.DriverPostgres, Env: "development"})
	assert.True(t, runSQL)
	assert.True(t, runAuto)

	runSQL, runAuto = schemaPolicy(&config.Config{DBDriver: config.DriverPostgres, Env: "production"})
	assert.True(t, runSQL)
	assert.False(t, runAuto)
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations := GetMigrations()
	require.GreaterOrEqual(t, len(migrations), 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "init_schema", migrations[0].Name)
	assert.Contains(t, migrations[0].UpScript, "CREATE TABLE IF NOT EXISTS posts")
	assert.Equal(t, "000001_init_schema", migrations[0].String())
	assert.NotNil(t, GetMigrationByVersion(2))
	assert.Nil(t, GetMigrationByVersion(99))
}

func TestValidateAppliedVersions(t *testing.T) {
	registered := GetMigrations()
	assert.NoError(t, validateAppliedVersions(nil, registered))
	assert.NoError(t, validateAppliedVersions([]int{1}, registered))

	err := validateAppliedVersions([]int{1, 42}, registered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000042")
}

func TestParseMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"m/000002_second.up.sql":   {Data: []byte("SELECT 2;")},
		"m/000002_second.down.sql": {Data: []byte("SELECT -2;")},
		"m/000001_first.up.sql":    {Data: []byte("SELECT 1;")},
		"m/000001_first.down.sql":  {Data: []byte("SELECT -1;")},
		"m/README.md":              {Data: []byte("ignored")},
	}
	got, err := parseMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "000001_first", got[0].String())
	assert.Equal(t, "SELECT -2;", got[1].DownScript)

	_, err = parseMigrations(fstest.MapFS{"m/000003_orphan.up.sql": {Data: []byte("SELECT 3;")}}, "m")
	assert.ErrorContains(t, err, "no down script")

	_, err = parseMigrations(fstest.MapFS{
		"m/abc_bad.up.sql":   {Data: []byte("x")},
		"m/abc_bad.down.sql": {Data: []byte("x")},
	}, "m")
	assert.ErrorContains(t, err, "bad version")
}

func TestPendingMigrations(t *testing.T) {
	registered := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}
	pending := pendingMigrations([]int{1, 3}, registered)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Version)
	assert.Empty(t, pendingMigrations([]int{1, 2, 3}, registered))
}
