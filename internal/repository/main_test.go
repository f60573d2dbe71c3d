package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"piazza/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// newTestDB opens an isolated in-memory SQLite database with the schema applied.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return openTestDB(t, fmt.Sprintf("file:repo_test_%d?mode=memory&cache=shared&_foreign_keys=on", dbSeq.Add(1)))
}

// newFileTestDB opens a SQLite file so several pooled connections can write
// at once.
func newFileTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repo.db")
	return openTestDB(t, path+"?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL")
}

func openTestDB(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Post{}, &models.Comment{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// setupMockDB creates a GORM *gorm.DB backed by sqlmock for SQL shape tests.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return gormDB, mock
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	u := &models.User{Name: "User " + email, Email: email, Password: "hash"}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), u))
	return u
}

func seedPost(t *testing.T, db *gorm.DB, userID uint, topic string, expiresAt time.Time) *models.Post {
	t.Helper()
	p := &models.Post{
		Title:     "Post in " + topic,
		Content:   "content",
		UserID:    userID,
		Topic:     topic,
		ExpiresAt: expiresAt,
	}
	require.NoError(t, NewPostRepository(db).Create(context.Background(), p))
	return p
}
