package seed

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"piazza/internal/bootstrap"
	"piazza/internal/config"
	"piazza/internal/database"
	"piazza/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dbSeq atomic.Int64

func newSQLiteRuntime(t *testing.T) *bootstrap.Runtime {
	t.Helper()
	cfg := &config.Config{
		Env:        "test",
		DBDriver:   config.DriverSQLite,
		SQLitePath: fmt.Sprintf("file:seed_test_%d?mode=memory&cache=shared", dbSeq.Add(1)),
	}
	ctx := context.Background()
	db, err := database.Connect(cfg)
	require.NoError(t, err)
	require.NoError(t, database.ApplySchema(ctx, db, cfg))

	rt := bootstrap.NewSQLRuntime(db, nil)
	t.Cleanup(func() { _ = rt.Close(ctx) })
	return rt
}

func TestSeeder_Run(t *testing.T) {
	rt := newSQLiteRuntime(t)
	ctx := context.Background()

	s := ForRuntime(rt, Options{NumUsers: 4, NumPosts: 15, SkipBcrypt: true, RandSeed: 42})
	res, err := s.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Users)
	assert.Equal(t, 15, res.Posts)
	assert.Equal(t, res.Posts, res.Live+res.Expired)

	var users, posts, comments int64
	require.NoError(t, rt.DB.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, rt.DB.Model(&models.Post{}).Count(&posts).Error)
	require.NoError(t, rt.DB.Model(&models.Comment{}).Count(&comments).Error)
	assert.Equal(t, int64(4), users)
	assert.Equal(t, int64(15), posts)
	assert.Equal(t, int64(res.Comments), comments)

	var likes int64
	require.NoError(t, rt.DB.Model(&models.Post{}).Select("COALESCE(SUM(likes), 0)").Scan(&likes).Error)
	assert.Equal(t, int64(res.Likes), likes)

	var engagedExpired int64
	require.NoError(t, rt.DB.Model(&models.Post{}).
		Where("status = ? AND (likes > 0 OR dislikes > 0)", models.PostStatusExpired).
		Count(&engagedExpired).Error)
	assert.Zero(t, engagedExpired, "expired posts take no reactions")
}

func TestSeeder_CleanReplacesData(t *testing.T) {
	rt := newSQLiteRuntime(t)
	ctx := context.Background()

	_, err := ForRuntime(rt, Options{NumUsers: 3, NumPosts: 5, SkipBcrypt: true, RandSeed: 1}).Run(ctx)
	require.NoError(t, err)

	res, err := ForRuntime(rt, Options{NumUsers: 2, NumPosts: 3, SkipBcrypt: true, ShouldClean: true, RandSeed: 2}).Run(ctx)
	require.NoError(t, err)

	var users, posts int64
	require.NoError(t, rt.DB.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, rt.DB.Model(&models.Post{}).Count(&posts).Error)
	assert.Equal(t, int64(res.Users), users)
	assert.Equal(t, int64(res.Posts), posts)
}

func TestSeeder_CleanUnsupported(t *testing.T) {
	rt := newSQLiteRuntime(t)

	_, err := NewSeeder(rt.Users, rt.Posts, nil, Options{ShouldClean: true}).Run(context.Background())
	assert.Error(t, err)
}

func TestSeeder_NoUsersNoPosts(t *testing.T) {
	rt := newSQLiteRuntime(t)

	res, err := ForRuntime(rt, Options{NumUsers: 0, NumPosts: 10}).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Posts)
}
