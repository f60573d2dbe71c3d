package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"piazza/internal/bootstrap"
	"piazza/internal/config"
	"piazza/internal/database"
	"piazza/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDBSeq atomic.Int64

// newTestServer builds the full app over an in-memory SQLite store without Redis.
func newTestServer(t *testing.T) (*Server, *fiber.App) {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	cfg := &config.Config{
		Port:           "0",
		Env:            "test",
		DBDriver:       config.DriverSQLite,
		SQLitePath:     fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", testDBSeq.Add(1)),
		JWTSecret:      testJWTSecret,
		JWTTTL:         time.Hour,
		SessionSecret:  "session-secret",
		AllowedOrigins: "http://localhost:5173",
		FeatureFlags:   "expiry_sweeper=on",
	}

	ctx := context.Background()
	db, err := database.Connect(cfg)
	require.NoError(t, err)
	require.NoError(t, database.ApplySchema(ctx, db, cfg))

	rt := bootstrap.NewSQLRuntime(db, nil)
	t.Cleanup(func() { _ = rt.Close(ctx) })

	s, err := NewServer(cfg, rt)
	require.NoError(t, err)
	return s, s.NewApp()
}

type postEnvelope struct {
	Message string        `json:"message"`
	Post    models.Post   `json:"post"`
	Posts   []models.Post `json:"posts"`
	Error   string        `json:"error"`
}

func doJSON(t *testing.T, app *fiber.App, req *http.Request, out any) int {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestNewServer_RequiresRuntime(t *testing.T) {
	_, err := NewServer(&config.Config{}, nil)
	assert.Error(t, err)
	_, err = NewServer(&config.Config{}, &bootstrap.Runtime{})
	assert.Error(t, err)
}

func TestServer_Welcome(t *testing.T) {
	_, app := newTestServer(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Welcome to the Piazza system!", string(body))
}

func TestServer_Health(t *testing.T) {
	_, app := newTestServer(t)

	var live map[string]interface{}
	assert.Equal(t, http.StatusOK, doJSON(t, app, httptest.NewRequest(http.MethodGet, "/health/live", nil), &live))
	assert.Equal(t, "up", live["status"])

	var ready struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	assert.Equal(t, http.StatusOK, doJSON(t, app, httptest.NewRequest(http.MethodGet, "/health/ready", nil), &ready))
	assert.Equal(t, "degraded", ready.Status)
	assert.Equal(t, "healthy", ready.Checks["database"])
	assert.Equal(t, "sqlite", ready.Checks["driver"])
	assert.Equal(t, "unavailable", ready.Checks["redis"])
}

func TestServer_FeatureFlagsAndFeed(t *testing.T) {
	_, app := newTestServer(t)

	var flags struct {
		Flags     []string        `json:"flags"`
		Evaluated map[string]bool `json:"evaluated"`
	}
	assert.Equal(t, http.StatusOK, doJSON(t, app, httptest.NewRequest(http.MethodGet, "/feature-flags", nil), &flags))
	assert.Contains(t, flags.Flags, "websocket_feed")
	assert.True(t, flags.Evaluated["expiry_sweeper"])

	// Plain HTTP on the feed endpoint is refused.
	var errBody models.ErrorResponse
	assert.Equal(t, http.StatusUpgradeRequired, doJSON(t, app, httptest.NewRequest(http.MethodGet, "/ws", nil), &errBody))
	assert.Equal(t, "WebSocket upgrade required", errBody.Error)
}

func TestServer_PostLifecycle(t *testing.T) {
	_, app := newTestServer(t)

	var created struct {
		Message string             `json:"message"`
		User    models.UserSummary `json:"user"`
	}
	status := doJSON(t, app, jsonRequest(t, http.MethodPost, "/users/create", map[string]string{
		"name": "Olga", "email": "olga@example.com", "password": "pass123",
	}), &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "User Olga created successfully!", created.Message)
	userID := created.User.ID

	newPost := func(title string, expiresAt time.Time) models.Post {
		var env postEnvelope
		status := doJSON(t, app, jsonRequest(t, http.MethodPost, "/posts/create", map[string]interface{}{
			"title": title, "content": "body of " + title, "user": userID,
			"topic": "Tech", "expiresAt": expiresAt.Format(time.RFC3339),
		}), &env)
		require.Equal(t, http.StatusCreated, status, env.Error)
		assert.Equal(t, "Post created successfully!", env.Message)
		return env.Post
	}

	live := newPost("live", time.Now().Add(time.Hour))
	quiet := newPost("quiet", time.Now().Add(2*time.Hour))
	expired := newPost("gone", time.Now().Add(-time.Hour))
	assert.Equal(t, "tech", live.Topic)
	assert.Equal(t, models.PostStatusLive, live.Status)
	assert.Equal(t, models.PostStatusExpired, expired.Status)

	// Two likes add exactly two.
	for i := 0; i < 2; i++ {
		var env postEnvelope
		require.Equal(t, http.StatusOK, doJSON(t, app,
			httptest.NewRequest(http.MethodPost, fmt.Sprintf("/posts/%d/like", live.ID), nil), &env))
		assert.Equal(t, "Post liked!", env.Message)
	}
	var disliked postEnvelope
	require.Equal(t, http.StatusOK, doJSON(t, app,
		httptest.NewRequest(http.MethodPost, fmt.Sprintf("/posts/%d/dislike", quiet.ID), nil), &disliked))
	assert.Equal(t, int64(1), disliked.Post.Dislikes)

	var active postEnvelope
	require.Equal(t, http.StatusOK, doJSON(t, app,
		httptest.NewRequest(http.MethodGet, "/posts/topic/tech/most-active", nil), &active))
	assert.Equal(t, "Most active post for topic: tech", active.Message)
	assert.Equal(t, live.ID, active.Post.ID)
	assert.Equal(t, int64(2), active.Post.Likes)

	var livePosts postEnvelope
	require.Equal(t, http.StatusOK, doJSON(t, app,
		httptest.NewRequest(http.MethodGet, "/posts/topic/tech", nil), &livePosts))
	assert.Len(t, livePosts.Posts, 2)

	var commented postEnvelope
	require.Equal(t, http.StatusCreated, doJSON(t, app, jsonRequest(t, http.MethodPost,
		fmt.Sprintf("/posts/%d/comment", live.ID), map[string]interface{}{"user": userID, "message": "first!"}), &commented))
	assert.Equal(t, "Comment added successfully!", commented.Message)
	require.Len(t, commented.Post.Comments, 1)
	assert.Equal(t, "first!", commented.Post.Comments[0].Message)

	// Deleting a comment that does not exist still succeeds and changes nothing.
	var deleted postEnvelope
	require.Equal(t, http.StatusOK, doJSON(t, app, httptest.NewRequest(http.MethodDelete,
		fmt.Sprintf("/posts/%d/comment/%d", live.ID, commented.Post.Comments[0].ID+100), nil), &deleted))
	assert.Equal(t, "Comment deleted successfully!", deleted.Message)
	assert.Len(t, deleted.Post.Comments, 1)

	require.Equal(t, http.StatusOK, doJSON(t, app, httptest.NewRequest(http.MethodDelete,
		fmt.Sprintf("/posts/%d/comment/%d", live.ID, commented.Post.Comments[0].ID), nil), &deleted))
	assert.Empty(t, deleted.Post.Comments)

	// Expired posts refuse interactions.
	var refused postEnvelope
	assert.Equal(t, http.StatusForbidden, doJSON(t, app,
		httptest.NewRequest(http.MethodPost, fmt.Sprintf("/posts/%d/like", expired.ID), nil), &refused))
	assert.Equal(t, "This post has expired and cannot be interacted with.", refused.Error)

	var expiredPosts postEnvelope
	require.Equal(t, http.StatusOK, doJSON(t, app,
		httptest.NewRequest(http.MethodGet, "/posts/topic/tech/expired", nil), &expiredPosts))
	require.Len(t, expiredPosts.Posts, 1)
	assert.Equal(t, expired.ID, expiredPosts.Posts[0].ID)

	var checked postEnvelope
	require.Equal(t, http.StatusOK, doJSON(t, app,
		httptest.NewRequest(http.MethodPut, fmt.Sprintf("/posts/check-status/%d", expired.ID), nil), &checked))
	assert.Equal(t, "Post status updated.", checked.Message)
	assert.Equal(t, models.PostStatusExpired, checked.Post.Status)
}

func TestServer_RegisterLoginProfile(t *testing.T) {
	_, app := newTestServer(t)

	var registered map[string]interface{}
	require.Equal(t, http.StatusCreated, doJSON(t, app, jsonRequest(t, http.MethodPost, "/auth/register", map[string]string{
		"name": "Lin", "email": "lin@example.com", "password": "Str0ng!Passw0rd",
	}), &registered))
	assert.Equal(t, "User Lin registered successfully!", registered["message"])

	var login struct {
		Message string `json:"message"`
		Token   string `json:"token"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, app, jsonRequest(t, http.MethodPost, "/auth/login", map[string]string{
		"email": "lin@example.com", "password": "Str0ng!Passw0rd",
	}), &login))
	require.NotEmpty(t, login.Token)

	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	var profile models.User
	require.Equal(t, http.StatusOK, doJSON(t, app, req, &profile))
	assert.Equal(t, "lin@example.com", profile.Email)

	var errBody models.ErrorResponse
	assert.Equal(t, http.StatusUnauthorized, doJSON(t, app,
		httptest.NewRequest(http.MethodGet, "/auth/profile", nil), &errBody))
}
