package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebsocketFeed_ReceivesPostEvents(t *testing.T) {
	s, app := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.hub.StartWiring(ctx, s.notifier))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	var created struct {
		User struct {
			ID uint `json:"id"`
		} `json:"user"`
	}
	require.Equal(t, http.StatusCreated, doJSON(t, app, jsonRequest(t, http.MethodPost, "/users/create", map[string]string{
		"name": "Wes", "email": "wes@example.com", "password": "pass123",
	}), &created))

	var post postEnvelope
	require.Equal(t, http.StatusCreated, doJSON(t, app, jsonRequest(t, http.MethodPost, "/posts/create", map[string]interface{}{
		"title": "hello", "content": "feed", "user": created.User.ID,
		"topic": "Sport", "expiresAt": time.Now().Add(time.Hour).Format(time.RFC3339),
	}), &post))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt struct {
		Type    string `json:"type"`
		Payload struct {
			ID    uint   `json:"id"`
			Topic string `json:"topic"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &evt))
	assert.Equal(t, "post_created", evt.Type)
	assert.Equal(t, post.Post.ID, evt.Payload.ID)
	assert.Equal(t, "sport", evt.Payload.Topic)
}

func TestWebsocketFeed_ShutdownSendsGoingAway(t *testing.T) {
	s, app := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.hub.Shutdown(context.Background()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
