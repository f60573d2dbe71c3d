package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"piazza/internal/middleware"
	"piazza/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	maxConnsPerUser = 12
	maxTotalConns   = 10000
)

var (
	ErrHubClosed     = errors.New("hub is shut down")
	ErrServerFull    = errors.New("server connection limit reached")
	ErrUserConnLimit = errors.New("user connection limit reached")
)

// Hub fans feed events out to every open socket. Anonymous sockets share
// user 0 and are bounded only by the global cap.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	perUser map[uint]int
	closed  bool
}

// NewHub creates an empty feed hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		perUser: make(map[uint]int),
	}
}

// Name labels the hub in logs and metrics.
func (h *Hub) Name() string { return "feed hub" }

// Register admits conn for userID, enforcing the connection caps.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.closed:
		return nil, ErrHubClosed
	case len(h.clients) >= maxTotalConns:
		return nil, ErrServerFull
	case userID != 0 && h.perUser[userID] >= maxConnsPerUser:
		return nil, ErrUserConnLimit
	}

	c := NewClient(h, conn, userID)
	h.clients[c] = struct{}{}
	h.perUser[userID]++
	middleware.ActiveWebSockets.Inc()
	return c, nil
}

// UnregisterClient drops c and stops its writer. Repeated calls are no-ops.
func (h *Hub) UnregisterClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		if h.perUser[c.UserID]--; h.perUser[c.UserID] <= 0 {
			delete(h.perUser, c.UserID)
		}
		middleware.ActiveWebSockets.Dec()
	}
	h.mu.Unlock()
	c.Close(false)
}

// ClientCount returns the number of registered sockets.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastAll queues an encoded event on every socket.
func (h *Hub) BroadcastAll(message string) {
	var head struct {
		Type string `json:"type"`
	}
	if json.Unmarshal([]byte(message), &head) == nil && head.Type != "" {
		observability.WebSocketEventsTotal.WithLabelValues(head.Type).Inc()
	}

	data := []byte(message)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.TrySend(data)
	}
}

// StartWiring feeds the hub from the notifier: through the Redis
// subscription when there is one, directly otherwise.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	n.SetLocalFallback(h.BroadcastAll)
	return n.StartSubscriber(ctx, h.BroadcastAll)
}

// Shutdown closes every socket with a going-away frame and refuses new ones.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	n := len(h.clients)
	for c := range h.clients {
		c.Close(true)
	}
	middleware.ActiveWebSockets.Sub(float64(n))
	h.clients = make(map[*Client]struct{})
	h.perUser = make(map[uint]int)
	middleware.Logger.Info("feed hub closed", slog.Int("clients", n))
	return nil
}
