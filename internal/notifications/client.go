package notifications

import (
	"log/slog"
	"sync"
	"time"

	"piazza/internal/middleware"
	"piazza/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256

	// The feed is one-way; peers only send control frames.
	maxMessageSize = 512
)

// WSHub is the part of a hub a client reports back to.
type WSHub interface {
	UnregisterClient(c *Client)
	Name() string
}

// Client is one feed socket. The hub queues events on Send; WritePump is
// the only goroutine that writes to Conn.
type Client struct {
	Hub    WSHub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID uint

	mu       sync.Mutex
	closed   bool
	shutdown bool
}

// NewClient creates a client with a buffered outbound queue.
func NewClient(hub WSHub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		Hub:    hub,
		Conn:   conn,
		UserID: userID,
		Send:   make(chan []byte, sendBufferSize),
	}
}

// Serve runs the socket until the peer goes away or the hub closes it.
func (c *Client) Serve() {
	go c.WritePump()
	c.ReadPump()
}

// Close stops delivery. WritePump sends a close frame and exits; when
// goingAway is set the frame tells the peer the server is shutting down.
func (c *Client) Close(goingAway bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.shutdown = goingAway
	close(c.Send)
}

// TrySend queues a message without blocking. A full queue or a closed
// client drops the message and counts it.
func (c *Client) TrySend(message []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		observability.WebSocketBackpressureDrops.WithLabelValues(c.Hub.Name(), "closed").Inc()
		return
	}

	select {
	case c.Send <- message:
	default:
		// Slow reader. The client re-fetches the topic on reconnect.
		observability.WebSocketBackpressureDrops.WithLabelValues(c.Hub.Name(), "full").Inc()
		middleware.Logger.Debug("feed buffer full, dropped event", slog.Uint64("user_id", uint64(c.UserID)))
	}
}

// ReadPump discards inbound frames and keeps the read deadline fresh on
// pongs. It returns when the connection fails.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				middleware.Logger.Warn("feed socket closed unexpectedly",
					slog.Uint64("user_id", uint64(c.UserID)), slog.String("error", err.Error()))
			}
			return
		}
	}
}

// WritePump drains Send to the socket and pings on an interval.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, c.closeFrame())
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) closeFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")
	}
	return websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
}
