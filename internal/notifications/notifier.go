// Package notifications fans post events out to WebSocket feed clients,
// through Redis pub/sub when it is available.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"piazza/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// BroadcastChannel carries every feed event between API instances.
const BroadcastChannel = "piazza:events:broadcast"

// Event types published to the feed.
const (
	EventPostCreated  = "post_created"
	EventPostLiked    = "post_liked"
	EventPostDisliked = "post_disliked"
	EventCommentAdded = "comment_added"
	EventPostExpired  = "post_expired"
)

// Event is the JSON envelope sent to feed clients.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Notifier publishes feed events into Redis. Without Redis, or when a
// publish fails, events go to the local fallback instead.
type Notifier struct {
	rdb *redis.Client

	mu    sync.RWMutex
	local func(payload string)
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// SetLocalFallback sets the in-process delivery used when Redis is unavailable.
func (n *Notifier) SetLocalFallback(fn func(payload string)) {
	n.mu.Lock()
	n.local = fn
	n.mu.Unlock()
}

func (n *Notifier) deliverLocal(payload string) {
	n.mu.RLock()
	fn := n.local
	n.mu.RUnlock()
	if fn != nil {
		fn(payload)
	}
}

// Publish encodes an event and broadcasts it.
func (n *Notifier) Publish(ctx context.Context, eventType string, payload any) error {
	if n == nil {
		return nil
	}
	data, err := json.Marshal(Event{Type: eventType, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if n.rdb == nil {
		n.deliverLocal(string(data))
		return nil
	}
	if err := n.rdb.Publish(ctx, BroadcastChannel, string(data)).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "event publish failed, delivering locally",
			slog.String("event", eventType), slog.String("error", err.Error()))
		n.deliverLocal(string(data))
	}
	return nil
}

// StartSubscriber subscribes to the broadcast channel and calls onMessage for
// each payload until ctx is cancelled. It returns once the subscription is
// confirmed.
func (n *Notifier) StartSubscriber(ctx context.Context, onMessage func(payload string)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, BroadcastChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", BroadcastChannel, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in event subscriber",
								slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
						}
					}()
					onMessage(msg.Payload)
				}()
			}
		}
	}()

	return nil
}
