package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// StoreDown selects what a Throttle does when Redis cannot answer.
type StoreDown int

const (
	// StoreDownLocal counts in process instead.
	StoreDownLocal StoreDown = iota
	// StoreDownAllow lets the request through.
	StoreDownAllow
	// StoreDownReject answers 503.
	StoreDownReject
)

var errNoStore = errors.New("rate limit store not configured")

// Throttle is a fixed-window request budget shared by every replica through
// Redis. Callers are identified by user ID when authenticated, by IP otherwise.
type Throttle struct {
	Name      string
	Limit     int
	Window    time.Duration
	StoreDown StoreDown

	rdb       *redis.Client
	now       func() time.Time
	mu        sync.Mutex
	local     map[string]*localBucket
	lastSweep time.Time
}

type localBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewThrottle builds a throttle that falls back to in-process buckets.
func NewThrottle(rdb *redis.Client, name string, limit int, window time.Duration) *Throttle {
	return &Throttle{Name: name, Limit: limit, Window: window, rdb: rdb, now: time.Now}
}

func throttlingDisabled() bool {
	env := os.Getenv("APP_ENV")
	return env == "test" || env == "stress"
}

// Take spends one unit of caller's budget and reports whether it was available.
func (t *Throttle) Take(ctx context.Context, caller string) (bool, error) {
	if throttlingDisabled() {
		return true, nil
	}
	if t.rdb == nil {
		return false, errNoStore
	}
	if t.Limit <= 0 {
		return false, nil
	}

	key := fmt.Sprintf("piazza:rl:%s:%s", t.Name, caller)
	var incr *redis.IntCmd
	_, err := t.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.ExpireNX(ctx, key, t.Window)
		return nil
	})
	if err != nil {
		return false, err
	}
	return incr.Val() <= int64(t.Limit), nil
}

// takeLocal spends from an in-process token bucket. A bucket idle for a
// whole window is full again, so it is dropped rather than kept.
func (t *Throttle) takeLocal(caller string) bool {
	if t.Limit <= 0 {
		return false
	}
	now := time.Now()
	if t.now != nil {
		now = t.now()
	}

	t.mu.Lock()
	if t.local == nil {
		t.local = make(map[string]*localBucket)
	}
	if now.Sub(t.lastSweep) >= t.Window {
		for k, b := range t.local {
			if now.Sub(b.seen) >= t.Window {
				delete(t.local, k)
			}
		}
		t.lastSweep = now
	}
	b := t.local[caller]
	if b == nil {
		b = &localBucket{lim: rate.NewLimiter(rate.Every(t.Window/time.Duration(t.Limit)), t.Limit)}
		t.local[caller] = b
	}
	b.seen = now
	ok := b.lim.AllowN(now, 1)
	t.mu.Unlock()
	return ok
}

func (t *Throttle) localSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.local)
}

func callerOf(c *fiber.Ctx) string {
	if uid, ok := c.Locals("userID").(uint); ok && uid != 0 {
		return fmt.Sprintf("user:%d", uid)
	}
	return "ip:" + c.IP()
}

// Handler returns the Fiber middleware for this throttle.
func (t *Throttle) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller := callerOf(c)
		store := "redis"

		ok, err := t.Take(c.UserContext(), caller)
		if err != nil {
			switch t.StoreDown {
			case StoreDownAllow:
				return c.Next()
			case StoreDownReject:
				Logger.WarnContext(c.UserContext(), "throttle store unavailable",
					slog.String("throttle", t.Name), slog.String("error", err.Error()))
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "rate limit unavailable",
				})
			}
			store = "local"
			ok = t.takeLocal(caller)
		}

		if !ok {
			RateLimitRejections.WithLabelValues(t.Name, store).Inc()
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}
		return c.Next()
	}
}
