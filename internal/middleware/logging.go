// Package middleware provides HTTP middleware shared by the Piazza API:
// structured logging, token verification, rate limiting, metrics, and tracing.
package middleware

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger is the process-wide structured logger. cmd/server replaces it once
// configuration is loaded.
var Logger = NewLogger(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
	TraceIDKey   contextKey = "trace_id"
)

// requestFields maps Fiber locals to the context keys copied onto every log
// record written with a request context.
var requestFields = []struct {
	local string
	key   contextKey
}{
	{"requestid", RequestIDKey},
	{"userID", UserIDKey},
	{"traceID", TraceIDKey},
}

// requestHandler decorates records with the request fields found in ctx.
type requestHandler struct {
	slog.Handler
}

func (h requestHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, f := range requestFields {
		switch v := ctx.Value(f.key).(type) {
		case string:
			r.AddAttrs(slog.String(string(f.key), v))
		case uint:
			r.AddAttrs(slog.Uint64(string(f.key), uint64(v)))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h requestHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return requestHandler{h.Handler.WithAttrs(attrs)}
}

func (h requestHandler) WithGroup(name string) slog.Handler {
	return requestHandler{h.Handler.WithGroup(name)}
}

// NewLogger writes JSON in production and logfmt-style text elsewhere.
func NewLogger(env, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if e := strings.ToLower(env); e == "production" || e == "prod" {
		return slog.New(requestHandler{slog.NewJSONHandler(os.Stdout, opts)})
	}
	return slog.New(requestHandler{slog.NewTextHandler(os.Stdout, opts)})
}

// ContextMiddleware copies request ID, user ID and trace ID from Fiber locals
// into the user context so service-layer logs carry them.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		for _, f := range requestFields {
			if v := c.Locals(f.local); v != nil {
				ctx = context.WithValue(ctx, f.key, v)
			}
		}
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// WithUserID records the authenticated user in locals and the user context.
func WithUserID(c *fiber.Ctx, userID uint) {
	c.Locals("userID", userID)
	c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, userID))
}

// StructuredLogger logs one line per request once the handler chain returns.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		ctx := c.UserContext()
		status := c.Response().StatusCode()
		attrs := []any{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
			slog.String("user_agent", c.Get(fiber.HeaderUserAgent)),
		}

		switch {
		case err != nil:
			Logger.ErrorContext(ctx, "request failed", append(attrs, slog.String("error", err.Error()))...)
		case status >= fiber.StatusInternalServerError:
			Logger.ErrorContext(ctx, "request errored", attrs...)
		default:
			Logger.InfoContext(ctx, "request processed", attrs...)
		}
		return err
	}
}
