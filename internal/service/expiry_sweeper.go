package service

import (
	"context"
	"log/slog"
	"time"

	"piazza/internal/featureflags"
	"piazza/internal/middleware"
	"piazza/internal/notifications"
	"piazza/internal/observability"
	"piazza/internal/repository"
)

// ExpirySweeper periodically marks due posts as Expired so stored status
// tracks expiresAt without waiting for a read or interaction.
type ExpirySweeper struct {
	posts    repository.PostRepository
	events   EventPublisher
	flags    *featureflags.Manager
	interval time.Duration
	now      func() time.Time
}

func NewExpirySweeper(posts repository.PostRepository, events EventPublisher, flags *featureflags.Manager, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		posts:    posts,
		events:   events,
		flags:    flags,
		interval: interval,
		now:      utcNow,
	}
}

// Run sweeps on every tick until ctx is cancelled. A zero interval disables it.
func (s *ExpirySweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		middleware.Logger.InfoContext(ctx, "expiry sweeper disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				middleware.Logger.ErrorContext(ctx, "expiry sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep expires every due post once and returns how many changed.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	if s.flags != nil && !s.flags.On(featureflags.ExpirySweeper) {
		return 0, nil
	}

	expired, err := s.posts.ExpireDue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}
	observability.PostsExpired.Add(float64(len(expired)))
	middleware.Logger.InfoContext(ctx, "expired posts", slog.Int("count", len(expired)))

	if s.events != nil {
		for i := range expired {
			p := &expired[i]
			if err := s.events.Publish(ctx, notifications.EventPostExpired, newPostEvent(p)); err != nil {
				middleware.Logger.WarnContext(ctx, "failed to publish expiry", slog.Uint64("post_id", uint64(p.ID)), slog.String("error", err.Error()))
			}
		}
	}
	return len(expired), nil
}
