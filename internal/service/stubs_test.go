package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"piazza/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userRepoStub struct {
	getByIDFn       func(context.Context, uint) (*models.User, error)
	getByEmailFn    func(context.Context, string) (*models.User, error)
	getByGoogleIDFn func(context.Context, string) (*models.User, error)
	createFn        func(context.Context, *models.User) error
	updateFn        func(context.Context, *models.User) error
	deleteFn        func(context.Context, uint) error
	listFn          func(context.Context, int, int) ([]models.User, error)
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *userRepoStub) GetByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	return s.getByGoogleIDFn(ctx, googleID)
}
func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}
func (s *userRepoStub) Update(ctx context.Context, user *models.User) error {
	return s.updateFn(ctx, user)
}
func (s *userRepoStub) Delete(ctx context.Context, id uint) error {
	return s.deleteFn(ctx, id)
}
func (s *userRepoStub) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.listFn(ctx, limit, offset)
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn: func(_ context.Context, id uint) (*models.User, error) {
			return nil, models.NewNotFoundError("User", id)
		},
		getByEmailFn:    func(context.Context, string) (*models.User, error) { return nil, nil },
		getByGoogleIDFn: func(context.Context, string) (*models.User, error) { return nil, nil },
		createFn: func(_ context.Context, u *models.User) error {
			u.ID = 1
			return nil
		},
		updateFn: func(context.Context, *models.User) error { return nil },
		deleteFn: func(context.Context, uint) error { return nil },
		listFn:   func(context.Context, int, int) ([]models.User, error) { return nil, nil },
	}
}

type postRepoStub struct {
	createFn             func(context.Context, *models.Post) error
	getByIDFn            func(context.Context, uint) (*models.Post, error)
	listLiveByTopicFn    func(context.Context, string, time.Time) ([]models.Post, error)
	mostActiveByTopicFn  func(context.Context, string, time.Time) (*models.Post, error)
	listExpiredByTopicFn func(context.Context, string, time.Time) ([]models.Post, error)
	updateStatusFn       func(context.Context, uint, models.PostStatus) error
	incrementLikesFn     func(context.Context, uint) error
	incrementDislikesFn  func(context.Context, uint) error
	addCommentFn         func(context.Context, *models.Comment) error
	deleteCommentFn      func(context.Context, uint, uint) (bool, error)
	expireDueFn          func(context.Context, time.Time) ([]models.Post, error)
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	return s.createFn(ctx, post)
}
func (s *postRepoStub) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	return s.getByIDFn(ctx, id)
}
func (s *postRepoStub) ListLiveByTopic(ctx context.Context, topic string, now time.Time) ([]models.Post, error) {
	return s.listLiveByTopicFn(ctx, topic, now)
}
func (s *postRepoStub) MostActiveByTopic(ctx context.Context, topic string, now time.Time) (*models.Post, error) {
	return s.mostActiveByTopicFn(ctx, topic, now)
}
func (s *postRepoStub) ListExpiredByTopic(ctx context.Context, topic string, now time.Time) ([]models.Post, error) {
	return s.listExpiredByTopicFn(ctx, topic, now)
}
func (s *postRepoStub) UpdateStatus(ctx context.Context, id uint, status models.PostStatus) error {
	return s.updateStatusFn(ctx, id, status)
}
func (s *postRepoStub) IncrementLikes(ctx context.Context, id uint) error {
	return s.incrementLikesFn(ctx, id)
}
func (s *postRepoStub) IncrementDislikes(ctx context.Context, id uint) error {
	return s.incrementDislikesFn(ctx, id)
}
func (s *postRepoStub) AddComment(ctx context.Context, comment *models.Comment) error {
	return s.addCommentFn(ctx, comment)
}
func (s *postRepoStub) DeleteComment(ctx context.Context, postID, commentID uint) (bool, error) {
	return s.deleteCommentFn(ctx, postID, commentID)
}
func (s *postRepoStub) ExpireDue(ctx context.Context, now time.Time) ([]models.Post, error) {
	return s.expireDueFn(ctx, now)
}

func noopPostRepo() *postRepoStub {
	return &postRepoStub{
		createFn: func(_ context.Context, p *models.Post) error {
			p.ID = 1
			return nil
		},
		getByIDFn: func(_ context.Context, id uint) (*models.Post, error) {
			return nil, models.NewNotFoundError("Post", id)
		},
		listLiveByTopicFn: func(context.Context, string, time.Time) ([]models.Post, error) { return nil, nil },
		mostActiveByTopicFn: func(_ context.Context, topic string, _ time.Time) (*models.Post, error) {
			return nil, models.NewNotFoundError("Post", topic)
		},
		listExpiredByTopicFn: func(context.Context, string, time.Time) ([]models.Post, error) { return nil, nil },
		updateStatusFn:       func(context.Context, uint, models.PostStatus) error { return nil },
		incrementLikesFn:     func(context.Context, uint) error { return nil },
		incrementDislikesFn:  func(context.Context, uint) error { return nil },
		addCommentFn:         func(context.Context, *models.Comment) error { return nil },
		deleteCommentFn:      func(context.Context, uint, uint) (bool, error) { return false, nil },
		expireDueFn:          func(context.Context, time.Time) ([]models.Post, error) { return nil, nil },
	}
}

// eventRecorder captures published feed events.
type eventRecorder struct {
	mu       sync.Mutex
	events   []string
	payloads []any
	err      error
}

func (r *eventRecorder) Publish(_ context.Context, eventType string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
	r.payloads = append(r.payloads, payload)
	return r.err
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func assertAppError(t *testing.T, err error, code, message string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
	if message != "" {
		assert.Equal(t, message, appErr.Message)
	}
}

// assertValidationError asserts that err is an AppError with code VALIDATION_ERROR.
func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertAppError(t, err, models.CodeValidation, "")
}
