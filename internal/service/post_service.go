package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"piazza/internal/middleware"
	"piazza/internal/models"
	"piazza/internal/notifications"
	"piazza/internal/observability"
	"piazza/internal/repository"
	"piazza/internal/validation"
)

// EventPublisher fans post events out to feed subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// PostEvent is the payload of every post feed event.
type PostEvent struct {
	ID        uint              `json:"id"`
	Topic     string            `json:"topic"`
	Title     string            `json:"title,omitempty"`
	Status    models.PostStatus `json:"status"`
	Likes     int64             `json:"likes"`
	Dislikes  int64             `json:"dislikes"`
	Comments  int               `json:"comments"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

func newPostEvent(p *models.Post) PostEvent {
	return PostEvent{
		ID:        p.ID,
		Topic:     p.Topic,
		Title:     p.Title,
		Status:    p.Status,
		Likes:     p.Likes,
		Dislikes:  p.Dislikes,
		Comments:  len(p.Comments),
		ExpiresAt: p.ExpiresAt,
	}
}

// Interaction names used for metrics.
const (
	actionLike    = "like"
	actionDislike = "dislike"
	actionComment = "comment"
)

const (
	msgPostNotFound = "Post not found."
	msgPostExpired  = "This post has expired and cannot be interacted with."
)

type PostService struct {
	postRepo repository.PostRepository
	userRepo repository.UserRepository
	events   EventPublisher
	now      func() time.Time
}

type CreatePostInput struct {
	Title     string `json:"title" validate:"required"`
	Content   string `json:"content" validate:"required"`
	UserID    uint   `json:"user" validate:"required"`
	Topic     string `json:"topic" validate:"required"`
	ExpiresAt string `json:"expiresAt" validate:"required"`
}

type AddCommentInput struct {
	PostID  uint   `json:"-"`
	UserID  uint   `json:"user" validate:"required"`
	Message string `json:"message" validate:"required"`
}

// NewPostService wires the post rules. events may be nil.
func NewPostService(postRepo repository.PostRepository, userRepo repository.UserRepository, events EventPublisher) *PostService {
	return &PostService{
		postRepo: postRepo,
		userRepo: userRepo,
		events:   events,
		now:      utcNow,
	}
}

// utcNow keeps timestamps comparable with the UTC values stored by the repositories.
func utcNow() time.Time { return time.Now().UTC() }

// expiresAtLayouts are tried in order when parsing an expiration date.
var expiresAtLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// ParseExpiresAt accepts RFC 3339 timestamps. Values without a zone are UTC.
func ParseExpiresAt(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range expiresAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Topic = models.NormalizeTopic(in.Topic)
	if err := validation.Struct(in); err != nil {
		return nil, models.NewValidationError("Title, content, user, topic, and expiration date are required.")
	}
	expiresAt, ok := ParseExpiresAt(in.ExpiresAt)
	if !ok {
		return nil, models.NewValidationError("Invalid expiration date.")
	}

	author, err := s.userRepo.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, userNotFound(err)
	}

	post := &models.Post{
		Title:     in.Title,
		Content:   in.Content,
		UserID:    in.UserID,
		Topic:     in.Topic,
		ExpiresAt: expiresAt,
		Comments:  []models.Comment{},
	}
	post.RefreshStatus(s.now())
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}
	post.User = author

	s.publish(ctx, notifications.EventPostCreated, post)
	return post, nil
}

// LivePostsByTopic lists live posts in a topic, newest first.
func (s *PostService) LivePostsByTopic(ctx context.Context, topic string) ([]models.Post, error) {
	topic = models.NormalizeTopic(topic)
	posts, err := s.postRepo.ListLiveByTopic(ctx, topic, s.now())
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, models.NewNotFound("No live posts found for topic: " + topic)
	}
	return posts, nil
}

// MostActivePost returns the live post with the most likes in a topic.
func (s *PostService) MostActivePost(ctx context.Context, topic string) (*models.Post, error) {
	topic = models.NormalizeTopic(topic)
	post, err := s.postRepo.MostActiveByTopic(ctx, topic, s.now())
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewNotFound("No most active post found for topic: " + topic)
		}
		return nil, err
	}
	return post, nil
}

func (s *PostService) ExpiredPostsByTopic(ctx context.Context, topic string) ([]models.Post, error) {
	topic = models.NormalizeTopic(topic)
	posts, err := s.postRepo.ListExpiredByTopic(ctx, topic, s.now())
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, models.NewNotFound("No expired posts found for topic: " + topic)
	}
	for i := range posts {
		posts[i].Status = models.PostStatusExpired
	}
	return posts, nil
}

// CheckStatus re-evaluates a post's status and persists it when it changed.
func (s *PostService) CheckStatus(ctx context.Context, postID uint) (*models.Post, error) {
	post, err := s.load(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := s.refresh(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) Like(ctx context.Context, postID uint) (*models.Post, error) {
	return s.react(ctx, postID, actionLike)
}

func (s *PostService) Dislike(ctx context.Context, postID uint) (*models.Post, error) {
	return s.react(ctx, postID, actionDislike)
}

func (s *PostService) react(ctx context.Context, postID uint, action string) (post *models.Post, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "PostService", action)
	defer func() { observability.EndSpan(span, err) }()

	if _, err := s.guard(ctx, postID, action); err != nil {
		return nil, err
	}

	event := notifications.EventPostLiked
	if action == actionDislike {
		event = notifications.EventPostDisliked
		err = s.postRepo.IncrementDislikes(ctx, postID)
	} else {
		err = s.postRepo.IncrementLikes(ctx, postID)
	}
	if err != nil {
		return nil, postNotFound(err)
	}
	observability.PostInteractions.WithLabelValues(action).Inc()

	post, err = s.load(ctx, postID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, event, post)
	return post, nil
}

func (s *PostService) AddComment(ctx context.Context, in AddCommentInput) (post *models.Post, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "PostService", actionComment)
	defer func() { observability.EndSpan(span, err) }()

	if _, err := s.guard(ctx, in.PostID, actionComment); err != nil {
		return nil, err
	}

	in.Message = strings.TrimSpace(in.Message)
	if err := validation.Struct(in); err != nil {
		return nil, models.NewValidationError("User and message are required.")
	}
	if _, err := s.userRepo.GetByID(ctx, in.UserID); err != nil {
		return nil, userNotFound(err)
	}

	comment := &models.Comment{PostID: in.PostID, UserID: in.UserID, Message: in.Message}
	if err := s.postRepo.AddComment(ctx, comment); err != nil {
		return nil, postNotFound(err)
	}
	observability.PostInteractions.WithLabelValues(actionComment).Inc()

	post, err = s.load(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, notifications.EventCommentAdded, post)
	return post, nil
}

// DeleteComment removes a comment from a post. A comment that does not exist
// on the post leaves it unchanged and is not an error. commentID 0 never
// matches a comment.
func (s *PostService) DeleteComment(ctx context.Context, postID, commentID uint) (*models.Post, error) {
	post, err := s.load(ctx, postID)
	if err != nil {
		return nil, err
	}
	if commentID == 0 {
		return post, nil
	}
	deleted, err := s.postRepo.DeleteComment(ctx, postID, commentID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		middleware.Logger.DebugContext(ctx, "comment not on post",
			slog.Uint64("post_id", uint64(postID)), slog.Uint64("comment_id", uint64(commentID)))
	}
	return s.load(ctx, postID)
}

// guard loads a post for an interaction, bringing its status up to date,
// and refuses expired posts.
func (s *PostService) guard(ctx context.Context, postID uint, action string) (*models.Post, error) {
	post, err := s.load(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := s.refresh(ctx, post); err != nil {
		return nil, err
	}
	if !post.IsLive() {
		observability.PostInteractionsRejected.WithLabelValues(action).Inc()
		return nil, models.NewForbiddenError(msgPostExpired)
	}
	return post, nil
}

func (s *PostService) refresh(ctx context.Context, post *models.Post) error {
	if !post.RefreshStatus(s.now()) {
		return nil
	}
	if err := s.postRepo.UpdateStatus(ctx, post.ID, post.Status); err != nil {
		return postNotFound(err)
	}
	if !post.IsLive() {
		s.publish(ctx, notifications.EventPostExpired, post)
	}
	return nil
}

func (s *PostService) load(ctx context.Context, postID uint) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, postNotFound(err)
	}
	return post, nil
}

// publish is best-effort; a lost feed event never fails the request.
func (s *PostService) publish(ctx context.Context, eventType string, post *models.Post) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, eventType, newPostEvent(post)); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish post event",
			slog.String("event", eventType), slog.Uint64("post_id", uint64(post.ID)), slog.String("error", err.Error()))
	}
}

func postNotFound(err error) error {
	if models.IsNotFound(err) {
		return models.NewNotFound(msgPostNotFound)
	}
	return err
}
