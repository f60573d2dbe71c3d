package repository

import (
	"context"
	"errors"
	"time"

	"piazza/internal/models"

	"gorm.io/gorm"
)

// PostRepository defines the interface for post data operations.
//
// Listing queries filter on expires_at as well as status, so a post whose
// expiry has passed is never reported as live even before the sweeper or a
// status check rewrites its row.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	ListLiveByTopic(ctx context.Context, topic string, now time.Time) ([]models.Post, error)
	MostActiveByTopic(ctx context.Context, topic string, now time.Time) (*models.Post, error)
	ListExpiredByTopic(ctx context.Context, topic string, now time.Time) ([]models.Post, error)
	UpdateStatus(ctx context.Context, id uint, status models.PostStatus) error
	IncrementLikes(ctx context.Context, id uint) error
	IncrementDislikes(ctx context.Context, id uint) error
	AddComment(ctx context.Context, comment *models.Comment) error
	DeleteComment(ctx context.Context, postID, commentID uint) (bool, error)
	ExpireDue(ctx context.Context, now time.Time) ([]models.Post, error)
}

// postRepository implements PostRepository
type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

// withDetails loads the author and the ordered comments with their authors.
func withDetails(db *gorm.DB) *gorm.DB {
	return db.Preload("User").
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("comments.created_at ASC, comments.id ASC")
		}).
		Preload("Comments.User")
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) (err error) {
	ctx, end := startSpan(ctx, "Create", "posts")
	defer end(&err)

	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (post *models.Post, err error) {
	ctx, end := startSpan(ctx, "GetByID", "posts")
	defer end(&err)

	var p models.Post
	if err := withDetails(r.db.WithContext(ctx)).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &p, nil
}

func (r *postRepository) ListLiveByTopic(ctx context.Context, topic string, now time.Time) (posts []models.Post, err error) {
	ctx, end := startSpan(ctx, "ListLiveByTopic", "posts")
	defer end(&err)

	err = withDetails(r.db.WithContext(ctx)).
		Where("topic = ? AND status = ? AND expires_at >= ?", topic, models.PostStatusLive, now).
		Order("created_at DESC, id DESC").
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

// MostActiveByTopic returns the live post with the most likes. Ties go to
// the oldest post.
func (r *postRepository) MostActiveByTopic(ctx context.Context, topic string, now time.Time) (post *models.Post, err error) {
	ctx, end := startSpan(ctx, "MostActiveByTopic", "posts")
	defer end(&err)

	var p models.Post
	err = withDetails(r.db.WithContext(ctx)).
		Where("topic = ? AND status = ? AND expires_at >= ?", topic, models.PostStatusLive, now).
		Order("likes DESC, created_at ASC, id ASC").
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", topic)
		}
		return nil, models.NewInternalError(err)
	}
	return &p, nil
}

func (r *postRepository) ListExpiredByTopic(ctx context.Context, topic string, now time.Time) (posts []models.Post, err error) {
	ctx, end := startSpan(ctx, "ListExpiredByTopic", "posts")
	defer end(&err)

	err = withDetails(r.db.WithContext(ctx)).
		Where("topic = ? AND (status = ? OR expires_at < ?)", topic, models.PostStatusExpired, now).
		Order("expires_at DESC, id DESC").
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

// UpdateStatus writes only the status column, leaving counters untouched.
func (r *postRepository) UpdateStatus(ctx context.Context, id uint, status models.PostStatus) error {
	result := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).UpdateColumn("status", status)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Post", id)
	}
	return nil
}

func (r *postRepository) IncrementLikes(ctx context.Context, id uint) (err error) {
	ctx, end := startSpan(ctx, "IncrementLikes", "posts")
	defer end(&err)
	return r.increment(ctx, id, "likes")
}

func (r *postRepository) IncrementDislikes(ctx context.Context, id uint) (err error) {
	ctx, end := startSpan(ctx, "IncrementDislikes", "posts")
	defer end(&err)
	return r.increment(ctx, id, "dislikes")
}

// increment bumps a counter column in SQL so concurrent writers never lose updates.
func (r *postRepository) increment(ctx context.Context, id uint, column string) error {
	result := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1))
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Post", id)
	}
	return nil
}

func (r *postRepository) AddComment(ctx context.Context, comment *models.Comment) (err error) {
	ctx, end := startSpan(ctx, "AddComment", "comments")
	defer end(&err)

	if err := r.db.WithContext(ctx).Create(comment).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// DeleteComment removes the comment only when it belongs to postID and
// reports whether a row was deleted.
func (r *postRepository) DeleteComment(ctx context.Context, postID, commentID uint) (deleted bool, err error) {
	ctx, end := startSpan(ctx, "DeleteComment", "comments")
	defer end(&err)

	result := r.db.WithContext(ctx).
		Where("id = ? AND post_id = ?", commentID, postID).
		Delete(&models.Comment{})
	if result.Error != nil {
		return false, models.NewInternalError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ExpireDue flips every live post whose expiry has passed and returns them,
// with comments but without authors, in their Expired state.
func (r *postRepository) ExpireDue(ctx context.Context, now time.Time) (posts []models.Post, err error) {
	ctx, end := startSpan(ctx, "ExpireDue", "posts")
	defer end(&err)

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Comments").
			Where("status = ? AND expires_at < ?", models.PostStatusLive, now).
			Order("id ASC").
			Find(&posts).Error; err != nil {
			return err
		}
		if len(posts) == 0 {
			return nil
		}
		ids := make([]uint, len(posts))
		for i := range posts {
			ids[i] = posts[i].ID
			posts[i].Status = models.PostStatusExpired
		}
		return tx.Model(&models.Post{}).
			Where("id IN ? AND status = ?", ids, models.PostStatusLive).
			UpdateColumn("status", models.PostStatusExpired).Error
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}
