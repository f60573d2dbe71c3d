// Package repository implements the relational data access layer.
package repository

import (
	"context"
	"errors"

	"piazza/internal/cache"
	"piazza/internal/models"

	"gorm.io/gorm"
)

// UserRepository is the account store behind the users and auth routes.
// Lookups by email or Google ID return (nil, nil) when nobody matches.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, limit, offset int) ([]models.User, error)
}

type gormUsers struct {
	db *gorm.DB
}

// NewUserRepository wraps db as a UserRepository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &gormUsers{db: db}
}

func userWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case isUniqueConstraintError(err):
		return models.NewConflictError("User already exists")
	default:
		return models.NewInternalError(err)
	}
}

// findBy loads the single user matching column = value, or nil.
func (r *gormUsers) findBy(ctx context.Context, column string, value any) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where(column+" = ?", value).Take(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, models.NewInternalError(err)
	}
	return &u, nil
}

// GetByID is served cache-aside. The cached copy never carries the password
// hash, so credential checks go through GetByEmail.
func (r *gormUsers) GetByID(ctx context.Context, id uint) (user *models.User, err error) {
	ctx, end := startSpan(ctx, "GetByID", "users")
	defer end(&err)

	var u models.User
	err = cache.Aside(ctx, cache.UserKey(id), &u, cache.UserTTL, func() error {
		found, err := r.findBy(ctx, "id", id)
		if err != nil {
			return err
		}
		if found == nil {
			return models.NewNotFoundError("User", id)
		}
		u = *found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormUsers) GetByEmail(ctx context.Context, email string) (user *models.User, err error) {
	ctx, end := startSpan(ctx, "GetByEmail", "users")
	defer end(&err)
	return r.findBy(ctx, "email", email)
}

func (r *gormUsers) GetByGoogleID(ctx context.Context, googleID string) (user *models.User, err error) {
	ctx, end := startSpan(ctx, "GetByGoogleID", "users")
	defer end(&err)
	return r.findBy(ctx, "google_id", googleID)
}

func (r *gormUsers) Create(ctx context.Context, user *models.User) (err error) {
	ctx, end := startSpan(ctx, "Create", "users")
	defer end(&err)
	return userWriteError(r.db.WithContext(ctx).Create(user).Error)
}

// Update writes the non-zero fields of user. A full Save would blank the
// password of a user that was loaded from cache.
func (r *gormUsers) Update(ctx context.Context, user *models.User) (err error) {
	ctx, end := startSpan(ctx, "Update", "users")
	defer end(&err)

	if err = userWriteError(r.db.WithContext(ctx).Model(&models.User{ID: user.ID}).Updates(user).Error); err != nil {
		return err
	}
	cache.InvalidateUser(ctx, user.ID)
	return nil
}

func (r *gormUsers) Delete(ctx context.Context, id uint) (err error) {
	ctx, end := startSpan(ctx, "Delete", "users")
	defer end(&err)

	res := r.db.WithContext(ctx).Delete(&models.User{}, id)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	cache.InvalidateUser(ctx, id)
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	return nil
}

func (r *gormUsers) List(ctx context.Context, limit, offset int) (users []models.User, err error) {
	ctx, end := startSpan(ctx, "List", "users")
	defer end(&err)

	if err = r.db.WithContext(ctx).Order("id ASC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}
