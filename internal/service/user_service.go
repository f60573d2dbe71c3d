// Package service holds the business rules behind the HTTP handlers.
package service

import (
	"context"
	"errors"
	"strings"

	"piazza/internal/models"
	"piazza/internal/repository"
	"piazza/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	userRepo repository.UserRepository
}

// CreateUserInput is the payload for creating an account with a password.
type CreateUserInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UpdateUserInput carries the fields to change. Empty fields are left as is.
type UpdateUserInput struct {
	UserID   uint
	Name     string
	Email    string
	Password string
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// CreateUser validates the input, hashes the password and stores the user.
func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = validation.NormalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, models.NewValidationError("Name, email, and password are required!")
	}
	if err := validation.ValidateName(in.Name); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	existing, err := s.userRepo.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("User already exists")
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{Name: in.Name, Email: in.Email, Password: hash}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.userRepo.List(ctx, limit, offset)
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, userNotFound(err)
	}
	return user, nil
}

func (s *UserService) UpdateUser(ctx context.Context, in UpdateUserInput) (*models.User, error) {
	if _, err := s.userRepo.GetByID(ctx, in.UserID); err != nil {
		return nil, userNotFound(err)
	}

	patch := &models.User{ID: in.UserID}
	if name := strings.TrimSpace(in.Name); name != "" {
		if err := validation.ValidateName(name); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		patch.Name = name
	}
	if in.Email != "" {
		email := validation.NormalizeEmail(in.Email)
		if err := validation.ValidateEmail(email); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		patch.Email = email
	}
	if in.Password != "" {
		hash, err := hashPassword(in.Password)
		if err != nil {
			return nil, err
		}
		patch.Password = hash
	}

	if err := s.userRepo.Update(ctx, patch); err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, in.UserID)
}

func (s *UserService) DeleteUser(ctx context.Context, id uint) error {
	if err := s.userRepo.Delete(ctx, id); err != nil {
		return userNotFound(err)
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", models.NewValidationError("password must not exceed 72 bytes")
	}
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return string(hash), nil
}

// userNotFound rewrites a repository not-found into the public message.
func userNotFound(err error) error {
	if models.IsNotFound(err) {
		return models.NewNotFound("User not found")
	}
	return err
}
