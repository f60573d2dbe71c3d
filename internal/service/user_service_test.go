package service

import (
	"context"
	"errors"
	"testing"

	"piazza/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestUserService_CreateUser_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   CreateUserInput
		message string
	}{
		{"missing name", CreateUserInput{Email: "a@b.io", Password: "pw"}, "Name, email, and password are required!"},
		{"missing email", CreateUserInput{Name: "Ann", Password: "pw"}, "Name, email, and password are required!"},
		{"missing password", CreateUserInput{Name: "Ann", Email: "a@b.io"}, "Name, email, and password are required!"},
		{"blank email", CreateUserInput{Name: "Ann", Email: "   ", Password: "pw"}, "Name, email, and password are required!"},
		{"bad email", CreateUserInput{Name: "Ann", Email: "not-an-email", Password: "pw"}, "invalid email format"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := NewUserService(noopUserRepo())
			_, err := svc.CreateUser(context.Background(), tt.input)
			assertAppError(t, err, models.CodeValidation, tt.message)
		})
	}
}

func TestUserService_CreateUser(t *testing.T) {
	t.Parallel()

	t.Run("hashes password and lowercases email", func(t *testing.T) {
		t.Parallel()
		repo := noopUserRepo()
		var saved *models.User
		repo.createFn = func(_ context.Context, u *models.User) error {
			u.ID = 42
			saved = u
			return nil
		}

		user, err := NewUserService(repo).CreateUser(context.Background(), CreateUserInput{
			Name: " Ann ", Email: "Ann@Example.COM", Password: "secret-pw",
		})
		require.NoError(t, err)
		require.NotNil(t, saved)
		assert.Equal(t, uint(42), user.ID)
		assert.Equal(t, "Ann", saved.Name)
		assert.Equal(t, "ann@example.com", saved.Email)
		assert.NotEqual(t, "secret-pw", saved.Password)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(saved.Password), []byte("secret-pw")))
	})

	t.Run("existing email conflicts", func(t *testing.T) {
		t.Parallel()
		repo := noopUserRepo()
		repo.getByEmailFn = func(_ context.Context, email string) (*models.User, error) {
			return &models.User{ID: 1, Email: email}, nil
		}
		repo.createFn = func(context.Context, *models.User) error {
			t.Fatal("create must not be called")
			return nil
		}
		_, err := NewUserService(repo).CreateUser(context.Background(), CreateUserInput{
			Name: "Ann", Email: "ann@example.com", Password: "pw",
		})
		assertAppError(t, err, models.CodeConflict, "User already exists")
	})
}

func TestUserService_GetUserByID_NotFound(t *testing.T) {
	t.Parallel()
	_, err := NewUserService(noopUserRepo()).GetUserByID(context.Background(), 9)
	assertAppError(t, err, models.CodeNotFound, "User not found")
}

func TestUserService_UpdateUser(t *testing.T) {
	t.Parallel()

	t.Run("partial update rehashes password", func(t *testing.T) {
		t.Parallel()
		repo := noopUserRepo()
		stored := &models.User{ID: 3, Name: "Old", Email: "old@example.com"}
		repo.getByIDFn = func(context.Context, uint) (*models.User, error) {
			return stored, nil
		}
		var patch *models.User
		repo.updateFn = func(_ context.Context, u *models.User) error {
			patch = u
			return nil
		}

		_, err := NewUserService(repo).UpdateUser(context.Background(), UpdateUserInput{
			UserID: 3, Password: "new-password",
		})
		require.NoError(t, err)
		require.NotNil(t, patch)
		assert.Equal(t, uint(3), patch.ID)
		assert.Empty(t, patch.Name, "name should be left unchanged")
		assert.Empty(t, patch.Email, "email should be left unchanged")
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(patch.Password), []byte("new-password")))
	})

	t.Run("missing user", func(t *testing.T) {
		t.Parallel()
		_, err := NewUserService(noopUserRepo()).UpdateUser(context.Background(), UpdateUserInput{UserID: 5, Name: "x"})
		assertAppError(t, err, models.CodeNotFound, "User not found")
	})

	t.Run("invalid email", func(t *testing.T) {
		t.Parallel()
		repo := noopUserRepo()
		repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id}, nil
		}
		_, err := NewUserService(repo).UpdateUser(context.Background(), UpdateUserInput{UserID: 1, Email: "nope"})
		assertValidationError(t, err)
	})

	t.Run("update error propagates", func(t *testing.T) {
		t.Parallel()
		repoErr := errors.New("update failed")
		repo := noopUserRepo()
		repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id}, nil
		}
		repo.updateFn = func(context.Context, *models.User) error { return repoErr }
		_, err := NewUserService(repo).UpdateUser(context.Background(), UpdateUserInput{UserID: 1, Name: "New"})
		assert.ErrorIs(t, err, repoErr)
	})
}

func TestUserService_DeleteUser(t *testing.T) {
	t.Parallel()
	repo := noopUserRepo()
	repo.deleteFn = func(_ context.Context, id uint) error {
		return models.NewNotFoundError("User", id)
	}
	err := NewUserService(repo).DeleteUser(context.Background(), 7)
	assertAppError(t, err, models.CodeNotFound, "User not found")
}
