package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_HTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  *AppError
		want int
	}{
		{NewNotFound("Post not found."), http.StatusNotFound},
		{NewValidationError("bad"), http.StatusBadRequest},
		{NewUnauthorizedError("no"), http.StatusUnauthorized},
		{NewForbiddenError("no"), http.StatusForbidden},
		{NewConflictError("dup"), http.StatusConflict},
		{NewUnavailableError("off"), http.StatusServiceUnavailable},
		{NewInternalError(errors.New("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.HTTPStatus(), tt.err.Code)
	}
}

func TestIsNotFound_Wrapped(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("load post: %w", NewNotFoundError("Post", 7))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsConflict(err))
	assert.False(t, IsNotFound(errors.New("plain")))
}

func TestRespondWithAppError_HidesInternalDetails(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return RespondWithAppError(c, errors.New("dial tcp: refused"))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "Internal server error", body.Error)
	assert.Equal(t, CodeInternal, body.Code)
	assert.Empty(t, body.Details)
}
