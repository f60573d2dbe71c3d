package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePagination(t *testing.T) {
	app := fiber.New()
	app.Get("/users", func(c *fiber.Ctx) error {
		p := parsePagination(c, 25)
		return c.JSON(fiber.Map{"limit": p.Limit, "offset": p.Offset})
	})

	tests := []struct {
		query  string
		limit  float64
		offset float64
	}{
		{"", 25, 0},
		{"?limit=10&offset=30", 10, 30},
		{"?limit=0&offset=-5", 25, 0},
		{"?limit=1000", maxPageSize, 0},
		{"?limit=abc", 25, 0},
	}
	for _, tt := range tests {
		t.Run("query"+tt.query, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/users"+tt.query, nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			body := decodeBody(t, resp)
			assert.Equal(t, tt.limit, body["limit"])
			assert.Equal(t, tt.offset, body["offset"])
		})
	}
}

func TestParamID(t *testing.T) {
	tests := []struct {
		param   string
		value   string
		wantID  float64
		wantErr string
	}{
		{"id", "42", 42, ""},
		{"id", "abc", 0, "Invalid ID"},
		{"id", "0", 0, "Invalid ID"},
		{"id", "-3", 0, "Invalid ID"},
		{"postId", "x1", 0, "Invalid post ID"},
		{"topicId", "abc", 0, "Invalid topicId"},
	}
	for _, tt := range tests {
		t.Run(tt.param+"="+tt.value, func(t *testing.T) {
			app := fiber.New()
			app.Get("/items/:"+tt.param, func(c *fiber.Ctx) error {
				id, err := paramID(c, tt.param)
				if err != nil {
					return nil
				}
				return c.JSON(fiber.Map{"id": id})
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/items/"+tt.value, nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			body := decodeBody(t, resp)
			if tt.wantErr == "" {
				assert.Equal(t, http.StatusOK, resp.StatusCode)
				assert.Equal(t, tt.wantID, body["id"])
				return
			}
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.wantErr, body["error"])
			assert.Equal(t, "VALIDATION_ERROR", body["code"])
		})
	}
}

func TestParseBody_Malformed(t *testing.T) {
	app := fiber.New()
	app.Post("/users/create", func(c *fiber.Ctx) error {
		var dst struct {
			Name string `json:"name"`
		}
		if err := parseBody(c, &dst); err != nil {
			return nil
		}
		return c.SendString(dst.Name)
	})

	req := httptest.NewRequest(http.MethodPost, "/users/create", strings.NewReader(`{"name":`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid request body", decodeBody(t, resp)["error"])
}
