package server

import (
	"errors"

	"piazza/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten tells a handler a helper already sent the response.
// Handlers return nil on it so the ErrorHandler does not overwrite the body.
var errResponseWritten = errors.New("response already written")

const maxPageSize = 100

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

// parsePagination reads limit and offset, clamping limit to maxPageSize and
// falling back to defaultLimit for missing or non-positive values.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	p := Pagination{
		Limit:  c.QueryInt("limit", defaultLimit),
		Offset: c.QueryInt("offset", 0),
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	p.Limit = min(p.Limit, maxPageSize)
	p.Offset = max(p.Offset, 0)
	return p
}

// paramLabels names route params in validation messages.
var paramLabels = map[string]string{
	"id":     "ID",
	"postId": "post ID",
}

// paramID reads a positive integer route param. On failure it writes
// 400 "Invalid <label>" and returns errResponseWritten.
func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := c.ParamsInt(name)
	if err == nil && id > 0 {
		return uint(id), nil
	}
	label, ok := paramLabels[name]
	if !ok {
		label = name
	}
	_ = models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid "+label))
	return 0, errResponseWritten
}

// parseBody decodes the request body into dst, writing a 400 on failure.
func parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
		return errResponseWritten
	}
	return nil
}
