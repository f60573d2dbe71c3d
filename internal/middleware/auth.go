package middleware

import (
	"context"
	"strings"
	"time"

	"piazza/internal/models"

	"github.com/gofiber/fiber/v2"
)

// TokenClaims is the verified subset of a bearer token.
type TokenClaims struct {
	UserID    uint
	Email     string
	ID        string
	ExpiresAt time.Time
}

// TokenVerifier validates a raw bearer token, including revocation.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, raw string) (*TokenClaims, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *fiber.Ctx) string {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AuthRequired enforces a valid bearer token. A request that an earlier
// handler already authenticated (the OAuth session) passes through.
func AuthRequired(v TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := c.Locals("userID").(uint); ok {
			return c.Next()
		}

		raw := BearerToken(c)
		if raw == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Access denied, token missing"))
		}

		claims, err := v.VerifyToken(c.UserContext(), raw)
		if err != nil {
			Logger.DebugContext(c.UserContext(), "token rejected", "error", err.Error())
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Invalid token"))
		}

		c.Locals("tokenClaims", claims)
		WithUserID(c, claims.UserID)
		return c.Next()
	}
}

// ClaimsFromContext returns the claims stored by AuthRequired, if any.
func ClaimsFromContext(c *fiber.Ctx) (*TokenClaims, bool) {
	claims, ok := c.Locals("tokenClaims").(*TokenClaims)
	return claims, ok
}
