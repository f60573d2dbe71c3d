package server

import (
	"encoding/json"
	"log/slog"

	"piazza/internal/middleware"
	"piazza/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebsocketUpgrade rejects plain HTTP requests to the feed endpoint.
func (s *Server) WebsocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return models.RespondWithError(c, fiber.StatusUpgradeRequired,
		models.NewValidationError("WebSocket upgrade required"))
}

// WebsocketHandler handles GET /ws. It streams post events to the client.
// Anonymous clients are registered under user 0.
// @Summary Realtime post feed
// @Description WebSocket stream of post_created, post_liked, post_disliked, comment_added and post_expired events
// @Tags realtime
// @Success 101
// @Failure 426 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /ws [get]
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		uid, _ := conn.Locals("userID").(uint)

		client, err := s.hub.Register(uid, conn)
		if err != nil {
			middleware.Logger.Warn("feed socket rejected",
				slog.Uint64("user_id", uint64(uid)), slog.String("error", err.Error()))
			msg, _ := json.Marshal(fiber.Map{"error": err.Error()})
			_ = conn.WriteMessage(websocket.TextMessage, msg)
			_ = conn.Close()
			return
		}
		client.Serve()
	})
}
