package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"piazza/internal/models"
	"piazza/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateUser handles POST /users/create
// @Summary Create user
// @Description Create an account with a password
// @Tags users
// @Accept json
// @Produce json
// @Param request body service.CreateUserInput true "User"
// @Success 201 {object} object{message=string,user=models.UserSummary}
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /users/create [post]
func (s *Server) CreateUser(c *fiber.Ctx) error {
	var req service.CreateUserInput
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	user, err := s.userSvc().CreateUser(c.UserContext(), req)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": fmt.Sprintf("User %s created successfully!", user.Name),
		"user":    user.Summary(),
	})
}

// GetAllUsers handles GET /users
// @Summary List users
// @Tags users
// @Produce json
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {array} models.User
// @Router /users [get]
func (s *Server) GetAllUsers(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	page := parsePagination(c, 100)

	users, err := s.userSvc().ListUsers(ctx, page.Limit, page.Offset)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return c.Status(fiber.StatusGatewayTimeout).JSON(models.ErrorResponse{
				Error: "Request timeout",
			})
		}
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(users)
}

// GetUser handles GET /users/:id
// @Summary Get user
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{id} [get]
func (s *Server) GetUser(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return nil
	}

	user, err := s.userSvc().GetUserByID(c.UserContext(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(user)
}

// UpdateUser handles PUT /users/:id
// @Summary Update user
// @Tags users
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body object{name=string,email=string,password=string} true "Fields to change"
// @Success 200 {object} object{message=string,user=models.User}
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{id} [put]
func (s *Server) UpdateUser(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	user, err := s.userSvc().UpdateUser(c.UserContext(), service.UpdateUserInput{
		UserID:   id,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "User updated successfully!",
		"user":    user,
	})
}

// DeleteUser handles DELETE /users/:id
// @Summary Delete user
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} object{message=string}
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{id} [delete]
func (s *Server) DeleteUser(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.userSvc().DeleteUser(c.UserContext(), id); err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{"message": "User deleted successfully!"})
}

func (s *Server) userSvc() *service.UserService {
	if s.userService == nil {
		s.userService = service.NewUserService(s.userRepo)
	}
	return s.userService
}
