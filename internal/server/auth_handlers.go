package server

import (
	"fmt"
	"log/slog"

	"piazza/internal/featureflags"
	"piazza/internal/middleware"
	"piazza/internal/models"
	"piazza/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Session keys.
const (
	sessionUserKey  = "userID"
	sessionStateKey = "oauthState"
)

// Register handles POST /auth/register
// @Summary Register
// @Description Create a password account. The password must meet the strength policy.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body service.CreateUserInput true "Registration"
// @Success 201 {object} object{message=string,user=models.UserSummary}
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Router /auth/register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var req service.CreateUserInput
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	user, err := s.authSvc().Register(c.UserContext(), req)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": fmt.Sprintf("User %s registered successfully!", user.Name),
		"user":    user.Summary(),
	})
}

// Login handles POST /auth/login
// @Summary Login
// @Description Authenticate with email and password and receive a JWT
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Credentials"
// @Success 200 {object} object{message=string,token=string}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	token, _, err := s.authSvc().Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Login successful",
		"token":   token,
	})
}

// Profile handles GET /auth/profile
// @Summary Current user
// @Description Requires a bearer token or a Google sign-in session
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /auth/profile [get]
func (s *Server) Profile(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(uint)

	user, err := s.authSvc().Profile(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(user)
}

// GoogleLogin handles GET /auth/google
// @Summary Google sign-in
// @Description Redirects to Google's consent page
// @Tags auth
// @Success 302
// @Failure 503 {object} models.ErrorResponse
// @Router /auth/google [get]
func (s *Server) GoogleLogin(c *fiber.Ctx) error {
	if !s.featureFlags.On(featureflags.GoogleOAuth) || !s.googleOAuth.Configured() {
		return models.RespondWithAppError(c,
			models.NewUnavailableError("Google sign-in is not available"))
	}

	sess, err := s.sessions.Get(c)
	if err != nil {
		return models.RespondWithAppError(c, models.NewInternalError(err))
	}

	state := service.NewState()
	sess.Set(sessionStateKey, state)
	if err := sess.Save(); err != nil {
		return models.RespondWithAppError(c, models.NewInternalError(err))
	}

	return c.Redirect(s.googleOAuth.AuthURL(state), fiber.StatusFound)
}

// GoogleCallback handles GET /auth/google/callback
// @Summary Google sign-in callback
// @Description Completes sign-in and redirects to /
// @Tags auth
// @Param state query string true "OAuth state"
// @Param code query string true "Authorization code"
// @Success 302
// @Router /auth/google/callback [get]
func (s *Server) GoogleCallback(c *fiber.Ctx) error {
	ctx := c.UserContext()

	sess, err := s.sessions.Get(c)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "google callback without session", slog.String("error", err.Error()))
		return c.Redirect("/", fiber.StatusFound)
	}

	expected, _ := sess.Get(sessionStateKey).(string)
	sess.Delete(sessionStateKey)
	if expected == "" || c.Query("state") != expected {
		middleware.Logger.WarnContext(ctx, "google callback state mismatch")
		_ = sess.Save()
		return c.Redirect("/", fiber.StatusFound)
	}

	user, err := s.googleOAuth.Exchange(ctx, c.Query("code"))
	if err != nil {
		middleware.Logger.WarnContext(ctx, "google sign-in failed", slog.String("error", err.Error()))
		_ = sess.Save()
		return c.Redirect("/", fiber.StatusFound)
	}

	// New session id once the browser is authenticated.
	if err := sess.Regenerate(); err != nil {
		return models.RespondWithAppError(c, models.NewInternalError(err))
	}
	sess.Set(sessionUserKey, user.ID)
	if err := sess.Save(); err != nil {
		return models.RespondWithAppError(c, models.NewInternalError(err))
	}

	middleware.Logger.InfoContext(ctx, "google sign-in", slog.Uint64("user_id", uint64(user.ID)))
	return c.Redirect("/", fiber.StatusFound)
}

// Logout handles GET /auth/logout
// @Summary Logout
// @Description Ends the session and revokes the bearer token, if any
// @Tags auth
// @Success 302
// @Router /auth/logout [get]
func (s *Server) Logout(c *fiber.Ctx) error {
	ctx := c.UserContext()

	if raw := middleware.BearerToken(c); raw != "" {
		if err := s.authSvc().Logout(ctx, raw); err != nil {
			middleware.Logger.WarnContext(ctx, "token revocation failed", slog.String("error", err.Error()))
		}
	}

	if sess, err := s.sessions.Get(c); err == nil {
		if derr := sess.Destroy(); derr != nil {
			middleware.Logger.WarnContext(ctx, "session destroy failed", slog.String("error", derr.Error()))
		}
	}

	return c.Redirect("/", fiber.StatusFound)
}

// sessionUser marks the request authenticated when the session carries a
// signed-in user.
func (s *Server) sessionUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if s.sessions == nil {
			return c.Next()
		}
		sess, err := s.sessions.Get(c)
		if err != nil {
			return c.Next()
		}
		if uid, ok := sess.Get(sessionUserKey).(uint); ok && uid > 0 {
			middleware.WithUserID(c, uid)
		}
		return c.Next()
	}
}

func (s *Server) authSvc() *service.AuthService {
	if s.authService == nil {
		s.authService = service.NewAuthService(s.userRepo, s.config.JWTSecret, s.config.JWTTTL)
	}
	return s.authService
}
