// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	_ "piazza/docs" // swagger docs
	"piazza/internal/bootstrap"
	"piazza/internal/config"
	"piazza/internal/featureflags"
	"piazza/internal/middleware"
	"piazza/internal/models"
	"piazza/internal/notifications"
	"piazza/internal/repository"
	"piazza/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/encryptcookie"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
)

const sessionCookieName = "piazza_session"

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	runtime        *bootstrap.Runtime
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	sessions       *session.Store
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	userRepo       repository.UserRepository
	postRepo       repository.PostRepository
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	featureFlags   *featureflags.Manager
	userService    *service.UserService
	authService    *service.AuthService
	postService    *service.PostService
	googleOAuth    *service.GoogleOAuth
	sweeper        *service.ExpirySweeper
}

// NewServer creates a server on top of an initialized runtime. Redis may be
// nil; events are then delivered to the local hub only.
func NewServer(cfg *config.Config, rt *bootstrap.Runtime) (*Server, error) {
	if rt == nil || rt.Users == nil || rt.Posts == nil {
		return nil, errors.New("server requires a runtime with repositories")
	}

	flags := featureflags.NewManager(cfg.FeatureFlags)
	notifier := notifications.NewNotifier(rt.Redis)

	s := &Server{
		config:         cfg,
		runtime:        rt,
		redis:          rt.Redis,
		promMiddleware: middleware.InitMetrics("piazza-api"),
		userRepo:       rt.Users,
		postRepo:       rt.Posts,
		notifier:       notifier,
		hub:            notifications.NewHub(),
		featureFlags:   flags,
		sessions: session.New(session.Config{
			Expiration:     24 * time.Hour,
			KeyLookup:      "cookie:" + sessionCookieName,
			CookieHTTPOnly: true,
			CookieSameSite: fiber.CookieSameSiteLaxMode,
			CookieSecure:   cfg.IsProduction(),
		}),
	}

	s.userService = service.NewUserService(s.userRepo)
	s.authService = service.NewAuthService(s.userRepo, cfg.JWTSecret, cfg.JWTTTL)
	s.postService = service.NewPostService(s.postRepo, s.userRepo, notifier)
	s.googleOAuth = service.NewGoogleOAuth(cfg, s.userRepo)
	s.sweeper = service.NewExpirySweeper(s.postRepo, notifier, flags, cfg.ExpirySweepInterval)

	return s, nil
}

// NewApp builds the Fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Piazza API",
		ErrorHandler: errorHandler,
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// errorHandler renders errors that escaped a handler in the standard envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}

	middleware.Logger.ErrorContext(c.UserContext(), "unhandled request error",
		slog.String("path", c.Path()), slog.String("error", err.Error()))
	return models.RespondWithAppError(c, err)
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so throttled responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
			})
		},
	}))

	// Session cookies are encrypted at rest in the browser.
	app.Use(encryptcookie.New(encryptcookie.Config{
		Key: sessionCookieKey(s.config.SessionSecret),
	}))
}

// sessionCookieKey derives a 32-byte AES key from SESSION_SECRET.
func sessionCookieKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/", s.Welcome)

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	app.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Piazza Metrics Dashboard",
	}))

	app.Get("/swagger/*", swagger.HandlerDefault)
	app.Get("/feature-flags", s.sessionUser(), s.GetFeatureFlags)

	// User routes
	users := app.Group("/users")
	users.Post("/create", s.CreateUser)
	users.Get("/", s.GetAllUsers)
	users.Get("/:id", s.GetUser)
	users.Put("/:id", s.UpdateUser)
	users.Delete("/:id", s.DeleteUser)

	// Auth routes
	auth := app.Group("/auth")
	auth.Post("/register", middleware.NewThrottle(s.redis, "register", 5, 10*time.Minute).Handler(), s.Register)
	auth.Post("/login", middleware.NewThrottle(s.redis, "login", 10, 5*time.Minute).Handler(), s.Login)
	auth.Get("/profile", s.sessionUser(), middleware.AuthRequired(s.authService), s.Profile)
	auth.Get("/google", s.GoogleLogin)
	auth.Get("/google/callback", s.GoogleCallback)
	auth.Get("/logout", s.Logout)

	// Post routes. Topic queries come before the generic /:id routes.
	posts := app.Group("/posts")
	posts.Post("/create", s.CreatePost)
	posts.Get("/topic/:topic/most-active", s.GetMostActivePost)
	posts.Get("/topic/:topic/expired", s.GetExpiredPosts)
	posts.Get("/topic/:topic", s.GetLivePosts)
	posts.Put("/check-status/:id", s.CheckPostStatus)
	posts.Post("/:id/like", s.LikePost)
	posts.Post("/:id/dislike", s.DislikePost)
	posts.Post("/:id/comment", s.AddComment)
	posts.Delete("/:postId/comment/:commentId", s.DeleteComment)

	// Realtime feed
	app.Get("/ws", s.requireFlag(featureflags.WebSocketFeed), s.sessionUser(), s.WebsocketUpgrade, s.WebsocketHandler())
}

// Welcome handles GET /
func (s *Server) Welcome(c *fiber.Ctx) error {
	return c.SendString("Welcome to the Piazza system!")
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports store and Redis health. Redis is optional, so only
// the primary store decides readiness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := s.runtime.Ping(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	} else if redisStatus != "healthy" {
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"driver":   s.runtime.Driver(),
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// requireFlag rejects requests with 503 while the named flag is off.
func (s *Server) requireFlag(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !s.featureFlags.On(name) {
			return models.RespondWithAppError(c,
				models.NewUnavailableError("This feature is currently disabled"))
		}
		return c.Next()
	}
}

// Start wires the feed hub, starts the expiry sweeper and listens on PORT.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.NewApp()

	go func() {
		if err := s.hub.StartWiring(ctx, s.notifier); err != nil {
			middleware.Logger.ErrorContext(ctx, "failed to start hub wiring",
				slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
		}
	}()
	go s.sweeper.Run(ctx)

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port),
		slog.String("driver", s.runtime.Driver()))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Stops hub wiring and the sweeper.
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down hub",
			slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
	}

	if err := s.runtime.Close(ctx); err != nil {
		middleware.Logger.Error("error closing runtime", slog.String("error", err.Error()))
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
