// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "bookswap/docs" // swagger docs
	"bookswap/internal/cache"
	"bookswap/internal/config"
	"bookswap/internal/featureflags"
	"bookswap/internal/middleware"
	"bookswap/internal/models"
	"bookswap/internal/notifications"
	"bookswap/internal/repository"
	"bookswap/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo     repository.UserRepository
	bookRepo     repository.BookRepository
	swapRepo     repository.SwapRepository
	messageRepo  repository.MessageRepository
	wishlistRepo repository.WishlistRepository

	notifier     *notifications.Notifier
	hub          *notifications.Hub
	featureFlags *featureflags.Manager
	quotas       *middleware.RateLimiter

	userService     *service.UserService
	bookService     *service.BookService
	coverService    *service.CoverService
	swapService     *service.SwapService
	messageService  *service.MessageService
	ratingService   *service.RatingService
	wishlistService *service.WishlistService
}

// Per-action quotas, enforced only in production-like environments.
var (
	registerQuota    = middleware.Rule{Name: "register", Limit: 5, Window: 10 * time.Minute, FailClosed: true}
	loginQuota       = middleware.Rule{Name: "login", Limit: 10, Window: 5 * time.Minute, FailClosed: true}
	rateUserQuota    = middleware.Rule{Name: "rate_user", Limit: 10, Window: time.Hour}
	coverUploadQuota = middleware.Rule{Name: "cover_upload", Limit: 10, Window: 10 * time.Minute}
	createSwapQuota  = middleware.Rule{Name: "create_swap", Limit: 20, Window: time.Hour}
	sendMessageQuota = middleware.Rule{Name: "send_message", Limit: 30, Window: time.Minute}
)

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; caching, tickets, idempotency and realtime events
// are then disabled.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("server requires config and database")
	}

	store := cache.NewStore(redisClient)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("bookswap-api"),
		userRepo:       repository.NewUserRepository(db, store),
		bookRepo:       repository.NewBookRepository(db, store),
		swapRepo:       repository.NewSwapRepository(db, store),
		messageRepo:    repository.NewMessageRepository(db),
		wishlistRepo:   repository.NewWishlistRepository(db),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		quotas:         middleware.NewRateLimiter(redisClient, cfg.Env),
	}

	var events service.EventPublisher
	if redisClient != nil {
		s.notifier = notifications.NewNotifier(redisClient)
		s.hub = notifications.NewHub()
		events = s.notifier
	}

	s.userService = service.NewUserService(s.userRepo, s.bookRepo)
	s.bookService = service.NewBookService(s.bookRepo, events)
	s.coverService = service.NewCoverService(s.bookRepo, s.featureFlags, cfg)
	s.swapService = service.NewSwapService(s.swapRepo, s.messageRepo,
		service.NewPaymentSimulator(cfg.PaymentSimDelay()), events)
	s.messageService = service.NewMessageService(s.swapRepo, s.messageRepo, events)
	s.ratingService = service.NewRatingService(s.userRepo, s.swapRepo, s.featureFlags, events)
	s.wishlistService = service.NewWishlistService(s.wishlistRepo)

	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	// Propagate request ID and user ID into the request context
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.RequestLogger("/health", "/metrics"))

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Idempotency-Key, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.Response{
				Status:  false,
				Message: "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "BookSwap Backend Metrics Dashboard",
	}))

	api.Get("/swagger/*", swagger.HandlerDefault)

	// Cover images are public so <img> tags work without a token
	app.Get(service.CoverURLPrefix+"/:hash/:file", s.ServeCover)

	idempotent := middleware.NewIdempotency(s.redis).Handle()

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", s.quotas.Handler(registerQuota), s.Register)
	auth.Post("/login", s.quotas.Handler(loginQuota), s.Login)
	auth.Post("/logout", s.AuthRequired(), s.Logout)
	auth.Put("/profile", s.AuthRequired(), s.UpdateProfile)
	auth.Get("/stats", s.AuthRequired(), s.GetMyStats)
	auth.Post("/rate/:userId", s.AuthRequired(),
		s.quotas.Handler(rateUserQuota), s.RateUser)

	// Public catalog
	users := api.Group("/users")
	users.Get("/:id/ratings", s.GetUserRatings)
	users.Get("/:id", s.GetUserProfile)

	books := api.Group("/books")
	books.Get("/", s.ListBooks)
	books.Get("/:id", s.GetBook)
	books.Post("/", s.AuthRequired(), s.CreateBook)
	books.Post("/:id/cover", s.AuthRequired(),
		s.quotas.Handler(coverUploadQuota), s.UploadCover)
	books.Put("/:id", s.AuthRequired(), s.UpdateBook)
	books.Delete("/:id", s.AuthRequired(), s.DeleteBook)

	// WebSocket ticket issuance; the socket itself authenticates with the ticket
	api.Post("/ws/ticket", s.AuthRequired(), s.IssueWSTicket)
	api.Get("/ws", s.AuthRequired(), s.WebsocketHandler())

	swaps := api.Group("/swaps", s.AuthRequired())
	swaps.Post("/", s.quotas.Handler(createSwapQuota), idempotent, s.CreateSwapRequest)
	swaps.Get("/", s.ListMySwapRequests)
	swaps.Put("/:id", s.UpdateSwapStatus)
	swaps.Delete("/:id", s.CancelSwapRequest)

	// Specific message routes before generic /:swapRequestId
	messages := api.Group("/messages", s.AuthRequired())
	messages.Get("/conversations", s.ListConversations)
	messages.Get("/unread/count", s.GetUnreadCount)
	messages.Put("/:messageId/read", s.MarkMessageRead)
	messages.Get("/:swapRequestId", s.GetThread)
	messages.Post("/:swapRequestId", s.quotas.Handler(sendMessageQuota), idempotent, s.SendMessage)
	messages.Delete("/:swapRequestId", s.DeleteThread)

	wishlist := api.Group("/wishlist", s.AuthRequired())
	wishlist.Get("/", s.GetWishlist)
	wishlist.Post("/:bookId", s.AddToWishlist)
	wishlist.Delete("/:bookId", s.RemoveFromWishlist)

	admin := api.Group("/admin", s.AuthRequired(), s.AdminRequired())
	admin.Get("/feature-flags", s.GetFeatureFlags)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"message": "BookSwap API",
		"version": "1.0.0",
		"status":  overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AdminRequired returns middleware that rejects non-admin users with 403.
// Must be placed after AuthRequired so that userID is available in locals.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("userID").(uint)

		user, err := s.userRepo.GetByID(c.UserContext(), userID)
		if err != nil {
			return s.respondError(c, err)
		}
		if !user.IsAdmin() {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Admin access required"))
		}

		return c.Next()
	}
}

// AuthRequired returns the authentication middleware. WebSocket upgrades
// authenticate with a single-use ticket; everything else with a Bearer JWT.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		isWSPath := strings.HasPrefix(c.Path(), "/api/ws") && c.Path() != "/api/ws/ticket"

		if ticket := c.Query("ticket"); ticket != "" || isWSPath {
			userID, ok := s.consumeWSTicket(c.UserContext(), ticket)
			if ok {
				middleware.WithUserID(c, userID)
				return c.Next()
			}
			if isWSPath {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
		}

		claims, err := middleware.ParseAccessToken(s.config.JWTSecret, middleware.BearerToken(c))
		if err != nil {
			msg := "Invalid or expired token"
			if errors.Is(err, middleware.ErrMissingToken) {
				msg = "Authorization required"
			}
			return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError(msg))
		}

		if claims.JTI != "" && s.redis != nil {
			revoked, err := s.redis.Exists(c.UserContext(), cache.BlacklistKey(claims.JTI)).Result()
			if err == nil && revoked > 0 {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Token has been revoked"))
			}
		}

		c.Locals("claims", claims)
		middleware.WithUserID(c, claims.UserID)
		return c.Next()
	}
}

// consumeWSTicket resolves and deletes a ticket in one round trip.
func (s *Server) consumeWSTicket(ctx context.Context, ticket string) (uint, bool) {
	if ticket == "" || s.redis == nil {
		return 0, false
	}
	raw, err := s.redis.GetDel(ctx, cache.WSTicketKey(ticket)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			middleware.Logger.WarnContext(ctx, "ws ticket lookup failed", slog.String("error", err.Error()))
		}
		return 0, false
	}
	userID, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || userID == 0 {
		return 0, false
	}
	return uint(userID), true
}

// App builds the Fiber application with middleware and routes installed.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "BookSwap API",
		BodyLimit: (s.coverUploadLimitMB() + 1) * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return models.RespondWithError(c, fe.Code, errors.New(fe.Message))
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})

	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

func (s *Server) coverUploadLimitMB() int {
	if s.config.CoverMaxUploadSizeMB > 0 {
		return s.config.CoverMaxUploadSizeMB
	}
	return service.DefaultCoverMaxUploadSizeMB
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.App()

	if s.notifier != nil && s.hub != nil {
		go func() {
			if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
				middleware.Logger.Error("failed to start hub wiring",
					slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
			}
		}()
	}

	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if s.hub != nil {
		if err := s.hub.Shutdown(ctx); err != nil {
			middleware.Logger.Error("error shutting down hub", slog.String("error", err.Error()))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
