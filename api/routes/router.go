// api/routes/router.go
package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"socialhub/internal/auth"
	"socialhub/internal/notifications"
	"socialhub/internal/pending"
	"socialhub/internal/shared/config"
	"socialhub/internal/shared/database"
	"socialhub/internal/shared/middleware"
	"socialhub/internal/tokens"
	"socialhub/internal/users"
	"socialhub/pkg/logger"
)

const serviceName = "socialhub"

// HealthChecker reports whether backing stores are reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Router holds all route dependencies
type Router struct {
	config     *config.Config
	db         *database.DB
	health     HealthChecker
	dispatcher notifications.Dispatcher
	log        *logger.Logger

	tokens  *tokens.Service
	cookies *tokens.Cookies
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, db *database.DB, dispatcher notifications.Dispatcher, log *logger.Logger) *Router {
	tokenService := tokens.NewServiceFromConfig(cfg.JWT)
	return &Router{
		config:     cfg,
		db:         db,
		health:     db,
		dispatcher: dispatcher,
		log:        log,
		tokens:     tokenService,
		cookies:    tokens.NewCookies(cfg.Cookie, tokenService.AccessTTL(), tokenService.RefreshTTL()),
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	// every API request goes through cookie session renewal
	api := engine.Group(r.config.GetAPIBasePath(),
		middleware.SessionRefresh(r.tokens, r.cookies, r.log, middleware.SessionOptions{}),
	)
	r.setupAuthRoutes(api)
}

func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.health.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   serviceName,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   serviceName,
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "operational",
			"api_version": r.config.APIVersion,
			"timestamp":   time.Now(),
		})
	})
}

func (r *Router) setupAuthRoutes(rg *gin.RouterGroup) {
	userRepo := users.NewRepository(r.db.GetPostgreSQL())

	store := pending.NewStore(r.db.GetRedisClient(), pending.Options{
		DefaultTTL: r.config.Pending.ConfirmTTL,
		OpTimeout:  r.config.Redis.OpTimeout,
	}, r.log)
	if err := store.Connect(context.Background()); err != nil {
		// Save/Get retry the connection on demand
		r.log.Warn("pending store not connected", slog.Any("error", err))
	}

	gate := auth.NewGate(userRepo, r.tokens, r.log)
	authService := auth.NewService(gate, userRepo, r.tokens, store, r.dispatcher, r.config.Pending, r.log)
	authController := auth.NewController(authService, r.cookies, r.config.PublicBaseURL)
	authRouter := auth.NewRouter(authController, gate)

	authRouter.SetupRoutes(rg)
}
