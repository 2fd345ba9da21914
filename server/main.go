package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"socialhub/api/routes"
	"socialhub/internal/notifications"
	"socialhub/internal/shared/config"
	"socialhub/internal/shared/database"
	"socialhub/internal/shared/middleware"
	"socialhub/pkg/logger"
	"socialhub/pkg/ratelimit"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)
	appLogger := logger.New(cfg.LogLevel)

	if envErr != nil {
		if cfg.GinMode == gin.ReleaseMode || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	if err := cfg.Validate(); err != nil {
		appLogger.Critical(context.Background(), "invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.IsProduction() && !cfg.Cookie.Secure {
		appLogger.Warn("COOKIE_SECURE is off in release mode; session cookies will travel over plain HTTP")
	}

	db, err := database.InitDB(cfg, appLogger)
	if err != nil {
		appLogger.Critical(context.Background(), "failed to initialize databases", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = ratelimit.NewRateLimiter(db.GetRedisClient(), ratelimit.ConfigFrom(cfg.RateLimit))
		appLogger.Info("Rate limiter initialized",
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("default_requests", cfg.RateLimit.DefaultRequests),
			slog.Int("auth_requests", cfg.RateLimit.AuthRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	dispatcher, closeDispatcher := newDispatcher(cfg, appLogger)
	defer closeDispatcher()

	router := setupRouter(cfg, db, dispatcher, rateLimiter, appLogger)

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("api_base", cfg.GetAPIBasePath()),
			slog.String("version", Version),
			slog.String("commit", GitCommit),
			slog.String("built", BuildTime),
			slog.Bool("kafka", cfg.Kafka.Enabled),
			slog.Bool("rate_limiting", cfg.RateLimit.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Critical(context.Background(), "Server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

// newDispatcher publishes confirmation mail to Kafka when enabled and
// otherwise renders it into the log
func newDispatcher(cfg *config.Config, log *logger.Logger) (notifications.Dispatcher, func()) {
	if !cfg.Kafka.Enabled {
		log.Info("Kafka disabled, confirmation mail goes to the log")
		return notifications.NewLogDispatcher(log), func() {}
	}

	kafka, err := notifications.NewKafkaDispatcher(notifications.ProducerConfigFrom(cfg.Kafka), log)
	if err != nil {
		log.Error("Failed to initialize Kafka dispatcher, falling back to log", slog.Any("error", err))
		return notifications.NewLogDispatcher(log), func() {}
	}

	log.Info("Kafka dispatcher initialized", slog.String("topic", cfg.Kafka.ConfirmationTopic))
	return kafka, func() {
		if err := kafka.Close(); err != nil {
			log.Error("Error closing Kafka producer", slog.Any("error", err))
		}
	}
}

func setupRouter(cfg *config.Config, db *database.DB, dispatcher notifications.Dispatcher, rateLimiter *ratelimit.RateLimiter, log *logger.Logger) *gin.Engine {
	engine := gin.New()

	// without this gin trusts X-Forwarded-For from any peer
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Critical(context.Background(), "invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}

	engine.Use(middleware.RequestID(), middleware.RequestLogger(log), gin.Recovery())

	// cookies carry the session, so origins are listed rather than reflected
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.PublicBaseURL},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", middleware.HeaderRequestID},
		ExposeHeaders:    []string{"Content-Length", middleware.HeaderRequestID, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if rateLimiter != nil {
		engine.Use(ratelimit.Middleware(rateLimiter, log))
	}

	appRouter := routes.NewRouter(cfg, db, dispatcher, log)
	appRouter.SetupRoutes(engine)

	return engine
}
