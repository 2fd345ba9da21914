// Command mailer consumes confirmation requests from Kafka and delivers them over SMTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"socialhub/internal/notifications"
	"socialhub/internal/shared/config"
	"socialhub/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)
	appLogger := logger.New(cfg.LogLevel).WithComponent("mailer")

	mailer, err := newMailer(cfg, appLogger)
	if err != nil {
		appLogger.Critical(context.Background(), "invalid SMTP configuration", slog.Any("error", err))
		os.Exit(1)
	}

	consumer, err := notifications.NewConsumer(notifications.ConsumerConfigFrom(cfg.Kafka), mailer, appLogger)
	if err != nil {
		appLogger.Critical(context.Background(), "failed to start consumer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			appLogger.Error("error closing consumer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("consumer stopped", slog.Any("error", err))
	}
	appLogger.Info("mailer exited gracefully")
}

// newMailer falls back to logging mail when no SMTP host is configured
func newMailer(cfg *config.Config, log *logger.Logger) (notifications.Mailer, error) {
	if cfg.Email.SMTPHost == "" {
		log.Warn("SMTP_HOST not set, mail will be logged instead of sent")
		return notifications.NewLogMailer(log), nil
	}
	return notifications.NewSMTPMailer(notifications.SMTPConfigFrom(cfg.Email), log)
}
