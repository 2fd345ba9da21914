package notifications

import (
	"context"
	"log/slog"

	"socialhub/pkg/logger"
)

// Dispatcher queues confirmation mail. It is fire-and-forget: delivery
// problems are logged by the implementation and never reach the caller.
type Dispatcher interface {
	EnqueueConfirmation(ctx context.Context, req ConfirmationRequest)
}

// LogDispatcher renders the mail and logs the link; used when Kafka is off
type LogDispatcher struct {
	mailer Mailer
	log    *logger.Logger
}

func NewLogDispatcher(log *logger.Logger) *LogDispatcher {
	return &LogDispatcher{
		mailer: NewLogMailer(log),
		log:    log.WithComponent("dispatch"),
	}
}

func (d *LogDispatcher) EnqueueConfirmation(ctx context.Context, req ConfirmationRequest) {
	email, err := Render(NewConfirmationMessage(req))
	if err != nil {
		d.log.ErrorContext(ctx, "render confirmation failed", slog.String("kind", string(req.Kind)), slog.Any("error", err))
		return
	}
	_ = d.mailer.Send(ctx, email)
}
