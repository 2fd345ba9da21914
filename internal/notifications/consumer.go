package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"socialhub/internal/shared/config"
	"socialhub/pkg/logger"
)

type ConsumerConfig struct {
	Brokers              []string
	GroupID              string
	Topics               []string
	Workers              int
	SessionTimeout       time.Duration
	Heartbeat            time.Duration
	MaxProcessingTime    time.Duration
	OffsetOldest         bool
	MaxRetries           int
	RetryBackoffDuration time.Duration
}

func DefaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		Brokers:              []string{"localhost:9092"},
		GroupID:              "socialhub-mailer",
		Topics:               []string{"auth-confirmations"},
		Workers:              2,
		SessionTimeout:       30 * time.Second,
		Heartbeat:            3 * time.Second,
		MaxProcessingTime:    time.Minute,
		OffsetOldest:         true,
		MaxRetries:           3,
		RetryBackoffDuration: time.Second,
	}
}

func ConsumerConfigFrom(cfg config.KafkaConfig) *ConsumerConfig {
	cc := DefaultConsumerConfig()
	cc.Brokers = cfg.Brokers
	cc.GroupID = cfg.GroupID
	cc.Topics = []string{cfg.ConfirmationTopic}
	if cfg.Workers > 0 {
		cc.Workers = cfg.Workers
	}
	return cc
}

// Consumer reads confirmation requests and mails them
type Consumer struct {
	group  sarama.ConsumerGroup
	config *ConsumerConfig
	mailer Mailer
	log    *logger.Logger
}

func NewConsumer(cfg *ConsumerConfig, mailer Mailer, log *logger.Logger) (*Consumer, error) {
	sc := sarama.NewConfig()
	sc.Consumer.Group.Session.Timeout = cfg.SessionTimeout
	sc.Consumer.Group.Heartbeat.Interval = cfg.Heartbeat
	sc.Consumer.MaxProcessingTime = cfg.MaxProcessingTime
	sc.Consumer.Return.Errors = true
	if cfg.OffsetOldest {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	sc.Consumer.Offsets.AutoCommit.Enable = true
	sc.Consumer.Offsets.AutoCommit.Interval = time.Second

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Consumer{
		group:  group,
		config: cfg,
		mailer: mailer,
		log:    log.WithComponent("mailer"),
	}, nil
}

// Run joins the group and blocks until ctx is cancelled. Sarama calls
// ConsumeClaim once per assigned partition in its own goroutine; Workers caps
// how many of those may be sending mail at the same time.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("starting confirmation consumer", slog.Int("workers", c.config.Workers), slog.Any("topics", c.config.Topics))

	go func() {
		for err := range c.group.Errors() {
			c.log.Error("consumer group error", slog.Any("error", err))
		}
	}()

	handler := newGroupHandler(c.config, c.mailer, c.log.Logger)
	for {
		if ctx.Err() != nil {
			c.log.Info("consumer shutting down")
			return ctx.Err()
		}
		// Consume returns on every rebalance and must be called again
		if err := c.group.Consume(ctx, c.config.Topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.log.Error("error consuming messages", slog.Any("error", err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
		}
	}
}

func (c *Consumer) Close() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	return nil
}

// groupHandler implements sarama.ConsumerGroupHandler
type groupHandler struct {
	config *ConsumerConfig
	mailer Mailer
	log    *slog.Logger
	now    func() time.Time
	slots  chan struct{}
}

func newGroupHandler(cfg *ConsumerConfig, mailer Mailer, log *slog.Logger) *groupHandler {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &groupHandler{
		config: cfg,
		mailer: mailer,
		log:    log,
		slots:  make(chan struct{}, workers),
	}
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.log.Debug("consumer group session started")
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.log.Debug("consumer group session ended")
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if err := h.processMessage(session.Context(), message); err != nil {
				h.log.Error("error processing message",
					slog.Int64("offset", message.Offset),
					slog.Any("error", err),
				)
				continue
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// processMessage delivers one confirmation. Undecodable payloads are
// dropped (returning nil) so they do not block the partition.
func (h *groupHandler) processMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	var msg ConfirmationMessage
	if err := json.Unmarshal(message.Value, &msg); err != nil {
		h.log.Error("dropping undecodable confirmation", slog.Int64("offset", message.Offset), slog.Any("error", err))
		return nil
	}

	now := time.Now
	if h.now != nil {
		now = h.now
	}
	if msg.IsExpired(now()) {
		h.log.Info("confirmation link already expired, skipping", slog.String("message_id", msg.ID.String()))
		return nil
	}

	email, err := Render(&msg)
	if err != nil {
		msg.MarkFailed(err)
		return err
	}

	select {
	case h.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-h.slots }()

	msg.Status = MessageStatusSending
	if err := h.executeWithRetry(ctx, &msg, email); err != nil {
		msg.MarkFailed(err)
		return err
	}

	msg.MarkSent()
	h.log.Info("confirmation sent", slog.String("kind", string(msg.Kind)), slog.String("message_id", msg.ID.String()))
	return nil
}

func (h *groupHandler) executeWithRetry(ctx context.Context, msg *ConfirmationMessage, email *Email) error {
	maxRetries := h.config.MaxRetries
	backoff := h.config.RetryBackoffDuration

	for attempt := 0; ; attempt++ {
		err := h.mailer.Send(ctx, email)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return fmt.Errorf("giving up after %d attempts: %w", attempt+1, err)
		}

		msg.RetryCount++
		delay := backoff * time.Duration(1<<attempt)
		h.log.Warn("retrying confirmation", slog.Int("attempt", attempt+1), slog.Duration("delay", delay), slog.Any("error", err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
