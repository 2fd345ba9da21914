package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"socialhub/internal/shared/config"
	"socialhub/pkg/logger"
)

// ProducerConfig contains configuration for the confirmation producer
type ProducerConfig struct {
	Brokers          []string
	Topic            string
	RetryMax         int
	Timeout          time.Duration
	RequiredAcks     sarama.RequiredAcks
	Compression      sarama.CompressionCodec
	IdempotentWrites bool
	MaxMessageBytes  int
}

func DefaultProducerConfig() *ProducerConfig {
	return &ProducerConfig{
		Brokers:          []string{"localhost:9092"},
		Topic:            "auth-confirmations",
		RetryMax:         3,
		Timeout:          10 * time.Second,
		RequiredAcks:     sarama.WaitForAll,
		Compression:      sarama.CompressionSnappy,
		IdempotentWrites: true,
		MaxMessageBytes:  1000000,
	}
}

func ProducerConfigFrom(cfg config.KafkaConfig) *ProducerConfig {
	pc := DefaultProducerConfig()
	pc.Brokers = cfg.Brokers
	pc.Topic = cfg.ConfirmationTopic
	return pc
}

func (c *ProducerConfig) saramaConfig() *sarama.Config {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = c.RequiredAcks
	sc.Producer.Compression = c.Compression
	sc.Producer.Retry.Max = c.RetryMax
	sc.Producer.Timeout = c.Timeout
	sc.Producer.Idempotent = c.IdempotentWrites
	sc.Producer.MaxMessageBytes = c.MaxMessageBytes
	if c.IdempotentWrites {
		sc.Net.MaxOpenRequests = 1
	}
	// same recipient, same partition
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	return sc
}

// KafkaDispatcher publishes confirmation requests to Kafka for the mailer worker
type KafkaDispatcher struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
}

func NewKafkaDispatcher(cfg *ProducerConfig, log *logger.Logger) (*KafkaDispatcher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, cfg.saramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewKafkaDispatcherWithProducer(producer, cfg.Topic, log), nil
}

// NewKafkaDispatcherWithProducer wraps an existing producer
func NewKafkaDispatcherWithProducer(producer sarama.SyncProducer, topic string, log *logger.Logger) *KafkaDispatcher {
	return &KafkaDispatcher{
		producer: producer,
		topic:    topic,
		log:      log.WithComponent("dispatch"),
	}
}

func (d *KafkaDispatcher) EnqueueConfirmation(ctx context.Context, req ConfirmationRequest) {
	msg := NewConfirmationMessage(req)
	if err := d.Publish(msg); err != nil {
		d.log.ErrorContext(ctx, "enqueue confirmation failed",
			slog.String("kind", string(req.Kind)),
			slog.String("message_id", msg.ID.String()),
			slog.Any("error", err),
		)
	}
}

// Publish sends msg to the confirmation topic
func (d *KafkaDispatcher) Publish(msg *ConfirmationMessage) error {
	value, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal confirmation: %w", err)
	}

	partition, offset, err := d.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     d.topic,
		Key:       sarama.StringEncoder(msg.PartitionKey()),
		Value:     sarama.ByteEncoder(value),
		Headers:   headers(msg),
		Timestamp: msg.CreatedAt,
	})
	if err != nil {
		msg.MarkFailed(err)
		return fmt.Errorf("failed to send confirmation to Kafka: %w", err)
	}

	d.log.Debug("confirmation published",
		slog.String("topic", d.topic),
		slog.Int("partition", int(partition)),
		slog.Int64("offset", offset),
		slog.String("kind", string(msg.Kind)),
	)
	return nil
}

func headers(msg *ConfirmationMessage) []sarama.RecordHeader {
	h := []sarama.RecordHeader{
		{Key: []byte("message_id"), Value: []byte(msg.ID.String())},
		{Key: []byte("kind"), Value: []byte(msg.Kind)},
		{Key: []byte("producer"), Value: []byte("socialhub-auth")},
		{Key: []byte("created_at"), Value: []byte(msg.CreatedAt.Format(time.RFC3339))},
	}
	if msg.ExpiresAt != nil {
		h = append(h, sarama.RecordHeader{Key: []byte("expires_at"), Value: []byte(msg.ExpiresAt.Format(time.RFC3339))})
	}
	return h
}

func (d *KafkaDispatcher) Close() error {
	if err := d.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}
