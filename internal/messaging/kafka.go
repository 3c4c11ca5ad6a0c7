package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/jtarrant/recfuse/internal/config"
	"github.com/jtarrant/recfuse/internal/validation"
	"github.com/jtarrant/recfuse/pkg/models"
)

// FeedbackBus carries feedback events over Kafka. The HTTP surface is one
// producer; the consumer side feeds the learning buffer, so feedback keeps
// flowing into model updates even when it originates from other services.
type FeedbackBus struct {
	writer    *kafka.Writer
	reader    *kafka.Reader
	validator *validation.SchemaValidator
	logger    *logrus.Logger
}

func NewFeedbackBus(cfg *config.Config, logger *logrus.Logger) (*FeedbackBus, error) {
	validator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topics.FeedbackEvents,
		Balancer:     &kafka.Hash{}, // Key by user for per-user ordering
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.Topics.FeedbackEvents,
		GroupID:        cfg.Kafka.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	return &FeedbackBus{
		writer:    writer,
		reader:    reader,
		validator: validator,
		logger:    logger,
	}, nil
}

// Publish writes one feedback event, keyed by user so a single user's
// events stay ordered within a partition.
func (fb *FeedbackBus) Publish(ctx context.Context, event models.FeedbackEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	message, err := feedbackMessage(event)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := fb.writer.WriteMessages(writeCtx, message); err != nil {
		fb.logger.WithError(err).WithField("user_id", event.UserID).Error("Failed to publish feedback event")
		return fmt.Errorf("failed to write feedback event: %w", err)
	}

	return nil
}

// feedbackMessage builds the wire message for one event. The user id is
// the partition key so a single user's events stay ordered.
func feedbackMessage(event models.FeedbackEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal feedback event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(event.UserID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}, nil
}

// decodeFeedback schema-validates and unmarshals one payload.
func decodeFeedback(value []byte, validator *validation.SchemaValidator) (models.FeedbackEvent, error) {
	if result := validator.ValidateFeedbackEvent(value); !result.Valid {
		return models.FeedbackEvent{}, fmt.Errorf("feedback event failed validation: %v", result.Errors)
	}

	var event models.FeedbackEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return models.FeedbackEvent{}, fmt.Errorf("failed to decode feedback event: %w", err)
	}

	return event, nil
}

// Consume reads feedback events until the context is cancelled, handing
// each valid event to the handler. Malformed payloads are logged and
// skipped; they are never retried since they can never become valid.
func (fb *FeedbackBus) Consume(ctx context.Context, handler func(models.FeedbackEvent)) error {
	for {
		message, err := fb.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fb.logger.WithError(err).Error("Failed to read feedback event")
			continue
		}

		event, err := decodeFeedback(message.Value, fb.validator)
		if err != nil {
			fb.logger.WithError(err).WithField("offset", message.Offset).Warn("Skipping malformed feedback event")
			continue
		}

		handler(event)
	}
}

func (fb *FeedbackBus) Close() error {
	var errors []error

	if err := fb.writer.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close producer: %w", err))
	}

	if err := fb.reader.Close(); err != nil {
		errors = append(errors, fmt.Errorf("failed to close consumer: %w", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("errors closing feedback bus: %v", errors)
	}

	return nil
}

// Stats exposes consumer lag for monitoring.
func (fb *FeedbackBus) Stats() map[string]interface{} {
	stats := fb.reader.Stats()
	return map[string]interface{}{
		"consumer_lag":    stats.Lag,
		"consumer_offset": stats.Offset,
		"messages_read":   stats.Messages,
		"bytes_read":      stats.Bytes,
		"rebalances":      stats.Rebalances,
		"timeouts":        stats.Timeouts,
		"errors":          stats.Errors,
	}
}
