// Package kafka wraps segmentio/kafka-go for the services: a JSON producer
// and a consumer-group reader that hands each message to a MessageHandler.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/samuelharden/xapian/pkg/config"
	"github.com/samuelharden/xapian/pkg/resilience"
)

// MessageHandler processes one message. A returned error triggers
// redelivery up to the configured retry count; handlers that want a
// message skipped should log and return nil.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler MessageHandler
	retries int
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	retries := cfg.HandlerRetries
	if retries <= 0 {
		retries = 1
	}
	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", cfg.ConsumerGroup),
		handler: handler,
		retries: retries,
	}
}

// Start fetches and handles messages until ctx is cancelled. Offsets are
// committed after the handler succeeds or its retries are spent, so one
// poison message cannot stall the partition. Fetch failures back off
// before the next attempt.
func (c *Consumer) Start(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("kafka consumer started without a handler")
	}
	c.logger.Info("consumer started")
	defer c.reader.Close()
	backoff := resilience.RetryConfig{InitialDelay: 250 * time.Millisecond, MaxDelay: 15 * time.Second}
	failures := 0
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if ctx.Err() != nil {
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return nil
		}
		if err != nil {
			failures++
			delay := backoff.Delay(failures)
			c.logger.Error("fetch failed", "error", err, "consecutive_failures", failures, "retry_in", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		failures = 0
		if !c.handle(ctx, msg) {
			return nil
		}
	}
}

// handle runs the handler on msg and commits it. It reports false once ctx
// is done.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	err := resilience.Retry(ctx, "kafka-handler", resilience.RetryConfig{MaxAttempts: c.retries}, func() error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
	if ctx.Err() != nil {
		return false
	}
	log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
	if err != nil {
		log.Error("message skipped after retries", "key", string(msg.Key), "error", err)
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		log.Error("commit failed", "error", err)
	}
	return ctx.Err() == nil
}

// Stats reports the reader's counters since the last call, including lag.
func (c *Consumer) Stats() kafka.ReaderStats {
	return c.reader.Stats()
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
