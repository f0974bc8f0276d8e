package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/samuelharden/xapian/pkg/config"
)

// Event is one record to publish. Key picks the partition; Value is sent as
// JSON.
type Event struct {
	Key   string
	Value any
}

// Producer writes analytics and ingest events to a single topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	codec, err := CompressionCodec(cfg.Compression)
	logger := slog.Default().With("component", "kafka-producer", "topic", topic)
	if err != nil {
		logger.Warn("unknown kafka compression, sending uncompressed", "compression", cfg.Compression)
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
		Compression:  codec,
	}
	return &Producer{writer: w, logger: logger}
}

// CompressionCodec maps a config name to the writer's codec. The empty
// string and "none" disable compression.
func CompressionCodec(name string) (kafka.Compression, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	}
	return 0, fmt.Errorf("unsupported kafka compression %q", name)
}

// Publish writes one event synchronously.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch writes events in one call. Nothing is sent if any value
// fails to encode.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	messages, err := encode(events)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("failed to publish", "count", len(messages), "error", err)
		return fmt.Errorf("publishing %d events to kafka: %w", len(messages), err)
	}
	p.logger.Debug("published", "count", len(messages))
	return nil
}

func encode(events []Event) ([]kafka.Message, error) {
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event.Value)
		if err != nil {
			return nil, fmt.Errorf("marshaling event %q: %w", event.Key, err)
		}
		messages = append(messages, kafka.Message{Key: []byte(event.Key), Value: value})
	}
	return messages, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
