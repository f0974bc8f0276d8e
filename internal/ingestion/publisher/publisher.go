// Package publisher records accepted documents in PostgreSQL and hands them
// to the indexer through Kafka. Placement uses the same xxhash rule as the
// shard router, and requests carrying an idempotency key are accepted once.
package publisher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/samuelharden/xapian/internal/indexer/shard"
	"github.com/samuelharden/xapian/internal/ingestion"
	apperrors "github.com/samuelharden/xapian/pkg/errors"
	"github.com/samuelharden/xapian/pkg/kafka"
	"github.com/samuelharden/xapian/pkg/resilience"
)

// Store is the document metadata table; *PGStore is the production one.
type Store interface {
	Insert(ctx context.Context, doc Document) error
	FindByIdempotencyKey(ctx context.Context, key string) (*ingestion.IngestResponse, error)
	Delete(ctx context.Context, id string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Publisher struct {
	store     Store
	producer  EventPublisher
	numShards int
	retry     resilience.RetryConfig
	logger    *slog.Logger
}

func New(store Store, producer EventPublisher, numShards int) *Publisher {
	if numShards < 1 {
		numShards = 1
	}
	return &Publisher{
		store:     store,
		producer:  producer,
		numShards: numShards,
		retry:     resilience.RetryConfig{MaxAttempts: 3},
		logger:    slog.Default().With("component", "publisher"),
	}
}

// Ingest stores req as PENDING and publishes its IngestEvent. When the
// publish still fails after retries the row is removed again, so the
// caller can resubmit the same request.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	if req.IdempotencyKey != "" {
		existing, err := p.store.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("checking idempotency key: %w", err)
		}
		if existing != nil {
			p.logger.Info("duplicate ingestion detected",
				"idempotency_key", req.IdempotencyKey,
				"doc_id", existing.DocumentID,
			)
			existing.Duplicate = true
			return existing, nil
		}
	}

	docID := req.DocumentID
	if docID == "" {
		docID = uuid.NewString()
	}
	sum := sha256.Sum256([]byte(req.Body))
	doc := Document{
		ID:             docID,
		Title:          req.Title,
		ContentHash:    hex.EncodeToString(sum[:]),
		ContentSize:    len(req.Body),
		ShardID:        shard.Assign(docID, p.numShards),
		IdempotencyKey: req.IdempotencyKey,
	}
	if err := p.store.Insert(ctx, doc); err != nil {
		return nil, fmt.Errorf("inserting document %s: %w", docID, err)
	}

	event := kafka.Event{
		Key: docID,
		Value: ingestion.IngestEvent{
			DocumentID: docID,
			Title:      req.Title,
			Body:       req.Body,
			ShardID:    doc.ShardID,
			IngestedAt: time.Now().UTC(),
		},
	}
	err := resilience.Retry(ctx, "ingest-publish", p.retry, func() error {
		return p.producer.Publish(ctx, event)
	})
	if err != nil {
		p.logger.Error("publish failed, withdrawing document",
			"doc_id", docID,
			"shard_id", doc.ShardID,
			"error", err,
		)
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if delErr := p.store.Delete(cleanupCtx, docID); delErr != nil {
			p.logger.Error("withdrawing document failed, row left pending", "doc_id", docID, "error", delErr)
		}
		return nil, apperrors.Newf(apperrors.ErrShardUnavailable, http.StatusServiceUnavailable,
			"document %s could not be queued for indexing: %v", docID, err)
	}

	return &ingestion.IngestResponse{
		DocumentID: docID,
		Status:     ingestion.StatusPending,
		ShardID:    doc.ShardID,
	}, nil
}
