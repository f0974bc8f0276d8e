// Package consumer reads ingestion events from Kafka and indexes them
// through the shard router. Every indexed document yields its terms and its
// bigram list.
package consumer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/samuelharden/xapian/internal/analytics"
	"github.com/samuelharden/xapian/internal/indexer"
	"github.com/samuelharden/xapian/internal/indexer/shard"
	"github.com/samuelharden/xapian/internal/ingestion"
	"github.com/samuelharden/xapian/pkg/kafka"
	"github.com/samuelharden/xapian/pkg/metrics"
)

// IndexConsumer drives the indexing pipeline from a Kafka consumer.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("consuming ingest events")
	return ic.consumer.Start(ctx)
}

// WatchLag publishes the consumer's lag to m every interval until ctx is
// done.
func (ic *IndexConsumer) WatchLag(ctx context.Context, m *metrics.Metrics, interval time.Duration) {
	if m == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := ic.consumer.Stats()
				m.ConsumerLag.WithLabelValues(stats.Topic).Set(float64(stats.Lag))
			}
		}
	}()
}

// Tracker receives one analytics event per indexed document.
type Tracker interface {
	Track(key string, value any)
}

// StatusRecorder moves a document through its ingestion lifecycle.
type StatusRecorder interface {
	SetStatus(ctx context.Context, docID, status string) error
}

// SQLStatus records status in the documents table written by ingestion.
type SQLStatus struct {
	DB *sql.DB
}

func (s SQLStatus) SetStatus(ctx context.Context, docID, status string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE documents SET status = $1, indexed_at = NOW() WHERE id = $2`,
		status, docID,
	)
	return err
}

// Deps are the optional collaborators of the message handler. Nil fields
// are skipped.
type Deps struct {
	Status  StatusRecorder
	Events  Tracker
	Metrics *metrics.Metrics
}

type handler struct {
	router *shard.Router
	deps   Deps
	logger *slog.Logger
}

// HandleMessageSharded returns a Kafka MessageHandler that indexes each
// ingest event into its shard. The event's shard ID is honoured when the
// router has such a shard; otherwise the document ID is hashed. A message
// that cannot be decoded or has no document ID is logged and skipped.
func HandleMessageSharded(router *shard.Router, deps Deps) kafka.MessageHandler {
	h := &handler{
		router: router,
		deps:   deps,
		logger: slog.Default().With("component", "index-consumer"),
	}
	return h.handle
}

func (h *handler) handle(ctx context.Context, key, value []byte) error {
	start := time.Now()
	event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
	if err != nil {
		h.logger.Error("undecodable ingest event", "key", string(key), "error", err)
		return nil
	}
	if event.DocumentID == "" {
		h.logger.Warn("ingest event without document id", "key", string(key))
		return nil
	}

	shardID := event.ShardID
	if shardID < 0 || shardID >= h.router.NumShards() {
		shardID = h.router.ShardFor(event.DocumentID)
	}
	engine, err := h.router.Route(shardID)
	if err != nil {
		return fmt.Errorf("route %s: %w", event.DocumentID, err)
	}

	if err := engine.IndexDocument(event.DocumentID, event.Title, event.Body); err != nil {
		h.setStatus(ctx, event.DocumentID, ingestion.StatusFailed)
		return fmt.Errorf("index %s into shard %d: %w", event.DocumentID, shardID, err)
	}
	h.setStatus(ctx, event.DocumentID, ingestion.StatusIndexed)
	h.report(event, shardID, engine, time.Since(start))
	return nil
}

func (h *handler) setStatus(ctx context.Context, docID, status string) {
	if h.deps.Status == nil {
		return
	}
	if err := h.deps.Status.SetStatus(ctx, docID, status); err != nil {
		h.logger.Error("document status update failed", "doc_id", docID, "status", status, "error", err)
	}
}

func (h *handler) report(event ingestion.IngestEvent, shardID int, engine *indexer.Engine, took time.Duration) {
	var bigrams int
	if list, ok := engine.BigramList(event.DocumentID, nil); ok {
		bigrams = int(list.ApproxSize())
	}
	if m := h.deps.Metrics; m != nil {
		m.DocsIndexedTotal.Inc()
		m.ShardDocCount.WithLabelValues(strconv.Itoa(shardID)).Set(float64(engine.DocCount()))
	}
	if h.deps.Events != nil {
		h.deps.Events.Track(event.DocumentID, analytics.IndexEvent{
			Type:        analytics.EventIndexDoc,
			DocumentID:  event.DocumentID,
			ShardID:     shardID,
			TokenCount:  engine.GetDocLength(event.DocumentID),
			BigramCount: bigrams,
			SizeBytes:   len(event.Title) + len(event.Body),
			LatencyMs:   took.Milliseconds(),
			Timestamp:   time.Now().UTC(),
		})
	}
	h.logger.Debug("document indexed", "doc_id", event.DocumentID, "shard_id", shardID, "bigrams", bigrams, "took", took)
}
