// Package collector batches indexer analytics events and flushes them to
// Kafka in bulk, which suits the indexer's bursty write pattern better than
// one publish per document.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samuelharden/xapian/pkg/kafka"
)

// BatchPublisher is the part of *kafka.Producer the collector uses.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// BatchCollector publishes from a single loop, woken by a full batch or by
// its interval timer. A batch that fails to publish goes back to the front
// of the queue; the queue holds at most three batches and sheds its oldest
// events beyond that.
type BatchCollector struct {
	producer  BatchPublisher
	batchSize int
	limit     int
	interval  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	pending []kafka.Event

	kick    chan struct{}
	done    chan struct{}
	started atomic.Bool
	dropped atomic.Int64
}

func NewBatchCollector(producer BatchPublisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchCollector{
		producer:  producer,
		batchSize: batchSize,
		limit:     3 * batchSize,
		interval:  flushInterval,
		logger:    slog.Default().With("component", "batch-collector"),
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Start runs the flush loop until ctx is cancelled, then publishes what is
// left with a short grace period.
func (bc *BatchCollector) Start(ctx context.Context) {
	if !bc.started.CompareAndSwap(false, true) {
		return
	}
	bc.logger.Info("batch collector started", "batch_size", bc.batchSize, "flush_interval", bc.interval)
	go bc.loop(ctx)
}

func (bc *BatchCollector) loop(ctx context.Context) {
	defer close(bc.done)
	timer := time.NewTimer(bc.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			grace, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			bc.Flush(grace)
			cancel()
			return
		case <-bc.kick:
		case <-timer.C:
		}
		bc.Flush(ctx)
		timer.Reset(bc.interval)
	}
}

// Track queues an event under key and wakes the loop once a batch is full.
// Without a running loop the batch is published inline.
func (bc *BatchCollector) Track(key string, value any) {
	bc.mu.Lock()
	bc.pending = append(bc.pending, kafka.Event{Key: key, Value: value})
	full := len(bc.pending) >= bc.batchSize
	bc.mu.Unlock()
	if !full {
		return
	}
	if !bc.started.Load() {
		bc.Flush(context.Background())
		return
	}
	select {
	case bc.kick <- struct{}{}:
	default:
	}
}

// Close waits for the loop to make its final flush. It returns at once if
// the loop never started.
func (bc *BatchCollector) Close() {
	if bc.started.Load() {
		<-bc.done
	}
}

func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.pending)
}

func (bc *BatchCollector) Dropped() int64 {
	return bc.dropped.Load()
}

// Flush publishes everything queued as one batch.
func (bc *BatchCollector) Flush(ctx context.Context) {
	bc.mu.Lock()
	batch := bc.pending
	bc.pending = nil
	bc.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	err := bc.producer.PublishBatch(ctx, batch)
	if err == nil {
		bc.logger.Debug("batch published", "events", len(batch))
		return
	}

	bc.mu.Lock()
	queue := append(batch, bc.pending...)
	shed := max(len(queue)-bc.limit, 0)
	bc.pending = queue[shed:]
	bc.mu.Unlock()

	bc.logger.Error("batch publish failed, requeued", "events", len(batch), "error", err)
	if shed > 0 {
		bc.dropped.Add(int64(shed))
		bc.logger.Warn("event queue full, oldest events shed", "shed", shed)
	}
}
