package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samuelharden/xapian/pkg/kafka"
)

// Publisher is the part of *kafka.Producer the collector uses.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

const (
	drainTimeout = 5 * time.Second
	// dropLogEvery limits drop warnings under sustained overload.
	dropLogEvery = 1000
)

// Collector publishes analytics events from request handlers without
// blocking them. Events wait in a bounded queue; when it is full, or once
// the collector is closed, they are counted as dropped.
type Collector struct {
	producer Publisher
	logger   *slog.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan kafka.Event
	started atomic.Bool
	done    chan struct{}
	dropped atomic.Int64
}

func NewCollector(producer Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer: producer,
		logger:   slog.Default().With("component", "analytics-collector"),
		queue:    make(chan kafka.Event, bufferSize),
		done:     make(chan struct{}),
	}
}

// Start runs the publishing loop until ctx ends or Close is called. What
// is still queued at that point is published with a bounded grace period.
func (c *Collector) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.loop(ctx)
	c.logger.Info("collector started", "buffer_size", cap(c.queue))
}

func (c *Collector) loop(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case e, ok := <-c.queue:
			if !ok {
				return
			}
			c.publish(ctx, e)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
			defer cancel()
			c.drain(drainCtx)
			return
		}
	}
}

func (c *Collector) drain(ctx context.Context) {
	for {
		select {
		case e, ok := <-c.queue:
			if !ok {
				return
			}
			c.publish(ctx, e)
		default:
			return
		}
	}
}

// Track queues event for publishing, keyed by EventKey.
func (c *Collector) Track(event any) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.drop("closed")
		return
	}
	select {
	case c.queue <- kafka.Event{Key: EventKey(event), Value: event}:
	default:
		c.drop("buffer full")
	}
}

func (c *Collector) drop(reason string) {
	if n := c.dropped.Add(1); n%dropLogEvery == 1 {
		c.logger.Warn("analytics event dropped", "reason", reason, "dropped_total", n)
	}
}

// Dropped reports how many events were discarded.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events and, if the loop was started, waits for it
// to publish what is queued.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()
	if c.started.Load() {
		<-c.done
	}
}

func (c *Collector) publish(ctx context.Context, e kafka.Event) {
	if err := c.producer.Publish(ctx, e); err != nil {
		c.logger.Error("publish analytics event", "key", e.Key, "error", err)
	}
}

// EventKey partitions analytics events by kind so that each kind stays
// ordered within its partition. Index events are keyed by document.
func EventKey(event any) string {
	switch e := event.(type) {
	case SearchEvent:
		return string(EventSearch)
	case ExpandEvent:
		return string(EventExpand)
	case SuggestEvent:
		return string(EventSuggest)
	case IndexEvent:
		return e.DocumentID
	default:
		return "analytics"
	}
}
