package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/samuelharden/xapian/pkg/kafka"
)

type AggregatedStats struct {
	TotalSearches      int64        `json:"total_searches"`
	TotalDocIndexed    int64        `json:"total_docs_indexed"`
	TotalBigrams       int64        `json:"total_bigrams_indexed"`
	TotalExpansions    int64        `json:"total_expansions"`
	EmptyExpansions    int64        `json:"empty_expansions"`
	TotalSuggestions   int64        `json:"total_suggestions"`
	CacheHits          int64        `json:"cache_hits"`
	CacheMisses        int64        `json:"cache_misses"`
	ZeroResultCount    int64        `json:"zero_result_count"`
	AvgLatencyMs       float64      `json:"avg_latency_ms"`
	P50LatencyMs       int64        `json:"p50_latency_ms"`
	P95LatencyMs       int64        `json:"p95_latency_ms"`
	P99LatencyMs       int64        `json:"p99_latency_ms"`
	ExpandP95LatencyMs int64        `json:"expand_p95_latency_ms"`
	TopQueries         []QueryCount `json:"top_queries"`
	ZeroResultQueries  []QueryCount `json:"zero_result_queries"`
	TopExpandedBigrams []QueryCount `json:"top_expanded_bigrams"`
	TopSuggestTerms    []QueryCount `json:"top_suggest_terms"`
	QueriesPerMinute   float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

const (
	maxLatencySamples = 10000
	topLimit          = 10
)

// Aggregator folds analytics events into running totals. Counts are kept
// for the life of the process; latency percentiles cover the most recent
// maxLatencySamples events of each kind.
type Aggregator struct {
	mu     sync.Mutex
	totals AggregatedStats

	searchLatency *window
	expandLatency *window
	queries       tally
	zeroQueries   tally
	bigrams       tally
	suggestTerms  tally
	startTime     time.Time

	consumer *kafka.Consumer
	logger   *slog.Logger
}

func NewAggregator(consumer *kafka.Consumer) *Aggregator {
	return &Aggregator{
		searchLatency: newWindow(maxLatencySamples),
		expandLatency: newWindow(maxLatencySamples),
		queries:       tally{},
		zeroQueries:   tally{},
		bigrams:       tally{},
		suggestTerms:  tally{},
		startTime:     time.Now(),
		consumer:      consumer,
		logger:        slog.Default().With("component", "analytics-aggregator"),
	}
}

// SetConsumer attaches the Kafka consumer whose handler feeds this
// aggregator. The two reference each other, so one has to be set late.
func (a *Aggregator) SetConsumer(consumer *kafka.Consumer) {
	a.consumer = consumer
}

func (a *Aggregator) Start(ctx context.Context) error {
	a.logger.Info("consuming analytics events")
	return a.consumer.Start(ctx)
}

// HandleEvent decodes an analytics message by its type field and records
// it. Undecodable or unknown messages are logged and skipped so that one bad
// event cannot stall the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		var head struct {
			Type EventType `json:"type"`
		}
		if err := json.Unmarshal(value, &head); err != nil {
			agg.logger.Error("undecodable analytics event", "error", err)
			return nil
		}
		var err error
		switch head.Type {
		case EventSearch, EventCacheHit, EventCacheMiss, EventZeroResult:
			err = record(value, agg.recordSearch)
		case EventIndexDoc:
			err = record(value, agg.recordIndex)
		case EventExpand:
			err = record(value, agg.recordExpand)
		case EventSuggest:
			err = record(value, agg.recordSuggest)
		default:
			agg.logger.Warn("unknown analytics event type", "type", head.Type)
		}
		if err != nil {
			agg.logger.Error("undecodable analytics event", "type", head.Type, "error", err)
		}
		return nil
	}
}

func record[T any](value []byte, fn func(T)) error {
	e, err := kafka.DecodeJSON[T](value)
	if err != nil {
		return err
	}
	fn(e)
	return nil
}

func (a *Aggregator) cache(hit bool) {
	if hit {
		a.totals.CacheHits++
	} else {
		a.totals.CacheMisses++
	}
}

func (a *Aggregator) recordSearch(e SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totals.TotalSearches++
	a.cache(e.CacheHit)
	a.searchLatency.add(e.LatencyMs)
	a.queries[e.Query]++
	if e.TotalHits == 0 {
		a.totals.ZeroResultCount++
		a.zeroQueries[e.Query]++
	}
}

func (a *Aggregator) recordIndex(e IndexEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totals.TotalDocIndexed++
	a.totals.TotalBigrams += int64(e.BigramCount)
}

func (a *Aggregator) recordExpand(e ExpandEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totals.TotalExpansions++
	a.cache(e.CacheHit)
	if len(e.Bigrams) == 0 {
		a.totals.EmptyExpansions++
	}
	a.expandLatency.add(e.LatencyMs)
	for _, b := range e.Bigrams {
		a.bigrams[b]++
	}
}

func (a *Aggregator) recordSuggest(e SuggestEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totals.TotalSuggestions++
	a.suggestTerms[e.Term]++
}

// Stats returns a consistent snapshot of everything recorded so far.
func (a *Aggregator) Stats() AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := a.totals
	if search := a.searchLatency.sorted(); len(search) > 0 {
		stats.AvgLatencyMs = mean(search)
		stats.P50LatencyMs = percentile(search, 50)
		stats.P95LatencyMs = percentile(search, 95)
		stats.P99LatencyMs = percentile(search, 99)
	}
	stats.ExpandP95LatencyMs = percentile(a.expandLatency.sorted(), 95)
	stats.TopQueries = a.queries.top(topLimit)
	stats.ZeroResultQueries = a.zeroQueries.top(topLimit)
	stats.TopExpandedBigrams = a.bigrams.top(topLimit)
	stats.TopSuggestTerms = a.suggestTerms.top(topLimit)
	if minutes := time.Since(a.startTime).Minutes(); minutes > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches+stats.TotalExpansions) / minutes
	}
	return stats
}
