// Package metrics defines the Prometheus collectors shared by the services
// and the handler that exposes them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samuelharden/xapian/internal/bigram"
)

var (
	latencyBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	countBuckets   = []float64{0, 1, 5, 10, 25, 50, 100}
)

type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RateLimitedTotal     prometheus.Counter

	SearchQueriesTotal  *prometheus.CounterVec
	SearchLatency       *prometheus.HistogramVec
	SearchResultsCount  *prometheus.HistogramVec
	SearchPhraseMisses  prometheus.Counter
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec

	DocsIndexedTotal  prometheus.Counter
	IndexFlushesTotal *prometheus.CounterVec
	ShardDocCount     *prometheus.GaugeVec
	ActiveShards      prometheus.Gauge
	ConsumerLag       *prometheus.GaugeVec

	ExpansionsTotal   *prometheus.CounterVec
	ExpansionDuration *prometheus.HistogramVec
	ExpansionTerms    prometheus.Histogram
	SuggestionsTotal  *prometheus.CounterVec
	PhraseChecksTotal *prometheus.CounterVec
	CursorPrunesTotal prometheus.CounterFunc
}

// New registers the collectors with the default registerer. It panics if
// called twice in one process.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors with reg; tests pass a fresh
// prometheus.Registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: latencyBuckets,
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests being served.",
		}),
		RateLimitedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),

		SearchQueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "search_queries_total",
			Help: "Searches by outcome: hit, miss, zero_result or error.",
		}, []string{"result_type"}),
		SearchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "search_latency_seconds",
			Help:    "Search latency by cache status.",
			Buckets: latencyBuckets,
		}, []string{"cache_status"}),
		SearchResultsCount: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "search_results_count",
			Help:    "Results returned per search.",
			Buckets: countBuckets,
		}, []string{}),
		SearchPhraseMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "search_phrase_misses_total",
			Help: "Term matches dropped because a quoted phrase's bigrams were missing.",
		}),
		CacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Response cache hits.",
		}),
		CacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Response cache misses.",
		}),
		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Breaker state: 0 closed, 1 open, 2 half-open.",
		}, []string{"name"}),

		DocsIndexedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "docs_indexed_total",
			Help: "Documents indexed.",
		}),
		IndexFlushesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "index_flushes_total",
			Help: "Memory index flushes by status.",
		}, []string{"status"}),
		ShardDocCount: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shard_document_count",
			Help: "Documents held per shard.",
		}, []string{"shard_id"}),
		ActiveShards: f.NewGauge(prometheus.GaugeOpts{
			Name: "active_shards",
			Help: "Index shards open in this process.",
		}),
		ConsumerLag: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Messages behind the partition head, by topic.",
		}, []string{"topic"}),

		ExpansionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bigram_expansions_total",
			Help: "Query expansions by weighting scheme and status.",
		}, []string{"scheme", "status"}),
		ExpansionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bigram_expansion_duration_seconds",
			Help:    "Query expansion latency by weighting scheme.",
			Buckets: latencyBuckets,
		}, []string{"scheme"}),
		ExpansionTerms: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bigram_expansion_terms",
			Help:    "Bigrams returned per expansion.",
			Buckets: countBuckets,
		}),
		SuggestionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bigram_suggestions_total",
			Help: "Next-word suggestions by outcome: hit, empty or error.",
		}, []string{"result_type"}),
		PhraseChecksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bigram_phrase_checks_total",
			Help: "Phrase checks by outcome: possible, impossible or error.",
		}, []string{"result_type"}),
		CursorPrunesTotal: f.NewCounterFunc(prometheus.CounterOpts{
			Name: "bigram_cursor_prunes_total",
			Help: "Times a merged bigram cursor replaced itself with a child.",
		}, func() float64 { return float64(bigram.Prunes()) }),
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
