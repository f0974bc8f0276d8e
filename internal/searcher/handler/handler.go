// Package handler exposes the search service over HTTP: boolean term
// search, bigram query expansion, relevance feedback, phrase checks and
// next-word suggestion.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/samuelharden/xapian/internal/analytics"
	"github.com/samuelharden/xapian/internal/searcher/cache"
	"github.com/samuelharden/xapian/internal/searcher/executor"
	"github.com/samuelharden/xapian/internal/searcher/expand"
	"github.com/samuelharden/xapian/internal/searcher/parser"
	"github.com/samuelharden/xapian/internal/searcher/phrase"
	"github.com/samuelharden/xapian/internal/searcher/ranker"
	"github.com/samuelharden/xapian/pkg/config"
	apperrors "github.com/samuelharden/xapian/pkg/errors"
	"github.com/samuelharden/xapian/pkg/logger"
	"github.com/samuelharden/xapian/pkg/metrics"
	"github.com/samuelharden/xapian/pkg/middleware"
	"github.com/samuelharden/xapian/pkg/tracing"
)

type SearchExecutor interface {
	Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error)
}

type Expander interface {
	Expand(ctx context.Context, rset []string, opts expand.Options) (*expand.ESet, error)
}

type PhraseChecker interface {
	Check(ctx context.Context, query string) (*phrase.CheckResult, error)
	Suggest(ctx context.Context, term string, limit int) ([]phrase.Suggestion, error)
}

type FeedbackStore interface {
	Mark(ctx context.Context, query, docID string) error
	RelevantDocs(ctx context.Context, query string, limit int) ([]string, error)
}

// EventTracker receives analytics events; *analytics.Collector is one.
type EventTracker interface {
	Track(event interface{})
}

// Deps are the collaborators of a Handler. Cache, Feedback, Events and
// Metrics may be nil; the features that need them degrade accordingly.
type Deps struct {
	Executor SearchExecutor
	Expander Expander
	Phrases  PhraseChecker
	Feedback FeedbackStore
	Cache    *cache.QueryCache
	Events   EventTracker
	Metrics  *metrics.Metrics
	Search   config.SearchConfig
	Expand   config.ExpandConfig
	Tracing  config.TracingConfig
}

type Handler struct {
	deps   Deps
	tracer tracing.Sampler
	logger *slog.Logger
}

func New(deps Deps) *Handler {
	if deps.Search.DefaultLimit <= 0 {
		deps.Search.DefaultLimit = 10
	}
	if deps.Search.MaxResults < deps.Search.DefaultLimit {
		deps.Search.MaxResults = deps.Search.DefaultLimit
	}
	if deps.Expand.DefaultLimit <= 0 {
		deps.Expand.DefaultLimit = 10
	}
	if deps.Expand.MaxLimit < deps.Expand.DefaultLimit {
		deps.Expand.MaxLimit = deps.Expand.DefaultLimit
	}
	if deps.Expand.MaxFeedbackDocs <= 0 {
		deps.Expand.MaxFeedbackDocs = 20
	}
	return &Handler{
		deps:   deps,
		tracer: tracing.NewSampler(deps.Tracing.Enabled, deps.Tracing.SampleRate),
		logger: logger.WithComponent("search-handler"),
	}
}

// Routes mounts the API on r.
//
//	GET  /api/v1/search?q=&limit=
//	GET  /api/v1/expand?docs=a,b|q=&limit=&scheme=&min_docs=
//	POST /api/v1/feedback          {"query": "...", "doc_id": "..."}
//	GET  /api/v1/phrase?q=
//	GET  /api/v1/suggest?term=&limit=
//	GET  /api/v1/cache/stats
//	POST /api/v1/cache/invalidate
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", h.Search)
		r.Get("/expand", h.Expand)
		r.Post("/feedback", h.Feedback)
		r.Get("/phrase", h.Phrase)
		r.Get("/suggest", h.Suggest)
		r.Get("/cache/stats", h.CacheStats)
		r.Post("/cache/invalidate", h.CacheInvalidate)
	})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, finish := h.startTrace(r.Context(), "http.search")
	defer finish()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit, err := parseLimit(r, "limit", h.deps.Search.DefaultLimit, h.deps.Search.MaxResults)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	plan := parser.Parse(query)
	if len(plan.Terms) == 0 {
		h.writeJSON(w, http.StatusOK, &executor.SearchResult{
			Query:   query,
			Results: []ranker.ScoredDoc{},
		})
		return
	}

	result, cacheHit, err := cache.GetOrCompute(ctx, h.deps.Cache, cache.NamespaceSearch, cache.SearchRequest(query, limit),
		func() (*executor.SearchResult, error) {
			return h.deps.Executor.Execute(ctx, plan, limit)
		})
	if err != nil {
		log.Error("search execution failed", "query", query, "error", err)
		h.observeSearch("error", cacheHit, start, 0)
		h.writeAppError(w, err)
		return
	}

	latencyMs := time.Since(start).Milliseconds()
	log.Info("search completed",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)
	resultType := "miss"
	eventType := analytics.EventCacheMiss
	switch {
	case result.TotalHits == 0:
		resultType = "zero_result"
		eventType = analytics.EventZeroResult
	case cacheHit:
		resultType = "hit"
		eventType = analytics.EventCacheHit
	}
	h.observeSearch(resultType, cacheHit, start, len(result.Results))
	if h.deps.Metrics != nil && !cacheHit && result.PhraseMisses > 0 {
		h.deps.Metrics.SearchPhraseMisses.Add(float64(result.PhraseMisses))
	}
	h.track(analytics.SearchEvent{
		Type:      eventType,
		Query:     query,
		Terms:     plan.Terms,
		TotalHits: result.TotalHits,
		Returned:  len(result.Results),
		LatencyMs: latencyMs,
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(ctx),
	})

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) observeSearch(resultType string, cacheHit bool, start time.Time, returned int) {
	if h.deps.Metrics == nil {
		return
	}
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
		h.deps.Metrics.CacheHitsTotal.Inc()
	} else {
		h.deps.Metrics.CacheMissesTotal.Inc()
	}
	h.deps.Metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.deps.Metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	h.deps.Metrics.SearchResultsCount.WithLabelValues().Observe(float64(returned))
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.deps.Cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.deps.Cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// startTrace opens a sampled root span named after the operation. The
// returned finish logs the span tree.
func (h *Handler) startTrace(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := h.tracer.Start(ctx, name, middleware.GetRequestID(ctx))
	return ctx, func() {
		span.End()
		span.Emit(ctx, h.logger)
	}
}

func (h *Handler) track(event any) {
	if h.deps.Events != nil {
		h.deps.Events.Track(event)
	}
}

// parseLimit reads a positive integer parameter, defaulting to def and
// capping at max.
func parseLimit(r *http.Request, param string, def, max int) (int, error) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%s must be a positive integer", param)
	}
	if n > max {
		n = max
	}
	return n, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError maps err to its HTTP status and code. Server-side
// failures are reported without detail.
func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		msg = http.StatusText(status)
	}
	h.writeJSON(w, status, map[string]string{"error": msg, "code": apperrors.Code(err)})
}
