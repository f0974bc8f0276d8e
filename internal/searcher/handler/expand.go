package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/samuelharden/xapian/internal/analytics"
	"github.com/samuelharden/xapian/internal/indexer/tokenizer"
	"github.com/samuelharden/xapian/internal/searcher/cache"
	"github.com/samuelharden/xapian/internal/searcher/expand"
	apperrors "github.com/samuelharden/xapian/pkg/errors"
	"github.com/samuelharden/xapian/pkg/logger"
	"github.com/samuelharden/xapian/pkg/middleware"
)

type expandResponse struct {
	*expand.ESet
	Query    string `json:"query,omitempty"`
	CacheHit bool   `json:"cache_hit"`
}

// Expand suggests bigrams for a relevance set. The set is either given as
// docs=a,b or looked up from the feedback judgments stored for q. Bigrams
// already in q are never suggested.
func (h *Handler) Expand(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, finish := h.startTrace(r.Context(), "http.expand")
	defer finish()
	log := logger.FromContext(ctx)
	params := r.URL.Query()

	schemeName := params.Get("scheme")
	if schemeName == "" {
		schemeName = h.deps.Expand.Scheme
	}
	scheme, err := expand.ParseScheme(schemeName)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	limit, err := parseLimit(r, "limit", h.deps.Expand.DefaultLimit, h.deps.Expand.MaxLimit)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	minDocs, err := parseLimit(r, "min_docs", max(h.deps.Expand.MinRelevantDocs, 1), h.deps.Expand.MaxFeedbackDocs+1)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	query := strings.TrimSpace(params.Get("q"))
	docs := splitDocs(params.Get("docs"))
	if len(docs) == 0 {
		docs, err = h.feedbackDocs(r, query)
		if err != nil {
			h.observeExpand(scheme, "rejected", start, 0)
			h.writeAppError(w, err)
			return
		}
	}
	var exclude []string
	if query != "" {
		exclude = tokenizer.Bigrams(tokenizer.Tokenize(query))
	}

	request := cache.ExpandRequest(docs, string(scheme), limit, minDocs, exclude)
	eset, cacheHit, err := cache.GetOrCompute(ctx, h.deps.Cache, cache.NamespaceExpand, request,
		func() (*expand.ESet, error) {
			return h.deps.Expander.Expand(ctx, docs, expand.Options{
				Scheme:          scheme,
				Limit:           limit,
				MinRelevantDocs: minDocs,
				Exclude:         exclude,
			})
		})
	if err != nil {
		status := "error"
		if errors.Is(err, apperrors.ErrNoRelevantDocs) {
			status = "no_relevant_docs"
		} else {
			log.Error("expansion failed", "docs", len(docs), "error", err)
		}
		h.observeExpand(scheme, status, start, 0)
		h.writeAppError(w, err)
		return
	}

	h.observeExpand(scheme, "ok", start, len(eset.Terms))
	bigrams := make([]string, len(eset.Terms))
	for i, t := range eset.Terms {
		bigrams[i] = t.Bigram
	}
	latencyMs := time.Since(start).Milliseconds()
	h.track(analytics.ExpandEvent{
		Type:         analytics.EventExpand,
		Query:        query,
		Scheme:       string(scheme),
		RelevantDocs: eset.RelevantDocs,
		Bigrams:      bigrams,
		LatencyMs:    latencyMs,
		CacheHit:     cacheHit,
		Timestamp:    time.Now().UTC(),
		RequestID:    middleware.GetRequestID(ctx),
	})
	log.Info("expansion completed",
		"scheme", scheme,
		"relevant_docs", eset.RelevantDocs,
		"returned", len(eset.Terms),
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)
	h.writeJSON(w, http.StatusOK, expandResponse{ESet: eset, Query: query, CacheHit: cacheHit})
}

func (h *Handler) feedbackDocs(r *http.Request, query string) ([]string, error) {
	if query == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "either 'docs' or 'q' is required")
	}
	if h.deps.Feedback == nil {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "relevance feedback is disabled; pass 'docs'")
	}
	docs, err := h.deps.Feedback.RelevantDocs(r.Context(), query, h.deps.Expand.MaxFeedbackDocs)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, apperrors.Newf(apperrors.ErrNoRelevantDocs, http.StatusNotFound, "no relevance judgments for %q", query)
	}
	return docs, nil
}

func (h *Handler) observeExpand(scheme expand.Scheme, status string, start time.Time, returned int) {
	if h.deps.Metrics == nil {
		return
	}
	h.deps.Metrics.ExpansionsTotal.WithLabelValues(string(scheme), status).Inc()
	if status == "ok" {
		h.deps.Metrics.ExpansionDuration.WithLabelValues(string(scheme)).Observe(time.Since(start).Seconds())
		h.deps.Metrics.ExpansionTerms.Observe(float64(returned))
	}
}

type feedbackRequest struct {
	Query string `json:"query"`
	DocID string `json:"doc_id"`
}

// Feedback records that a document was relevant for a query.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	if h.deps.Feedback == nil {
		h.writeError(w, http.StatusServiceUnavailable, "relevance feedback is disabled")
		return
	}
	var req feedbackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "body must be JSON {\"query\", \"doc_id\"}")
		return
	}
	if err := h.deps.Feedback.Mark(r.Context(), req.Query, req.DocID); err != nil {
		logger.FromContext(r.Context()).Error("storing feedback failed", "doc_id", req.DocID, "error", err)
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

func splitDocs(raw string) []string {
	var docs []string
	for _, d := range strings.Split(raw, ",") {
		if d = strings.TrimSpace(d); d != "" {
			docs = append(docs, d)
		}
	}
	return docs
}
