package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/samuelharden/xapian/internal/analytics"
	"github.com/samuelharden/xapian/pkg/middleware"
)

// Phrase reports, per bigram of q, whether it occurs anywhere in the index.
func (h *Handler) Phrase(w http.ResponseWriter, r *http.Request) {
	ctx, finish := h.startTrace(r.Context(), "http.phrase")
	defer finish()
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	result, err := h.deps.Phrases.Check(ctx, query)
	if err != nil {
		h.countPhrase("error")
		h.writeAppError(w, err)
		return
	}
	if result.Possible {
		h.countPhrase("possible")
	} else {
		h.countPhrase("impossible")
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Suggest lists words seen right after term, most frequent first.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, finish := h.startTrace(r.Context(), "http.suggest")
	defer finish()
	term := strings.TrimSpace(r.URL.Query().Get("term"))
	if term == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'term' is required")
		return
	}
	limit, err := parseLimit(r, "limit", h.deps.Expand.DefaultLimit, h.deps.Expand.MaxLimit)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	suggestions, err := h.deps.Phrases.Suggest(ctx, term, limit)
	if err != nil {
		h.countSuggest("error")
		h.writeAppError(w, err)
		return
	}
	if len(suggestions) == 0 {
		h.countSuggest("empty")
	} else {
		h.countSuggest("hit")
	}
	h.track(analytics.SuggestEvent{
		Type:      analytics.EventSuggest,
		Term:      term,
		Returned:  len(suggestions),
		LatencyMs: time.Since(start).Milliseconds(),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(ctx),
	})
	h.writeJSON(w, http.StatusOK, map[string]any{
		"term":        term,
		"suggestions": suggestions,
	})
}

func (h *Handler) countPhrase(result string) {
	if h.deps.Metrics != nil {
		h.deps.Metrics.PhraseChecksTotal.WithLabelValues(result).Inc()
	}
}

func (h *Handler) countSuggest(result string) {
	if h.deps.Metrics != nil {
		h.deps.Metrics.SuggestionsTotal.WithLabelValues(result).Inc()
	}
}
