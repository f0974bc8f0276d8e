package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SnapshotLoader reads the last persisted stats snapshot.
type SnapshotLoader interface {
	LatestSnapshot(ctx context.Context) (*AggregatedStats, error)
}

type Handler struct {
	aggregator *Aggregator
	snapshots  SnapshotLoader
	logger     *slog.Logger
}

// NewHandler serves live stats from aggregator. snapshots may be nil when
// no snapshot store is configured.
func NewHandler(aggregator *Aggregator, snapshots SnapshotLoader) *Handler {
	return &Handler{
		aggregator: aggregator,
		snapshots:  snapshots,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Routes mounts GET /api/v1/analytics and GET /api/v1/analytics/snapshot.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/v1/analytics", h.Stats)
	r.Get("/api/v1/analytics/snapshot", h.Snapshot)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.write(w, http.StatusOK, h.aggregator.Stats())
}

// Snapshot returns the last persisted snapshot, which outlives restarts of
// the in-memory aggregator.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.write(w, http.StatusServiceUnavailable, map[string]string{"error": "snapshot store disabled"})
		return
	}
	stats, err := h.snapshots.LatestSnapshot(r.Context())
	if err != nil {
		h.logger.Error("loading snapshot failed", "error", err)
		h.write(w, http.StatusInternalServerError, map[string]string{"error": "loading snapshot failed"})
		return
	}
	if stats == nil {
		h.write(w, http.StatusNotFound, map[string]string{"error": "no snapshot yet"})
		return
	}
	h.write(w, http.StatusOK, stats)
}

func (h *Handler) write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
