// Package handler serves the document intake endpoint.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/samuelharden/xapian/internal/ingestion"
	"github.com/samuelharden/xapian/internal/ingestion/validator"
	apperrors "github.com/samuelharden/xapian/pkg/errors"
	"github.com/samuelharden/xapian/pkg/logger"
)

// maxRequestBytes leaves room for the largest body the validator accepts.
const maxRequestBytes = 2 << 20

type Ingester interface {
	Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error)
}

type Handler struct {
	ingester Ingester
	logger   *slog.Logger
}

func New(ingester Ingester) *Handler {
	return &Handler{
		ingester: ingester,
		logger:   slog.Default().With("component", "ingestion-handler"),
	}
}

// Routes mounts POST /api/v1/documents.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/v1/documents", h.Ingest)
}

// Ingest accepts a document for indexing. New documents get 202; a repeat
// of an idempotency key gets 200 with the original document.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIngestRequest(&req); err != nil {
		var verr *validator.ValidationError
		if errors.As(err, &verr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": verr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.ingester.Ingest(ctx, &req)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed", "error", err, "status_code", status)
		msg := "ingestion failed"
		if status < http.StatusInternalServerError {
			msg = err.Error()
		}
		h.writeError(w, status, msg)
		return
	}
	status := http.StatusAccepted
	if resp.Duplicate {
		status = http.StatusOK
	}
	log.Info("document accepted",
		"doc_id", resp.DocumentID,
		"shard_id", resp.ShardID,
		"duplicate", resp.Duplicate,
	)
	h.writeJSON(w, status, resp)
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
