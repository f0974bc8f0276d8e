package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelharden/xapian/internal/ingestion"
	apperrors "github.com/samuelharden/xapian/pkg/errors"
)

type fakeIngester struct {
	got  *ingestion.IngestRequest
	resp *ingestion.IngestResponse
	err  error
}

func (f *fakeIngester) Ingest(_ context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	f.got = req
	return f.resp, f.err
}

func post(ing Ingester, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	New(ing).Routes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body)))
	return rec
}

func TestIngestAccepted(t *testing.T) {
	ing := &fakeIngester{resp: &ingestion.IngestResponse{DocumentID: "doc-1", Status: ingestion.StatusPending, ShardID: 2}}
	rec := post(ing, `{"document_id":" doc-1 ","title":"New York","body":"new york city"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "doc-1", ing.got.DocumentID)

	var resp ingestion.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.ShardID)
}

func TestIngestDuplicate(t *testing.T) {
	ing := &fakeIngester{resp: &ingestion.IngestResponse{DocumentID: "doc-1", Duplicate: true}}
	rec := post(ing, `{"title":"t","body":"york","idempotency_key":"k"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestRejects(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		want   string
	}{
		{"bad json", `{`, nil, http.StatusBadRequest, "invalid JSON"},
		{"validation", `{"title":""}`, nil, http.StatusBadRequest, "validation failed"},
		{"conflict", `{"document_id":"d","title":"t","body":"york"}`,
			apperrors.New(apperrors.ErrConflict, http.StatusConflict, `document "d" already exists`),
			http.StatusConflict, "already exists"},
		{"internal", `{"title":"t","body":"york"}`, fmt.Errorf("db: %w", apperrors.ErrInternal),
			http.StatusInternalServerError, "ingestion failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(&fakeIngester{err: tt.err}, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}
