package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshotFunc func(ctx context.Context) (*AggregatedStats, error)

func (f snapshotFunc) LatestSnapshot(ctx context.Context) (*AggregatedStats, error) { return f(ctx) }

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.Routes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandlerStats(t *testing.T) {
	agg := NewAggregator(nil)
	agg.recordExpand(ExpandEvent{Type: EventExpand, Bigrams: []string{"new york"}})

	rec := serve(NewHandler(agg, nil), "/api/v1/analytics")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalExpansions)
}

func TestHandlerSnapshot(t *testing.T) {
	agg := NewAggregator(nil)
	assert.Equal(t, http.StatusServiceUnavailable, serve(NewHandler(agg, nil), "/api/v1/analytics/snapshot").Code)

	none := snapshotFunc(func(context.Context) (*AggregatedStats, error) { return nil, nil })
	assert.Equal(t, http.StatusNotFound, serve(NewHandler(agg, none), "/api/v1/analytics/snapshot").Code)

	broken := snapshotFunc(func(context.Context) (*AggregatedStats, error) { return nil, errors.New("db down") })
	assert.Equal(t, http.StatusInternalServerError, serve(NewHandler(agg, broken), "/api/v1/analytics/snapshot").Code)

	saved := snapshotFunc(func(context.Context) (*AggregatedStats, error) {
		return &AggregatedStats{TotalSearches: 42}, nil
	})
	rec := serve(NewHandler(agg, saved), "/api/v1/analytics/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_searches":42`)
}
