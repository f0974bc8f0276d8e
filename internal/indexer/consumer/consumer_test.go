package consumer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelharden/xapian/internal/analytics"
	"github.com/samuelharden/xapian/internal/indexer/shard"
	"github.com/samuelharden/xapian/internal/ingestion"
	"github.com/samuelharden/xapian/pkg/config"
)

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.IndexEvent
}

func (r *recordingTracker) Track(_ string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, value.(analytics.IndexEvent))
}

func newRouter(t *testing.T) *shard.Router {
	t.Helper()
	r, err := shard.NewRouter(config.IndexerConfig{
		DataDir:        t.TempDir(),
		SegmentMaxSize: 1 << 30,
		Compression:    "none",
	}, 2)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func encode(t *testing.T, ev ingestion.IngestEvent) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func TestHandleMessageShardedIndexesBigrams(t *testing.T) {
	router := newRouter(t)
	tracker := &recordingTracker{}
	handle := HandleMessageSharded(router, Deps{Events: tracker})

	err := handle(context.Background(), []byte("k"), encode(t, ingestion.IngestEvent{
		DocumentID: "doc-1",
		Title:      "New York",
		Body:       "new york city",
		ShardID:    1,
	}))
	require.NoError(t, err)

	id, engine, ok := router.Locate("doc-1")
	require.True(t, ok)
	assert.Equal(t, 1, id)
	tf, cf := engine.BigramFreq("new york")
	assert.Equal(t, uint64(1), tf)
	assert.Equal(t, uint64(2), cf)

	require.Len(t, tracker.events, 1)
	ev := tracker.events[0]
	assert.Equal(t, analytics.EventIndexDoc, ev.Type)
	assert.Equal(t, 1, ev.ShardID)
	assert.Equal(t, 5, ev.TokenCount)
	// new york, york new, york city
	assert.Equal(t, 3, ev.BigramCount)
}

func TestHandleMessageShardedHashesUnknownShard(t *testing.T) {
	router := newRouter(t)
	handle := HandleMessageSharded(router, Deps{})

	require.NoError(t, handle(context.Background(), nil, encode(t, ingestion.IngestEvent{
		DocumentID: "doc-9",
		Title:      "quick brown fox",
		ShardID:    42,
	})))
	id, _, ok := router.Locate("doc-9")
	require.True(t, ok)
	assert.Equal(t, router.ShardFor("doc-9"), id)
}

func TestHandleMessageShardedDropsBadEvents(t *testing.T) {
	router := newRouter(t)
	handle := HandleMessageSharded(router, Deps{})

	assert.NoError(t, handle(context.Background(), nil, []byte("{not json")))
	assert.NoError(t, handle(context.Background(), nil, encode(t, ingestion.IngestEvent{Title: "orphan"})))
	assert.Equal(t, uint64(0), router.BigramSource().DocCount())
}

type statusLog struct {
	mu      sync.Mutex
	updates map[string]string
}

func (s *statusLog) SetStatus(_ context.Context, docID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updates == nil {
		s.updates = map[string]string{}
	}
	s.updates[docID] = status
	return nil
}

func TestHandleMessageShardedRecordsStatus(t *testing.T) {
	router := newRouter(t)
	status := &statusLog{}
	handle := HandleMessageSharded(router, Deps{Status: status})

	require.NoError(t, handle(context.Background(), nil, encode(t, ingestion.IngestEvent{
		DocumentID: "doc-4",
		Title:      "harbour lights",
		ShardID:    0,
	})))
	assert.Equal(t, map[string]string{"doc-4": ingestion.StatusIndexed}, status.updates)
}
