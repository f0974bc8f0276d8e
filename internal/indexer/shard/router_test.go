package shard

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelharden/xapian/internal/bigram"
	"github.com/samuelharden/xapian/pkg/config"
	apperrors "github.com/samuelharden/xapian/pkg/errors"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r, err := NewRouter(config.IndexerConfig{
		DataDir:        t.TempDir(),
		SegmentMaxSize: 1 << 30,
		Compression:    "lz4",
	}, 2)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	index := func(shardID int, docID, title, body string) {
		engine, err := r.Route(shardID)
		require.NoError(t, err)
		require.NoError(t, engine.IndexDocument(docID, title, body))
	}
	index(0, "doc-a", "New York", "city")
	index(1, "doc-b", "New York", "post")
	index(1, "doc-c", "York City", "")
	return r
}

func TestRouterLocate(t *testing.T) {
	r := newTestRouter(t)
	id, engine, ok := r.Locate("doc-b")
	require.True(t, ok)
	assert.Equal(t, 1, id)
	assert.NotNil(t, engine)

	_, _, ok = r.Locate("doc-z")
	assert.False(t, ok)

	_, err := r.Route(7)
	assert.Error(t, err)
}

func TestBigramSourceDocumentListUsesGlobalStats(t *testing.T) {
	r := newTestRouter(t)
	src := r.BigramSource()

	c, err := src.DocumentList(context.Background(), "doc-a")
	require.NoError(t, err)

	got := map[string]bigram.Contribution{}
	bigram.Drain(c, func(c bigram.StatsCursor) bool {
		c.AccumulateStats(recorder(got))
		return true
	})
	require.Contains(t, got, "new york")
	assert.Equal(t, uint64(2), got["new york"].TermFreq, "doc-b on the other shard counts too")
	assert.Equal(t, uint64(3), got["new york"].DBSize)
	assert.Equal(t, uint64(2), got["york city"].TermFreq)
}

func TestBigramSourceErrors(t *testing.T) {
	r := newTestRouter(t)
	src := r.BigramSource()

	_, err := src.DocumentList(context.Background(), "doc-z")
	assert.True(t, errors.Is(err, apperrors.ErrDocumentNotFound))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.DocumentList(ctx, "doc-a")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = src.AllBigrams(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBigramSourceAllBigramsAcrossShards(t *testing.T) {
	r := newTestRouter(t)
	require.NoError(t, r.FlushAll())
	src := r.BigramSource()

	all, err := src.AllBigrams(context.Background())
	require.NoError(t, err)
	freqs := map[string]uint64{}
	bigram.Drain(all, func(c bigram.CollectionFreqCursor) bool {
		freqs[c.Name()] = c.TermFreq()
		return true
	})
	assert.Equal(t, map[string]uint64{"new york": 2, "york city": 2, "york post": 1}, freqs)

	tf, cf := src.BigramFreq("york city")
	assert.Equal(t, uint64(2), tf)
	assert.Equal(t, uint64(2), cf)
	assert.Equal(t, uint64(3), src.DocCount())
}

type recorder map[string]bigram.Contribution

func (r recorder) Accumulate(c bigram.Contribution) { r[c.Name] = c }

func TestRouterShardForIsStable(t *testing.T) {
	r := newTestRouter(t)
	for _, id := range []string{"doc-a", "doc-b", "a much longer document identifier"} {
		s := r.ShardFor(id)
		assert.GreaterOrEqual(t, s, 0)
		assert.Less(t, s, r.NumShards())
		assert.Equal(t, s, r.ShardFor(id))
	}
}

func TestRouterRouteOutOfRange(t *testing.T) {
	r := newTestRouter(t)
	for _, id := range []int{-1, 2, 7} {
		_, err := r.Route(id)
		assert.ErrorIs(t, err, apperrors.ErrShardUnavailable, "shard %d", id)
	}
}

func TestNewRouterAtLeastOneShard(t *testing.T) {
	r, err := NewRouter(config.IndexerConfig{DataDir: t.TempDir(), SegmentMaxSize: 1 << 20}, 0)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	assert.Equal(t, 1, r.NumShards())
	assert.Equal(t, 0, r.ShardFor("anything"))
}

func TestAssignSpreadsDocuments(t *testing.T) {
	counts := make([]int, 4)
	for i := 0; i < 400; i++ {
		counts[Assign(fmt.Sprintf("doc-%d", i), 4)]++
	}
	for shard, n := range counts {
		assert.Greater(t, n, 50, "shard %d", shard)
	}
	assert.Equal(t, 0, Assign("doc-1", 1))
}
