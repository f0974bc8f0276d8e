package indexer

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelharden/xapian/internal/bigram"
	"github.com/samuelharden/xapian/internal/indexer/segment"
	"github.com/samuelharden/xapian/pkg/config"
)

func newTestEngine(t testing.TB, dir string) *Engine {
	t.Helper()
	e, err := NewEngine(config.IndexerConfig{
		DataDir:        dir,
		SegmentMaxSize: 1 << 30,
		Compression:    "zstd",
	})
	require.NoError(t, err)
	return e
}

type freqRow struct {
	Name   string
	TF, CF uint64
}

func collectAll(c bigram.CollectionFreqCursor) []freqRow {
	var rows []freqRow
	bigram.Drain(c, func(c bigram.CollectionFreqCursor) bool {
		rows = append(rows, freqRow{c.Name(), c.TermFreq(), c.CollectionFreq()})
		return true
	})
	return rows
}

func seed(t *testing.T, e *Engine) {
	t.Helper()
	require.NoError(t, e.IndexDocument("doc-1", "New York", "new york city"))
	require.NoError(t, e.IndexDocument("doc-2", "York City", ""))
	require.NoError(t, e.Flush())
	require.NoError(t, e.IndexDocument("doc-3", "New York", ""))
}

func TestEngineAllBigramsUnionsMemoryAndSegments(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	defer e.Close()
	seed(t, e)

	assert.Equal(t, []freqRow{
		{"new york", 2, 3},
		{"york city", 2, 2},
		{"york new", 1, 1},
	}, collectAll(e.AllBigrams()))

	tf, cf := e.BigramFreq("new york")
	assert.Equal(t, uint64(2), tf)
	assert.Equal(t, uint64(3), cf)
}

func TestEngineBigramListFromSegment(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	defer e.Close()
	seed(t, e)

	c, ok := e.BigramList("doc-1", nil)
	require.True(t, ok)

	var got []bigram.Contribution
	bigram.Drain(c, func(c bigram.StatsCursor) bool {
		c.AccumulateStats(accumulatorFunc(func(x bigram.Contribution) { got = append(got, x) }))
		return true
	})
	require.Len(t, got, 3)
	assert.Equal(t, bigram.Contribution{
		Name: "new york", DocID: "doc-1", WDF: 2, DocLength: 5, TermFreq: 2, DBSize: 3,
	}, got[0])
	assert.Equal(t, "york new", got[2].Name)

	_, ok = e.BigramList("doc-404", nil)
	assert.False(t, ok)
}

type fixedStats struct{ tf, docs uint64 }

func (s fixedStats) TermFreq(string) uint64 { return s.tf }
func (s fixedStats) DocCount() uint64       { return s.docs }

func TestEngineBigramListUsesCollectionStats(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	defer e.Close()
	seed(t, e)

	c, ok := e.BigramList("doc-3", fixedStats{tf: 42, docs: 1000})
	require.True(t, ok)
	c = bigram.Advance(c)
	assert.Equal(t, "new york", c.Name())
	assert.Equal(t, uint64(42), c.TermFreq())

	var got bigram.Contribution
	c.AccumulateStats(accumulatorFunc(func(x bigram.Contribution) { got = x }))
	assert.Equal(t, uint64(1000), got.DBSize)
}

func TestEngineReopenRestoresSegmentsAndLengths(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(t, dir)
	seed(t, e)
	require.NoError(t, e.Close())

	reopened := newTestEngine(t, dir)
	defer reopened.Close()
	assert.Equal(t, int64(3), reopened.GetTotalDocs())
	assert.Equal(t, 5, reopened.GetDocLength("doc-1"))
	assert.True(t, reopened.HasDocument("doc-3"))
	assert.Len(t, collectAll(reopened.AllBigrams()), 3)
}

func TestEngineReloadSegmentsPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	reader := newTestEngine(t, dir)
	defer reader.Close()
	writer := newTestEngine(t, dir)
	defer writer.Close()

	require.NoError(t, writer.IndexDocument("doc-1", "quick brown", "fox"))
	require.NoError(t, writer.Flush())

	assert.False(t, reader.HasDocument("doc-1"))
	assert.Equal(t, 1, reader.ReloadSegments())
	assert.Equal(t, 0, reader.ReloadSegments())
	assert.True(t, reader.HasDocument("doc-1"))
}

func TestEngineReindexKeepsTotals(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	defer e.Close()
	require.NoError(t, e.IndexDocument("doc-1", "alpha beta", "gamma"))
	require.NoError(t, e.IndexDocument("doc-1", "alpha", ""))
	assert.Equal(t, int64(1), e.GetTotalDocs())
	assert.Equal(t, 1.0, e.GetAvgDocLength())
}

func TestNewEngineRejectsUnknownCompression(t *testing.T) {
	_, err := NewEngine(config.IndexerConfig{DataDir: t.TempDir(), Compression: "brotli"})
	assert.Error(t, err)
}

type accumulatorFunc func(bigram.Contribution)

func (f accumulatorFunc) Accumulate(c bigram.Contribution) { f(c) }

func BenchmarkEngineIndex(b *testing.B) {
	for _, preload := range []int{100, 1000} {
		b.Run(fmt.Sprintf("preload_%d", preload), func(b *testing.B) {
			engine := newTestEngine(b, b.TempDir())
			defer engine.Close()
			for i := 0; i < preload; i++ {
				engine.IndexDocument(fmt.Sprintf("preload-%d", i), "preload doc", "preloading documents for benchmark warmup phase")
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := engine.IndexDocument(fmt.Sprintf("bench-%d", i), "benchmark title", "benchmark document body for measuring indexing throughput"); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkEngineAllBigrams(b *testing.B) {
	engine := newTestEngine(b, b.TempDir())
	defer engine.Close()
	terms := []string{"distributed", "search", "analytics", "platform", "indexing", "query", "engine", "ranking"}
	for i := 0; i < 2000; i++ {
		engine.IndexDocument(fmt.Sprintf("doc-%d", i),
			fmt.Sprintf("%s %s", terms[i%len(terms)], terms[(i+1)%len(terms)]),
			fmt.Sprintf("%s %s %s", terms[(i+2)%len(terms)], terms[(i+3)%len(terms)], terms[(i+5)%len(terms)]))
		if i%500 == 499 {
			engine.Flush()
		}
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bigram.Drain(engine.AllBigrams(), func(bigram.CollectionFreqCursor) bool { return true })
	}
}

func TestEngineSearchPrefersNewestCopy(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	defer e.Close()
	require.NoError(t, e.IndexDocument("doc-1", "river river river", ""))
	require.NoError(t, e.IndexDocument("doc-2", "river", ""))
	require.NoError(t, e.Flush())
	require.NoError(t, e.IndexDocument("doc-1", "river", "bank"))

	postings, err := e.Search("river")
	require.NoError(t, err)
	require.Len(t, postings, 2)
	assert.Equal(t, "doc-1", postings[0].DocID)
	assert.Equal(t, 1, postings[0].Frequency)
	assert.Equal(t, "doc-2", postings[1].DocID)
	assert.Equal(t, int64(2), e.GetTotalDocs())
}

func TestEngineObserveFlushesSkipsEmpty(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	defer e.Close()
	var outcomes []error
	e.ObserveFlushes(func(err error) { outcomes = append(outcomes, err) })

	require.NoError(t, e.Flush())
	assert.Empty(t, outcomes)

	require.NoError(t, e.IndexDocument("doc-1", "alpha beta", ""))
	require.NoError(t, e.Flush())
	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0])
}

func TestEngineReloadSkipsOwnFlushedSegments(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	require.NoError(t, e.IndexDocument("d1", "rivers", "the river bank"))
	require.NoError(t, e.Flush())

	assert.Zero(t, e.ReloadSegments())
	_, readers := e.sources()
	assert.Len(t, readers, 1)
	assert.EqualValues(t, 1, e.DocCount())
}

func TestEngineFlushConcurrentWithIndexingKeepsEveryDocument(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	defer e.Close()

	const docs = 500
	var (
		wg   sync.WaitGroup
		done atomic.Bool
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for !done.Load() {
			assert.NoError(t, e.Flush())
		}
	}()
	for i := 0; i < docs; i++ {
		require.NoError(t, e.IndexDocument(fmt.Sprintf("doc-%04d", i), "harbour lights", fmt.Sprintf("ship %d docked at the pier", i)))
	}
	done.Store(true)
	wg.Wait()
	require.NoError(t, e.Flush())

	var lost []string
	for i := 0; i < docs; i++ {
		id := fmt.Sprintf("doc-%04d", i)
		if _, ok := e.BigramList(id, nil); !ok || !e.HasDocument(id) {
			lost = append(lost, id)
		}
	}
	assert.Empty(t, lost)
	assert.EqualValues(t, docs, e.DocCount())

	postings, err := e.Search("harbour")
	require.NoError(t, err)
	assert.Len(t, postings, docs)
}

func TestEngineFlushedDocumentsStaySearchableWhileWriting(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	defer e.Close()
	require.NoError(t, e.IndexDocument("d1", "quick brown", "fox"))

	e.readerMu.Lock()
	e.frozen = append(e.frozen, e.memIndex.Detach())
	e.readerMu.Unlock()

	assert.True(t, e.HasDocument("d1"))
	tf, _ := e.BigramFreq("quick brown")
	assert.EqualValues(t, 1, tf)

	require.NoError(t, e.Flush())
	mems, readers := e.sources()
	assert.Len(t, mems, 1)
	assert.Len(t, readers, 1)
	tf, _ = e.BigramFreq("quick brown")
	assert.EqualValues(t, 1, tf)
}

func TestNewEngineSkipsCorruptSegment(t *testing.T) {
	dir := t.TempDir()
	first := newTestEngine(t, dir)
	require.NoError(t, first.IndexDocument("d1", "quick brown", "fox"))
	require.NoError(t, first.Close())

	bad := make([]byte, segment.HeaderSize+segment.FooterSize)
	binary.LittleEndian.PutUint32(bad[0:4], segment.MagicBytes)
	binary.LittleEndian.PutUint32(bad[4:8], segment.FormatVersion)
	binary.LittleEndian.PutUint64(bad[24:32], math.MaxUint64)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seg_0.spdx"), bad, 0o644))

	e := newTestEngine(t, dir)
	defer e.Close()
	assert.True(t, e.HasDocument("d1"))
	_, readers := e.sources()
	assert.Len(t, readers, 1)
}
