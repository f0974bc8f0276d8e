// Package indexer owns a single shard's index: the in-memory index that new
// documents land in and the immutable segments it is periodically flushed
// to. Besides term postings it serves the bigram cursors that query
// expansion, phrase checks and suggestions walk.
package indexer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/samuelharden/xapian/internal/bigram"
	"github.com/samuelharden/xapian/internal/indexer/index"
	"github.com/samuelharden/xapian/internal/indexer/segment"
	"github.com/samuelharden/xapian/internal/indexer/tokenizer"
	"github.com/samuelharden/xapian/pkg/config"
)

// CollectionStats supplies the statistics written into document lists.
// An Engine answers for its own shard; the shard router answers for the
// whole collection.
type CollectionStats interface {
	TermFreq(name string) uint64
	DocCount() uint64
}

type Engine struct {
	cfg    config.IndexerConfig
	logger *slog.Logger

	memIndex *index.MemoryIndex
	writer   *segment.Writer
	stats    *docStats

	flushMu sync.Mutex

	readerMu sync.RWMutex
	readers  []*segment.Reader // oldest first
	// frozen holds memory indexes detached for flushing whose segment is
	// not open yet, oldest first. They stay searchable until then.
	frozen []*index.MemoryIndex

	onFlush func(err error)
}

// ObserveFlushes registers fn to be told the outcome of every flush that
// had data to write. It must be called before the flush loop starts.
func (e *Engine) ObserveFlushes(fn func(err error)) {
	e.onFlush = fn
}

func NewEngine(cfg config.IndexerConfig) (*Engine, error) {
	codec, err := segment.ParseCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}
	e := &Engine{
		cfg:      cfg,
		logger:   slog.Default().With("component", "indexer", "data_dir", cfg.DataDir),
		memIndex: index.NewMemoryIndex(),
		writer:   segment.NewWriter(cfg.DataDir, codec),
		stats:    newDocStats(),
	}
	n, err := e.discover()
	if err != nil {
		return nil, fmt.Errorf("recover segments: %w", err)
	}
	e.logger.Info("engine ready", "segments", n, "docs", e.stats.count(), "codec", codec.String())
	return e, nil
}

// IndexDocument adds a document to the memory index, flushing it to a new
// segment once its estimated size reaches SegmentMaxSize bytes.
func (e *Engine) IndexDocument(docID, title, body string) error {
	n := e.memIndex.AddDocument(docID, title, body)
	e.stats.record(docID, n)

	size := e.memIndex.Size()
	e.logger.Debug("document indexed", "doc_id", docID, "tokens", n, "mem_size", size)
	if size < e.cfg.SegmentMaxSize {
		return nil
	}
	e.logger.Info("memory index full", "size", size, "threshold", e.cfg.SegmentMaxSize)
	if err := e.Flush(); err != nil {
		return fmt.Errorf("flush full memory index: %w", err)
	}
	return nil
}

// Flush writes the memory index to a new segment. Documents indexed while
// the segment is being written land in a fresh memory index and wait for
// the next flush. A segment that fails to write is retried by the next
// Flush. Flushes run one at a time.
func (e *Engine) Flush() error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.readerMu.Lock()
	if !e.memIndex.Empty() {
		e.frozen = append(e.frozen, e.memIndex.Detach())
	}
	pending := slices.Clone(e.frozen)
	e.readerMu.Unlock()

	for _, mem := range pending {
		err := e.flush(mem)
		if e.onFlush != nil {
			e.onFlush(err)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) flush(mem *index.MemoryIndex) error {
	name, err := e.writer.Write(mem.Snapshot(), mem.BigramSnapshot())
	if err != nil {
		return fmt.Errorf("write segment: %w", err)
	}
	r, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, name))
	if err != nil {
		return fmt.Errorf("open segment %s: %w", name, err)
	}
	active := e.adopt(r, mem)

	e.logger.Info("segment flushed",
		"segment", name,
		"terms", r.Terms(),
		"bigrams", r.Bigrams(),
		"docs", r.DocCount(),
		"active_segments", active,
	)
	return nil
}

// Search returns the postings for the first token of term, sorted by
// document ID. When a document was re-indexed the newest copy wins.
func (e *Engine) Search(term string) (index.PostingList, error) {
	tokens := tokenizer.Tokenize(term)
	if len(tokens) == 0 {
		return nil, nil
	}
	norm := tokens[0].Term

	seen := make(map[string]bool)
	var out index.PostingList
	take := func(list index.PostingList) {
		for _, p := range list {
			if !seen[p.DocID] {
				seen[p.DocID] = true
				out = append(out, p)
			}
		}
	}
	mems, readers := e.sources()
	for _, mem := range mems {
		take(mem.Search(norm))
	}
	for i := len(readers) - 1; i >= 0; i-- {
		list, err := readers[i].Search(norm)
		if err != nil {
			e.logger.Error("segment search failed", "segment", readers[i].Path(), "term", norm, "error", err)
			continue
		}
		take(list)
	}
	slices.SortFunc(out, func(a, b index.Posting) int { return strings.Compare(a.DocID, b.DocID) })
	return out, nil
}

// HasDocument reports whether the document is held in memory or in any
// loaded segment.
func (e *Engine) HasDocument(docID string) bool {
	mems, readers := e.sources()
	if slices.ContainsFunc(mems, func(m *index.MemoryIndex) bool { return m.HasDocument(docID) }) {
		return true
	}
	return slices.ContainsFunc(readers, func(r *segment.Reader) bool {
		return r.HasDocument(docID)
	})
}

// BigramList returns a cursor over the bigrams of one document, taken from
// the memory index or else the newest segment holding it. TermFreq and the
// database size come from stats, or from this engine when stats is nil.
func (e *Engine) BigramList(docID string, stats CollectionStats) (bigram.StatsCursor, bool) {
	var (
		entries []bigram.Entry
		length  int
		ok      bool
	)
	mems, readers := e.sources()
	for _, mem := range mems {
		if entries, length, ok = mem.DocumentBigrams(docID); ok {
			break
		}
	}
	if !ok {
		for i := len(readers) - 1; i >= 0 && !ok; i-- {
			entries, length, ok = readers[i].DocumentBigrams(docID)
		}
	}
	if !ok {
		return nil, false
	}
	if stats == nil {
		stats = e
	}
	for i := range entries {
		entries[i].TermFreq = stats.TermFreq(entries[i].Name)
	}
	return bigram.NewDocumentList(docID, uint64(length), stats.DocCount(), entries), true
}

// TermFreq returns the number of documents in this shard containing name.
func (e *Engine) TermFreq(name string) uint64 {
	tf, _ := e.BigramFreq(name)
	return tf
}

// DocCount returns the number of documents in this shard.
func (e *Engine) DocCount() uint64 {
	return uint64(e.stats.count())
}

// AllBigrams returns an index-wide cursor over the memory index and every
// segment. Sources drop out of the union as they run out.
func (e *Engine) AllBigrams() bigram.CollectionFreqCursor {
	mems, readers := e.sources()
	sources := make([]bigram.CollectionFreqCursor, 0, len(mems)+len(readers))
	for _, mem := range mems {
		if all := mem.AllBigrams(); len(all) > 0 {
			sources = append(sources, bigram.NewIndexList(all))
		}
	}
	for _, r := range readers {
		if all := r.AllBigrams(); len(all) > 0 {
			sources = append(sources, bigram.NewIndexList(all))
		}
	}
	return bigram.NewUnion(sources...)
}

// BigramFreq sums a bigram's document and collection frequency over the
// memory index and every segment.
func (e *Engine) BigramFreq(name string) (termFreq, collFreq uint64) {
	mems, readers := e.sources()
	for _, mem := range mems {
		tf, cf := mem.BigramFreq(name)
		termFreq += tf
		collFreq += cf
	}
	for _, r := range readers {
		tf, cf := r.BigramFreq(name)
		termFreq += tf
		collFreq += cf
	}
	return termFreq, collFreq
}

// adopt appends r unless a reader for the same file is already held, in
// which case r is closed. The memory index r was written from, if any,
// stops being searched in the same step. It returns the number of active
// segments.
func (e *Engine) adopt(r *segment.Reader, from *index.MemoryIndex) int {
	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	if from != nil {
		e.frozen = slices.DeleteFunc(e.frozen, func(m *index.MemoryIndex) bool { return m == from })
	}
	name := filepath.Base(r.Path())
	if slices.ContainsFunc(e.readers, func(o *segment.Reader) bool { return filepath.Base(o.Path()) == name }) {
		_ = r.Close()
		return len(e.readers)
	}
	e.readers = append(e.readers, r)
	return len(e.readers)
}

// sources returns the memory indexes newest first, then the segment
// readers oldest first. Both are taken under one lock so a flushing index
// is seen either as memory or as a segment, never both or neither.
func (e *Engine) sources() ([]*index.MemoryIndex, []*segment.Reader) {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	mems := make([]*index.MemoryIndex, 0, len(e.frozen)+1)
	mems = append(mems, e.memIndex)
	for i := len(e.frozen) - 1; i >= 0; i-- {
		mems = append(mems, e.frozen[i])
	}
	return mems, slices.Clone(e.readers)
}

// Close flushes what is left in memory and releases every segment.
func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.logger.Error("flush on close failed", "error", err)
	}
	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	for _, r := range e.readers {
		if err := r.Close(); err != nil {
			e.logger.Error("close segment", "segment", r.Path(), "error", err)
		}
	}
	e.readers = nil
	return nil
}
