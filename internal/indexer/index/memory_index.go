package index

import (
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/zhangyunhao116/skipmap"

	"github.com/samuelharden/xapian/internal/bigram"
	"github.com/samuelharden/xapian/internal/indexer/tokenizer"
)

type bigramTable = skipmap.FuncMap[string, *bigramStat]

// bigramStat tracks which documents (by ordinal) contain a bigram and how
// often it occurs overall.
type bigramStat struct {
	docs     *roaring.Bitmap
	collFreq uint64
}

type docRecord struct {
	ordinal uint32
	length  int
	size    int64
	terms   []string
	bigrams []bigram.Entry
}

// MemoryIndex is the mutable in-memory part of an engine: an inverted term
// index for search plus the bigram table and per-document bigram lists.
type MemoryIndex struct {
	mu       sync.RWMutex
	index    map[string]map[string]*Posting
	bigrams  *bigramTable
	docs     map[string]*docRecord
	nextOrd  uint32
	docCount int
	size     int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index:   make(map[string]map[string]*Posting),
		bigrams: newBigramTable(),
		docs:    make(map[string]*docRecord),
	}
}

func newBigramTable() *bigramTable {
	return skipmap.NewFunc[string, *bigramStat](func(a, b string) bool {
		return a < b
	})
}

// AddDocument indexes a document. Adding a document ID again replaces its
// earlier terms and bigrams. It returns the document length in tokens.
func (m *MemoryIndex) AddDocument(docID string, title string, body string) int {
	fullText := title + " " + body
	tokens := tokenizer.Tokenize(fullText)

	termData := make(map[string]*Posting)

	for _, token := range tokens {
		p, exists := termData[token.Term]
		if !exists {
			p = &Posting{
				DocID:     docID,
				Frequency: 0,
				Positions: make([]int, 0, 4),
			}
			termData[token.Term] = p
		}
		p.Frequency++
		p.Positions = append(p.Positions, token.Position)
	}

	counts := tokenizer.BigramCounts(tokens)
	docBigrams := make([]bigram.Entry, 0, len(counts))
	for name, n := range counts {
		docBigrams = append(docBigrams, bigram.Entry{Name: name, WDF: uint64(n)})
	}
	slices.SortFunc(docBigrams, func(a, b bigram.Entry) int {
		return strings.Compare(a.Name, b.Name)
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.docs[docID]
	if exists {
		m.removeLocked(docID, rec)
	} else {
		rec = &docRecord{ordinal: m.nextOrd}
		m.nextOrd++
		m.docs[docID] = rec
		m.docCount++
	}
	rec.length = len(tokens)
	rec.size = 0
	rec.terms = rec.terms[:0]
	rec.bigrams = docBigrams

	for term, posting := range termData {
		if _, exists := m.index[term]; !exists {
			m.index[term] = make(map[string]*Posting)
		}
		m.index[term][docID] = posting
		rec.terms = append(rec.terms, term)
		rec.size += postingSize(term, docID, posting)
	}
	for _, e := range docBigrams {
		stat, ok := m.bigrams.Load(e.Name)
		if !ok {
			stat = &bigramStat{docs: roaring.New()}
			m.bigrams.Store(e.Name, stat)
			m.size += dictEntrySize(e.Name)
		}
		stat.docs.Add(rec.ordinal)
		stat.collFreq += e.WDF
		rec.size += int64(len(e.Name) + 16)
	}
	m.size += rec.size
	return len(tokens)
}

// Estimated bytes held per posting and per bigram dictionary entry.
func postingSize(term, docID string, p *Posting) int64 {
	return int64(len(term) + len(docID) + len(p.Positions)*8 + 64)
}

func dictEntrySize(name string) int64 { return int64(len(name) + 48) }

// removeLocked withdraws the postings and bigram counts a document
// contributed. The caller holds m.mu.
func (m *MemoryIndex) removeLocked(docID string, rec *docRecord) {
	for _, term := range rec.terms {
		docs := m.index[term]
		delete(docs, docID)
		if len(docs) == 0 {
			delete(m.index, term)
		}
	}
	for _, e := range rec.bigrams {
		stat, ok := m.bigrams.Load(e.Name)
		if !ok {
			continue
		}
		stat.docs.Remove(rec.ordinal)
		stat.collFreq -= e.WDF
		if stat.docs.IsEmpty() {
			m.bigrams.Delete(e.Name)
			m.size -= dictEntrySize(e.Name)
		}
	}
	m.size -= rec.size
}

func (m *MemoryIndex) Search(term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, exists := m.index[term]
	if !exists {
		return nil
	}
	result := make(PostingList, 0, len(docs))
	for _, posting := range docs {
		result = append(result, *posting)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result
}

// HasDocument reports whether docID was added since the last Reset.
func (m *MemoryIndex) HasDocument(docID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.docs[docID]
	return ok
}

// DocumentBigrams returns the sorted bigram list of a document with
// TermFreq filled from this index, and the document length.
func (m *MemoryIndex) DocumentBigrams(docID string) ([]bigram.Entry, int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.docs[docID]
	if !ok {
		return nil, 0, false
	}
	out := make([]bigram.Entry, len(rec.bigrams))
	for i, e := range rec.bigrams {
		e.TermFreq, _ = m.bigramFreqLocked(e.Name)
		out[i] = e
	}
	return out, rec.length, true
}

// BigramFreq returns the number of documents containing name and its total
// number of occurrences.
func (m *MemoryIndex) BigramFreq(name string) (termFreq, collFreq uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bigramFreqLocked(name)
}

func (m *MemoryIndex) bigramFreqLocked(name string) (uint64, uint64) {
	stat, ok := m.bigrams.Load(name)
	if !ok {
		return 0, 0
	}
	return stat.docs.GetCardinality(), stat.collFreq
}

// AllBigrams returns every bigram in name order with TermFreq and
// CollectionFreq set.
func (m *MemoryIndex) AllBigrams() []bigram.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dictLocked()
}

func (m *MemoryIndex) dictLocked() []bigram.Entry {
	out := make([]bigram.Entry, 0, m.bigrams.Len())
	m.bigrams.Range(func(name string, stat *bigramStat) bool {
		out = append(out, bigram.Entry{
			Name:           name,
			TermFreq:       stat.docs.GetCardinality(),
			CollectionFreq: stat.collFreq,
		})
		return true
	})
	return out
}

// BigramSnapshot copies the bigram state for a flush.
func (m *MemoryIndex) BigramSnapshot() BigramSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := BigramSnapshot{
		Dict: m.dictLocked(),
		Docs: make([]DocBigrams, 0, len(m.docs)),
	}
	for docID, rec := range m.docs {
		snap.Docs = append(snap.Docs, DocBigrams{
			DocID:   docID,
			DocLen:  rec.length,
			Bigrams: slices.Clone(rec.bigrams),
		})
	}
	sort.Slice(snap.Docs, func(i, j int) bool {
		return snap.Docs[i].DocID < snap.Docs[j].DocID
	})
	return snap
}

func (m *MemoryIndex) Snapshot() []TermEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for term, docs := range m.index {
		postings := make(PostingList, 0, len(docs))
		for _, posting := range docs {
			postings = append(postings, *posting)
		}
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].DocID < postings[j].DocID
		})
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docCount
}

// Empty reports whether the index holds nothing a segment could store.
func (m *MemoryIndex) Empty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.index) == 0 && m.bigrams.Len() == 0
}

// Detach moves everything indexed so far into a new MemoryIndex and leaves
// m empty. The returned index is not written to again, so its term and
// bigram snapshots agree with each other.
func (m *MemoryIndex) Detach() *MemoryIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := &MemoryIndex{
		index:    m.index,
		bigrams:  m.bigrams,
		docs:     m.docs,
		nextOrd:  m.nextOrd,
		docCount: m.docCount,
		size:     m.size,
	}
	m.resetLocked()
	return old
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *MemoryIndex) resetLocked() {
	m.index = make(map[string]map[string]*Posting)
	m.bigrams = newBigramTable()
	m.docs = make(map[string]*docRecord)
	m.nextOrd = 0
	m.docCount = 0
	m.size = 0
}
