package bigram

import (
	"slices"
	"sort"
	"strings"
)

// List is a leaf cursor over an in-memory, name-sorted slice of entries.
// It never replaces itself.
type List struct {
	entries []Entry
	idx     int
	st      state
}

// NewList returns a cursor over entries. Entries are sorted by name if they
// are not already; names are expected to be unique.
func NewList(entries []Entry) *List {
	if !slices.IsSortedFunc(entries, compareEntries) {
		entries = slices.Clone(entries)
		slices.SortFunc(entries, compareEntries)
	}
	return &List{entries: entries, idx: -1}
}

func compareEntries(a, b Entry) int {
	return strings.Compare(a.Name, b.Name)
}

func (l *List) ApproxSize() uint64 {
	if l.idx < 0 {
		return uint64(len(l.entries))
	}
	return uint64(len(l.entries) - l.idx)
}

func (l *List) Name() string     { return l.current("Name").Name }
func (l *List) WDF() uint64      { return l.current("WDF").WDF }
func (l *List) TermFreq() uint64 { return l.current("TermFreq").TermFreq }
func (l *List) AtEnd() bool      { return l.st == atEnd }

func (l *List) Next() Cursor {
	switch l.st {
	case atEnd:
		return nil
	case beforeFirst:
		l.idx = 0
	default:
		l.idx++
	}
	l.settle()
	return nil
}

func (l *List) SkipTo(target string) Cursor {
	switch l.st {
	case atEnd:
		return nil
	case onBigram:
		if l.entries[l.idx].Name >= target {
			return nil
		}
	}
	start := max(l.idx, 0)
	rest := l.entries[start:]
	l.idx = start + sort.Search(len(rest), func(i int) bool {
		return rest[i].Name >= target
	})
	l.settle()
	return nil
}

func (l *List) settle() {
	if l.idx >= len(l.entries) {
		l.idx = len(l.entries)
		l.st = atEnd
		return
	}
	l.st = onBigram
}

func (l *List) current(op string) *Entry {
	mustBeOn(op, l.st)
	return &l.entries[l.idx]
}

// DocumentList is the bigram list of a single document. It carries the
// document length and collection size needed for expansion weighting.
type DocumentList struct {
	List
	docID     string
	docLength uint64
	dbSize    uint64
}

// NewDocumentList returns the list of bigrams of docID. Each entry's WDF is
// its count in the document and TermFreq its document frequency in the
// collection of dbSize documents.
func NewDocumentList(docID string, docLength, dbSize uint64, entries []Entry) *DocumentList {
	return &DocumentList{
		List:      *NewList(entries),
		docID:     docID,
		docLength: docLength,
		dbSize:    dbSize,
	}
}

func (d *DocumentList) DocID() string { return d.docID }

func (d *DocumentList) DocLength() uint64 { return d.docLength }

func (d *DocumentList) AccumulateStats(acc Accumulator) {
	e := d.current("AccumulateStats")
	acc.Accumulate(Contribution{
		Name:      e.Name,
		DocID:     d.docID,
		WDF:       e.WDF,
		DocLength: d.docLength,
		TermFreq:  e.TermFreq,
		DBSize:    d.dbSize,
	})
}

// IndexList lists every bigram of one index source. Its WDF is the
// collection frequency, since the list is not tied to one document.
type IndexList struct {
	List
}

func NewIndexList(entries []Entry) *IndexList {
	return &IndexList{List: *NewList(entries)}
}

func (l *IndexList) WDF() uint64 { return l.current("WDF").CollectionFreq }

func (l *IndexList) CollectionFreq() uint64 {
	return l.current("CollectionFreq").CollectionFreq
}
