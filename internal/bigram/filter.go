package bigram

import (
	"fmt"
	"strings"
)

// Filter passes through the bigrams of an inner cursor accepted by a
// predicate. Replacements returned by the inner cursor are absorbed; a
// Filter never replaces itself.
type Filter struct {
	inner  Cursor
	accept func(Cursor) bool
	prefix string
	st     state
}

// NewFilter wraps inner. A nil accept keeps every bigram.
func NewFilter(inner Cursor, accept func(Cursor) bool) *Filter {
	return &Filter{inner: inner, accept: accept}
}

// Prefix restricts inner to names starting with prefix. The walk starts by
// seeking to prefix and ends at the first name outside it.
func Prefix(inner Cursor, prefix string) *Filter {
	return &Filter{inner: inner, prefix: prefix}
}

// MinTermFreq keeps bigrams occurring in at least n documents.
func MinTermFreq(inner Cursor, n uint64) *Filter {
	return NewFilter(inner, func(c Cursor) bool { return c.TermFreq() >= n })
}

func (f *Filter) ApproxSize() uint64 {
	if f.st == atEnd {
		return 0
	}
	return f.inner.ApproxSize()
}

func (f *Filter) Name() string {
	mustBeOn("Name", f.st)
	return f.inner.Name()
}

func (f *Filter) WDF() uint64 {
	mustBeOn("WDF", f.st)
	return f.inner.WDF()
}

func (f *Filter) TermFreq() uint64 {
	mustBeOn("TermFreq", f.st)
	return f.inner.TermFreq()
}

func (f *Filter) AccumulateStats(acc Accumulator) {
	mustBeOn("AccumulateStats", f.st)
	sc, ok := f.inner.(StatsCursor)
	if !ok {
		violate("AccumulateStats", f.st, fmt.Sprintf("%T does not accumulate stats", f.inner))
	}
	sc.AccumulateStats(acc)
}

func (f *Filter) CollectionFreq() uint64 {
	mustBeOn("CollectionFreq", f.st)
	cc, ok := f.inner.(CollectionFreqCursor)
	if !ok {
		violate("CollectionFreq", f.st, fmt.Sprintf("%T has no collection frequency", f.inner))
	}
	return cc.CollectionFreq()
}

func (f *Filter) AtEnd() bool { return f.st == atEnd }

func (f *Filter) Next() Cursor {
	switch f.st {
	case atEnd:
		return nil
	case beforeFirst:
		if f.prefix != "" {
			f.inner = Seek(f.inner, f.prefix)
			break
		}
		f.inner = Advance(f.inner)
	default:
		f.inner = Advance(f.inner)
	}
	f.settle()
	return nil
}

func (f *Filter) SkipTo(target string) Cursor {
	switch f.st {
	case atEnd:
		return nil
	case onBigram:
		if f.inner.Name() >= target {
			return nil
		}
	}
	if target < f.prefix {
		target = f.prefix
	}
	f.inner = Seek(f.inner, target)
	f.settle()
	return nil
}

func (f *Filter) settle() {
	for !f.inner.AtEnd() {
		if f.prefix != "" && !strings.HasPrefix(f.inner.Name(), f.prefix) {
			break
		}
		if f.accept == nil || f.accept(f.inner) {
			f.st = onBigram
			return
		}
		f.inner = Advance(f.inner)
	}
	f.st = atEnd
}
