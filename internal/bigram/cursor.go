package bigram

import "fmt"

// Cursor walks bigrams in ascending name order.
type Cursor interface {
	// ApproxSize estimates how many bigrams the cursor still yields.
	ApproxSize() uint64
	// Name returns the bigram at the current position.
	Name() string
	// WDF returns the within-document frequency at the current position.
	WDF() uint64
	// TermFreq returns the number of documents containing the current bigram.
	TermFreq() uint64
	// Next moves to the following bigram. A non-nil result replaces the
	// receiver, which must not be used again.
	Next() Cursor
	// SkipTo moves to the first bigram whose name is >= target, or to the
	// end. It never moves backwards. A non-nil result replaces the receiver.
	SkipTo(target string) Cursor
	// AtEnd reports whether the cursor has passed its last bigram.
	AtEnd() bool
}

// StatsCursor is a cursor able to feed expansion statistics.
type StatsCursor interface {
	Cursor
	AccumulateStats(acc Accumulator)
}

// CollectionFreqCursor is an index-wide cursor that knows how often each
// bigram occurs across the collection.
type CollectionFreqCursor interface {
	Cursor
	CollectionFreq() uint64
}

// Advance calls c.Next and returns the cursor to continue with.
func Advance[C Cursor](c C) C {
	return adopt(c, c.Next(), "Next")
}

// Seek calls c.SkipTo(target) and returns the cursor to continue with.
func Seek[C Cursor](c C, target string) C {
	return adopt(c, c.SkipTo(target), "SkipTo")
}

// Drain advances c until it ends, calling fn at every bigram. fn returns
// false to stop early. The cursor in use when the walk stopped is returned.
func Drain[C Cursor](c C, fn func(C) bool) C {
	for c = Advance(c); !c.AtEnd(); c = Advance(c) {
		if !fn(c) {
			break
		}
	}
	return c
}

func adopt[C Cursor](c C, r Cursor, op string) C {
	if r == nil {
		return c
	}
	rc, ok := r.(C)
	if !ok {
		panic(&Violation{
			Op:     op,
			State:  replaced.String(),
			Detail: fmt.Sprintf("replacement %T does not provide %T", r, c),
		})
	}
	return rc
}

func stepCursor(c, r Cursor) Cursor {
	if r != nil {
		return r
	}
	return c
}
