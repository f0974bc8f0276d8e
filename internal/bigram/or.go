package bigram

import (
	"container/heap"
	"fmt"
)

// orCursor yields the union of two cursors. When one side runs out it hands
// the other side to its caller instead of forwarding every later call.
type orCursor struct {
	left, right     Cursor
	st              state
	name            string
	onLeft, onRight bool
}

func newOr(left, right Cursor) *orCursor {
	return &orCursor{left: left, right: right}
}

func (o *orCursor) ApproxSize() uint64 {
	mustBeLive("ApproxSize", o.st)
	if o.st == atEnd {
		return 0
	}
	return o.left.ApproxSize() + o.right.ApproxSize()
}

func (o *orCursor) Name() string {
	mustBeOn("Name", o.st)
	return o.name
}

// WDF sums both sides when both are on the current bigram.
func (o *orCursor) WDF() uint64 {
	mustBeOn("WDF", o.st)
	var wdf uint64
	if o.onLeft {
		wdf += o.left.WDF()
	}
	if o.onRight {
		wdf += o.right.WDF()
	}
	return wdf
}

// TermFreq takes the larger side; both sides count documents of the same
// collection, so they only differ when one side is stale.
func (o *orCursor) TermFreq() uint64 {
	mustBeOn("TermFreq", o.st)
	var tf uint64
	if o.onLeft {
		tf = o.left.TermFreq()
	}
	if o.onRight {
		tf = max(tf, o.right.TermFreq())
	}
	return tf
}

func (o *orCursor) AccumulateStats(acc Accumulator) {
	mustBeOn("AccumulateStats", o.st)
	for _, side := range o.sides() {
		sc, ok := side.(StatsCursor)
		if !ok {
			violate("AccumulateStats", o.st, fmt.Sprintf("%T does not accumulate stats", side))
		}
		sc.AccumulateStats(acc)
	}
}

func (o *orCursor) CollectionFreq() uint64 {
	mustBeOn("CollectionFreq", o.st)
	var cf uint64
	for _, side := range o.sides() {
		cc, ok := side.(CollectionFreqCursor)
		if !ok {
			violate("CollectionFreq", o.st, fmt.Sprintf("%T has no collection frequency", side))
		}
		cf += cc.CollectionFreq()
	}
	return cf
}

func (o *orCursor) AtEnd() bool {
	mustBeLive("AtEnd", o.st)
	return o.st == atEnd
}

func (o *orCursor) Next() Cursor {
	mustBeLive("Next", o.st)
	switch o.st {
	case atEnd:
		return nil
	case beforeFirst:
		o.left = stepCursor(o.left, o.left.Next())
		o.right = stepCursor(o.right, o.right.Next())
	default:
		if o.onLeft {
			o.left = stepCursor(o.left, o.left.Next())
		}
		if o.onRight {
			o.right = stepCursor(o.right, o.right.Next())
		}
	}
	return o.settle()
}

func (o *orCursor) SkipTo(target string) Cursor {
	mustBeLive("SkipTo", o.st)
	switch o.st {
	case atEnd:
		return nil
	case onBigram:
		if o.name >= target {
			return nil
		}
	}
	o.left = stepCursor(o.left, o.left.SkipTo(target))
	o.right = stepCursor(o.right, o.right.SkipTo(target))
	return o.settle()
}

func (o *orCursor) settle() Cursor {
	leftEnd, rightEnd := o.left.AtEnd(), o.right.AtEnd()
	switch {
	case leftEnd && rightEnd:
		o.st = atEnd
		return nil
	case leftEnd:
		return o.handOver(o.right)
	case rightEnd:
		return o.handOver(o.left)
	}
	ln, rn := o.left.Name(), o.right.Name()
	o.onLeft = ln <= rn
	o.onRight = rn <= ln
	if o.onLeft {
		o.name = ln
	} else {
		o.name = rn
	}
	o.st = onBigram
	return nil
}

func (o *orCursor) handOver(survivor Cursor) Cursor {
	o.left, o.right = nil, nil
	o.st = replaced
	prunes.Add(1)
	return survivor
}

func (o *orCursor) sides() []Cursor {
	switch {
	case o.onLeft && o.onRight:
		return []Cursor{o.left, o.right}
	case o.onLeft:
		return []Cursor{o.left}
	default:
		return []Cursor{o.right}
	}
}

// Merge combines cursors into a balanced union tree. Equal names are
// reported once, with WDF summed.
func Merge(cs ...Cursor) Cursor {
	if len(cs) == 0 {
		return NewList(nil)
	}
	return buildTree(cs)
}

// MergeStats is Merge restricted to stats-capable cursors, so the result can
// accumulate stats without a runtime capability check failing.
func MergeStats(cs ...StatsCursor) StatsCursor {
	if len(cs) == 0 {
		return NewDocumentList("", 0, 0, nil)
	}
	generic := make([]Cursor, len(cs))
	for i, c := range cs {
		generic[i] = c
	}
	return buildTree(generic).(StatsCursor)
}

// buildTree repeatedly joins the two smallest cursors, which keeps the
// cheap lists deep in the tree where they are pruned first.
func buildTree(cs []Cursor) Cursor {
	h := make(sizeHeap, 0, len(cs))
	for i, c := range cs {
		h = append(h, sized{cursor: c, size: c.ApproxSize(), seq: i})
	}
	heap.Init(&h)
	seq := len(cs)
	for h.Len() > 1 {
		a := heap.Pop(&h).(sized)
		b := heap.Pop(&h).(sized)
		or := newOr(a.cursor, b.cursor)
		heap.Push(&h, sized{cursor: or, size: a.size + b.size, seq: seq})
		seq++
	}
	return h[0].cursor
}

type sized struct {
	cursor Cursor
	size   uint64
	seq    int
}

type sizeHeap []sized

func (h sizeHeap) Len() int { return len(h) }

func (h sizeHeap) Less(i, j int) bool {
	if h[i].size != h[j].size {
		return h[i].size < h[j].size
	}
	return h[i].seq < h[j].seq
}

func (h sizeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *sizeHeap) Push(x any) {
	*h = append(*h, x.(sized))
}

func (h *sizeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
