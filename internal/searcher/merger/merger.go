// Package merger keeps the best k items of a stream with a bounded
// min-heap. The ranker uses it for scored documents and query expansion
// for weighted bigrams.
package merger

import "container/heap"

// TopK retains the limit best items pushed into it. better reports whether
// a ranks above b; it must be a strict total order so ties resolve the same
// way on every run.
type TopK[T any] struct {
	h     *boundedHeap[T]
	limit int
}

func NewTopK[T any](limit int, better func(a, b T) bool) *TopK[T] {
	if limit <= 0 {
		limit = 10
	}
	return &TopK[T]{
		h:     &boundedHeap[T]{better: better},
		limit: limit,
	}
}

// Push offers an item, evicting the worst one once more than limit are
// held.
func (t *TopK[T]) Push(item T) {
	heap.Push(t.h, item)
	if t.h.Len() > t.limit {
		heap.Pop(t.h)
	}
}

func (t *TopK[T]) Len() int { return t.h.Len() }

// Sorted drains the retained items, best first.
func (t *TopK[T]) Sorted() []T {
	out := make([]T, t.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(t.h).(T)
	}
	return out
}

// Merge returns the limit best items across several already-collected
// lists, such as per-shard results.
func Merge[T any](lists [][]T, limit int, better func(a, b T) bool) []T {
	top := NewTopK(limit, better)
	for _, list := range lists {
		for _, item := range list {
			top.Push(item)
		}
	}
	return top.Sorted()
}

// boundedHeap keeps the worst item at the root.
type boundedHeap[T any] struct {
	items  []T
	better func(a, b T) bool
}

func (h boundedHeap[T]) Len() int { return len(h.items) }

func (h boundedHeap[T]) Less(i, j int) bool { return h.better(h.items[j], h.items[i]) }

func (h boundedHeap[T]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *boundedHeap[T]) Push(x interface{}) {
	h.items = append(h.items, x.(T))
}

func (h *boundedHeap[T]) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
