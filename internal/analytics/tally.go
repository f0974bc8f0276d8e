package analytics

import (
	"cmp"
	"slices"
)

// window keeps the most recent latency samples in a fixed-size ring.
type window struct {
	buf  []int64
	next int
	full bool
}

func newWindow(size int) *window {
	return &window{buf: make([]int64, size)}
}

func (w *window) add(v int64) {
	w.buf[w.next] = v
	w.next++
	if w.next == len(w.buf) {
		w.next = 0
		w.full = true
	}
}

func (w *window) len() int {
	if w.full {
		return len(w.buf)
	}
	return w.next
}

// sorted returns a sorted copy of the samples held.
func (w *window) sorted() []int64 {
	out := slices.Clone(w.buf[:w.len()])
	slices.Sort(out)
	return out
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[min(pct*len(sorted)/100, len(sorted)-1)]
}

func mean(samples []int64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum int64
	for _, v := range samples {
		sum += v
	}
	return float64(sum) / float64(len(samples))
}

// tally counts occurrences of strings.
type tally map[string]int64

// top returns the n most frequent keys, ties broken alphabetically.
func (t tally) top(n int) []QueryCount {
	out := make([]QueryCount, 0, len(t))
	for k, c := range t {
		out = append(out, QueryCount{Query: k, Count: c})
	}
	slices.SortFunc(out, func(a, b QueryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Query, b.Query)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
