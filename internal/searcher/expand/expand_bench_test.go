package expand

import (
	"context"
	"fmt"
	"testing"

	"github.com/samuelharden/xapian/internal/bigram"
)

func benchSource(docs, perDoc int) (*fakeSource, []string) {
	src := &fakeSource{
		dbSize:   uint64(docs * 10),
		termFreq: make(map[string]uint64),
		collFreq: make(map[string]uint64),
		docs:     make(map[string]fakeDoc, docs),
	}
	rset := make([]string, docs)
	for d := 0; d < docs; d++ {
		entries := make([]bigram.Entry, perDoc)
		for i := range entries {
			name := fmt.Sprintf("w%04d w%04d", i+d%7, i+1)
			entries[i] = bigram.Entry{Name: name, WDF: uint64(1 + i%3)}
			src.termFreq[name]++
			src.collFreq[name] += entries[i].WDF
		}
		id := fmt.Sprintf("doc-%d", d)
		src.docs[id] = fakeDoc{length: uint64(perDoc + 1), entries: entries}
		rset[d] = id
	}
	return src, rset
}

func BenchmarkExpand(b *testing.B) {
	for _, scheme := range []Scheme{Trad, Bo1} {
		for _, docs := range []int{5, 50} {
			b.Run(fmt.Sprintf("%s/docs_%d", scheme, docs), func(b *testing.B) {
				src, rset := benchSource(docs, 300)
				e := New(src)
				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if _, err := e.Expand(context.Background(), rset, Options{Scheme: scheme, Limit: 20}); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
