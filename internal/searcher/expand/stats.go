package expand

import "github.com/samuelharden/xapian/internal/bigram"

// Stats gathers what the relevant documents say about one bigram. The
// expander resets it before every bigram and hands it to AccumulateStats,
// which calls Accumulate once per relevant document containing the bigram.
type Stats struct {
	Name string
	// RTermFreq is the number of relevant documents containing the bigram.
	RTermFreq uint64
	// WDF is the bigram's within-document frequency summed over those
	// documents.
	WDF uint64
	// DocLength is the summed length of those documents.
	DocLength uint64
	TermFreq  uint64
	DBSize    uint64
	// CollectionFreq is only filled for schemes that need it.
	CollectionFreq uint64
}

var _ bigram.Accumulator = (*Stats)(nil)

func (s *Stats) reset(name string) {
	*s = Stats{Name: name}
}

// Accumulate adds one relevant document's contribution. Term frequency and
// database size are collection-wide, so every contribution carries the same
// values; the largest is kept in case shards answered at different moments.
func (s *Stats) Accumulate(c bigram.Contribution) {
	if s.Name == "" {
		s.Name = c.Name
	}
	s.RTermFreq++
	s.WDF += c.WDF
	s.DocLength += c.DocLength
	s.TermFreq = max(s.TermFreq, c.TermFreq)
	s.DBSize = max(s.DBSize, c.DBSize)
}
