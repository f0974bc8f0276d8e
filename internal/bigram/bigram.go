package bigram

import "strings"

// Separator joins the two terms of a bigram name. Tokenized terms never
// contain it, and it sorts below every letter and digit, so names order by
// first term and then by second term.
const Separator = " "

// Join returns the name of the bigram formed by first followed by second.
func Join(first, second string) string {
	return first + Separator + second
}

// Split returns the two terms of a bigram name.
func Split(name string) (first, second string, ok bool) {
	return strings.Cut(name, Separator)
}

// Entry is one bigram as stored by a producer.
type Entry struct {
	Name           string `json:"n"`
	WDF            uint64 `json:"w,omitempty"`
	TermFreq       uint64 `json:"tf,omitempty"`
	CollectionFreq uint64 `json:"cf,omitempty"`
}

// Contribution is what a document list reports to an Accumulator for the
// bigram it is positioned on.
type Contribution struct {
	Name      string
	DocID     string
	WDF       uint64
	DocLength uint64
	TermFreq  uint64
	DBSize    uint64
}

// Accumulator collects weighting contributions during query expansion.
type Accumulator interface {
	Accumulate(c Contribution)
}
