package expand

import (
	"fmt"
	"math"
	"strings"

	apperrors "github.com/samuelharden/xapian/pkg/errors"
)

// Scheme selects how expansion candidates are weighted.
type Scheme string

const (
	// Trad is the Robertson/Sparck Jones relevance weight scaled by the
	// number of relevant documents containing the bigram.
	Trad Scheme = "trad"
	// Bo1 is the Bose-Einstein model from the divergence-from-randomness
	// family. It needs the collection frequency of every candidate.
	Bo1 Scheme = "bo1"
)

// ParseScheme maps a configured or requested name to a Scheme. The empty
// string selects Trad.
func ParseScheme(name string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(name))) {
	case "", Trad:
		return Trad, nil
	case Bo1:
		return Bo1, nil
	}
	return "", fmt.Errorf("%w: unknown expansion scheme %q", apperrors.ErrInvalidInput, name)
}

func (s Scheme) needsCollectionFreq() bool {
	return s == Bo1
}

// Weight scores a candidate given its stats and the number of relevant
// documents rsize. Weights are never negative.
func (s Scheme) Weight(st Stats, rsize uint64) float64 {
	switch s {
	case Bo1:
		return bo1Weight(st)
	default:
		return tradWeight(st, rsize)
	}
}

func tradWeight(st Stats, rsize uint64) float64 {
	r := float64(st.RTermFreq)
	R := float64(rsize)
	n := float64(st.TermFreq)
	N := float64(st.DBSize)
	if n < r {
		n = r
	}
	if N < n {
		N = n
	}
	num := (r + 0.5) * math.Max(N-R-n+r+0.5, 0.5)
	den := (R - r + 0.5) * (n - r + 0.5)
	tw := num / den
	// keep log(tw) positive for bigrams that are common in the collection
	if tw < 2 {
		tw = tw*0.5 + 1
	}
	return r * math.Log(tw)
}

func bo1Weight(st Stats) float64 {
	if st.DBSize == 0 || st.WDF == 0 {
		return 0
	}
	cf := st.CollectionFreq
	if cf == 0 {
		cf = max(st.TermFreq, st.RTermFreq)
	}
	mean := float64(cf) / float64(st.DBSize)
	return float64(st.WDF)*math.Log2((1+mean)/mean) + math.Log2(1+mean)
}
