// Package ranker scores candidate documents with Okapi BM25 and keeps the
// best of them.
package ranker

import (
	"math"

	"github.com/samuelharden/xapian/internal/indexer/index"
	"github.com/samuelharden/xapian/internal/searcher/merger"
)

// BM25 term saturation and length normalisation.
const (
	k1 = 1.2
	b  = 0.75
)

type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

type RankParams struct {
	TotalDocs    int64
	AvgDocLength float64
	// DocFreq is each term's document frequency over the whole
	// collection. A term missing from it is weighted by the length of the
	// postings passed to Rank.
	DocFreq map[string]int
}

type DocInfo struct {
	DocLength int
}

// Rank sums the BM25 contribution of every posting and returns the limit
// best documents, highest score first with ties broken by ID. limit <= 0
// keeps every scored document.
func Rank(
	postingsPerTerm map[string]index.PostingList,
	params RankParams,
	getDocInfo func(docID string) DocInfo,
	limit int,
) []ScoredDoc {
	scores := make(map[string]float64)
	for term, postings := range postingsPerTerm {
		df, ok := params.DocFreq[term]
		if !ok {
			df = len(postings)
		}
		w := idf(params.TotalDocs, int64(df))
		for _, p := range postings {
			length := getDocInfo(p.DocID).DocLength
			scores[p.DocID] += w * saturate(float64(p.Frequency), float64(length), params.AvgDocLength)
		}
	}
	if limit <= 0 {
		limit = max(len(scores), 1)
	}
	top := merger.NewTopK(limit, higherScore)
	for id, score := range scores {
		top.Push(ScoredDoc{DocID: id, Score: math.Round(score*1e4) / 1e4})
	}
	return top.Sorted()
}

func higherScore(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

// idf never goes negative, even for a term in every document.
func idf(totalDocs, docFreq int64) float64 {
	return math.Log((float64(totalDocs)-float64(docFreq))/(float64(docFreq)+0.5) + 1)
}

func saturate(freq, docLength, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	return freq * (k1 + 1) / (freq + k1*(1-b+b*docLength/avgDocLength))
}
