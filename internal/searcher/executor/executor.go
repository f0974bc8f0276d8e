// Package executor runs parsed queries against every shard. Candidates are
// matched on term postings, quoted phrases are then checked against each
// candidate's bigram list, and the survivors are ranked with BM25.
package executor

import (
	"github.com/samuelharden/xapian/internal/bigram"
	"github.com/samuelharden/xapian/internal/indexer"
	"github.com/samuelharden/xapian/internal/indexer/index"
	"github.com/samuelharden/xapian/internal/searcher/parser"
	"github.com/samuelharden/xapian/internal/searcher/ranker"
)

type SearchResult struct {
	Query     string             `json:"query"`
	Mode      string             `json:"mode,omitempty"`
	TotalHits int                `json:"total_hits"`
	Results   []ranker.ScoredDoc `json:"results"`
	TermStats map[string]int     `json:"term_stats"`
	// PhraseMisses counts term matches dropped for lacking a phrase.
	PhraseMisses int `json:"phrase_misses,omitempty"`
}

type docSet map[string]struct{}

// matchDocs combines the postings of plan's terms. With MatchAll a term
// that has no postings anywhere leaves no candidates.
func matchDocs(plan *parser.QueryPlan, postings map[string]index.PostingList) docSet {
	docs := make(docSet)
	if plan.Mode == parser.MatchAny {
		for _, term := range plan.Terms {
			for _, p := range postings[term] {
				docs[p.DocID] = struct{}{}
			}
		}
		return docs
	}

	rarest := ""
	for _, term := range plan.Terms {
		list, ok := postings[term]
		if !ok {
			return docs
		}
		if rarest == "" || len(list) < len(postings[rarest]) {
			rarest = term
		}
	}
	for _, p := range postings[rarest] {
		docs[p.DocID] = struct{}{}
	}
	for _, term := range plan.Terms {
		if term == rarest || len(docs) == 0 {
			continue
		}
		present := make(docSet, len(postings[term]))
		for _, p := range postings[term] {
			present[p.DocID] = struct{}{}
		}
		for id := range docs {
			if _, ok := present[id]; !ok {
				delete(docs, id)
			}
		}
	}
	return docs
}

// checkPhrases removes from docs every document missing a bigram of a
// required phrase, or holding all bigrams of an excluded phrase. It returns
// how many were removed.
func checkPhrases(plan *parser.QueryPlan, docs docSet, engines map[string]*indexer.Engine) int {
	required := plan.RequiredBigrams()
	if len(required) == 0 && len(plan.ExcludePhrases) == 0 {
		return 0
	}
	removed := 0
	for id := range docs {
		if !phraseMatch(engines[id], id, required, plan.ExcludePhrases) {
			delete(docs, id)
			removed++
		}
	}
	return removed
}

func phraseMatch(engine *indexer.Engine, docID string, required []string, excluded [][]string) bool {
	if engine == nil {
		return false
	}
	if len(required) > 0 {
		list, ok := engine.BigramList(docID, noStats{})
		if !ok || !holdsAll(list, required) {
			return false
		}
	}
	for _, phrase := range excluded {
		list, ok := engine.BigramList(docID, noStats{})
		if ok && holdsAll(list, phrase) {
			return false
		}
	}
	return true
}

// holdsAll probes c for each of names, which must be sorted ascending.
func holdsAll(c bigram.Cursor, names []string) bool {
	for _, name := range names {
		c = bigram.Seek(c, name)
		if c.AtEnd() || c.Name() != name {
			return false
		}
	}
	return true
}

// noStats skips the per-bigram frequency lookups a phrase probe never reads.
type noStats struct{}

func (noStats) TermFreq(string) uint64 { return 0 }
func (noStats) DocCount() uint64       { return 0 }
