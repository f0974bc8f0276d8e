// Package phrase answers questions about adjacent word pairs across the
// whole index: whether every pair of a phrase occurs anywhere (a missing
// pair proves the phrase cannot match) and which words most often follow
// a given word.
package phrase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/samuelharden/xapian/internal/bigram"
	"github.com/samuelharden/xapian/internal/indexer/tokenizer"
	apperrors "github.com/samuelharden/xapian/pkg/errors"
)

// Source provides an index-wide bigram cursor.
type Source interface {
	AllBigrams(ctx context.Context) (bigram.CollectionFreqCursor, error)
}

// BigramHit reports one bigram of a checked phrase.
type BigramHit struct {
	Bigram         string `json:"bigram"`
	Found          bool   `json:"found"`
	TermFreq       uint64 `json:"termfreq"`
	CollectionFreq uint64 `json:"collection_freq"`
}

// CheckResult lists the bigrams of a phrase in phrase order.
type CheckResult struct {
	Query   string      `json:"query"`
	Bigrams []BigramHit `json:"bigrams"`
	// Possible is false when at least one bigram occurs nowhere.
	Possible bool `json:"possible"`
}

// Suggestion is a word seen directly after the requested one.
type Suggestion struct {
	Next           string `json:"next"`
	Bigram         string `json:"bigram"`
	TermFreq       uint64 `json:"termfreq"`
	CollectionFreq uint64 `json:"collection_freq"`
}

type Checker struct {
	source Source
	logger *slog.Logger
}

func New(source Source) *Checker {
	return &Checker{
		source: source,
		logger: slog.Default().With("component", "phrase-checker"),
	}
}

// Check looks up every bigram of query. Lookups run in ascending name order
// on a single cursor so each one only skips forward.
func (c *Checker) Check(ctx context.Context, query string) (*CheckResult, error) {
	names := tokenizer.Bigrams(tokenizer.Tokenize(query))
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: phrase %q needs at least two indexable words", apperrors.ErrInvalidInput, query)
	}
	all, err := c.source.AllBigrams(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening bigram index: %w", err)
	}

	targets := slices.Clone(names)
	slices.Sort(targets)
	targets = slices.Compact(targets)
	hits := make(map[string]BigramHit, len(targets))
	for _, target := range targets {
		all = bigram.Seek(all, target)
		hit := BigramHit{Bigram: target}
		if !all.AtEnd() && all.Name() == target {
			hit.Found = true
			hit.TermFreq = all.TermFreq()
			hit.CollectionFreq = all.CollectionFreq()
		}
		hits[target] = hit
	}

	result := &CheckResult{Query: query, Possible: true, Bigrams: make([]BigramHit, len(names))}
	for i, name := range names {
		result.Bigrams[i] = hits[name]
		if !hits[name].Found {
			result.Possible = false
		}
	}
	c.logger.Debug("phrase checked", "query", query, "bigrams", len(names), "possible", result.Possible)
	return result, nil
}

// Suggest returns up to limit words that follow the last word of term,
// most frequent first. Equal frequencies order by name.
func (c *Checker) Suggest(ctx context.Context, term string, limit int) ([]Suggestion, error) {
	tokens := tokenizer.Tokenize(term)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: %q has no indexable word", apperrors.ErrInvalidInput, term)
	}
	if limit <= 0 {
		limit = 10
	}
	all, err := c.source.AllBigrams(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening bigram index: %w", err)
	}

	first := tokens[len(tokens)-1].Term
	out := make([]Suggestion, 0)
	bigram.Drain(bigram.Prefix(all, first+bigram.Separator), func(f *bigram.Filter) bool {
		_, next, _ := bigram.Split(f.Name())
		out = append(out, Suggestion{
			Next:           next,
			Bigram:         f.Name(),
			TermFreq:       f.TermFreq(),
			CollectionFreq: f.CollectionFreq(),
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CollectionFreq != out[j].CollectionFreq {
			return out[i].CollectionFreq > out[j].CollectionFreq
		}
		return out[i].Next < out[j].Next
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
