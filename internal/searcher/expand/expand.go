// Package expand suggests bigrams to add to a query, given documents the
// user judged relevant. It merges the relevant documents' bigram lists,
// collects per-bigram statistics while walking the merge, and keeps the
// best-weighted bigrams.
package expand

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/samuelharden/xapian/internal/bigram"
	"github.com/samuelharden/xapian/internal/searcher/merger"
	apperrors "github.com/samuelharden/xapian/pkg/errors"
	"github.com/samuelharden/xapian/pkg/logger"
	"github.com/samuelharden/xapian/pkg/tracing"
)

// Source provides per-document bigram lists with collection-wide stats.
type Source interface {
	DocumentList(ctx context.Context, docID string) (bigram.StatsCursor, error)
	BigramFreq(name string) (termFreq, collFreq uint64)
}

type Options struct {
	Scheme          Scheme
	Limit           int
	MinRelevantDocs int
	// Exclude lists bigrams that are never suggested, typically those
	// already in the query.
	Exclude []string
}

// Term is one expansion candidate.
type Term struct {
	Bigram    string  `json:"bigram"`
	Weight    float64 `json:"weight"`
	RTermFreq uint64  `json:"rtermfreq"`
	TermFreq  uint64  `json:"termfreq"`
}

// ESet is the result of an expansion, best candidate first.
type ESet struct {
	Scheme       Scheme   `json:"scheme"`
	RelevantDocs int      `json:"relevant_docs"`
	Missing      []string `json:"missing,omitempty"`
	Considered   int      `json:"considered"`
	Prunes       int      `json:"prunes"` // merge replacements as lists ran out
	Terms        []Term   `json:"terms"`
	TookMs       int64    `json:"took_ms"`
}

type Expander struct {
	source Source
	logger *slog.Logger
}

func New(source Source) *Expander {
	return &Expander{
		source: source,
		logger: slog.Default().With("component", "expander"),
	}
}

// cancelCheckEvery is how many bigrams are walked between context checks.
const cancelCheckEvery = 256

// Expand builds the expansion set for the relevant documents rset.
// Documents that cannot be found are reported in ESet.Missing; if none is
// found the error wraps ErrNoRelevantDocs.
func (e *Expander) Expand(ctx context.Context, rset []string, opts Options) (*ESet, error) {
	start := time.Now()
	ctx, span := tracing.StartChild(ctx, "expand")
	defer span.End()
	log := logger.FromContext(ctx)

	if opts.Scheme == "" {
		opts.Scheme = Trad
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	span.SetAttr("scheme", string(opts.Scheme))
	span.SetAttr("rset_size", len(rset))

	lists, missing, err := e.documentLists(ctx, rset)
	if err != nil {
		return nil, err
	}
	if len(lists) == 0 {
		return nil, apperrors.Newf(apperrors.ErrNoRelevantDocs, http.StatusNotFound, "none of %d relevant documents found", len(rset))
	}

	exclude := make(map[string]struct{}, len(opts.Exclude))
	for _, name := range opts.Exclude {
		exclude[name] = struct{}{}
	}
	rsize := uint64(len(lists))
	top := merger.NewTopK(opts.Limit, heavier)
	var (
		st         Stats
		considered int
		prunes     int
		walkErr    error
	)
	step := func(c bigram.StatsCursor) bigram.StatsCursor {
		next := bigram.Advance(c)
		if next != c {
			prunes++
		}
		return next
	}
	visit := func(c bigram.StatsCursor) bool {
		considered++
		if considered%cancelCheckEvery == 0 {
			if walkErr = ctx.Err(); walkErr != nil {
				return false
			}
		}
		name := c.Name()
		if _, skip := exclude[name]; skip {
			return true
		}
		st.reset(name)
		c.AccumulateStats(&st)
		if st.RTermFreq < uint64(opts.MinRelevantDocs) {
			return true
		}
		if opts.Scheme.needsCollectionFreq() {
			_, st.CollectionFreq = e.source.BigramFreq(name)
		}
		top.Push(Term{
			Bigram:    name,
			Weight:    opts.Scheme.Weight(st, rsize),
			RTermFreq: st.RTermFreq,
			TermFreq:  st.TermFreq,
		})
		return true
	}
	for c := step(bigram.MergeStats(lists...)); !c.AtEnd(); c = step(c) {
		if !visit(c) {
			break
		}
	}
	if walkErr != nil {
		return nil, fmt.Errorf("walking relevant bigrams: %w", walkErr)
	}

	terms := top.Sorted()
	took := time.Since(start)
	span.SetAttr("considered", considered)
	span.SetAttr("returned", len(terms))
	span.SetAttr("prunes", prunes)
	log.Debug("expansion complete",
		"scheme", opts.Scheme,
		"relevant_docs", len(lists),
		"missing", len(missing),
		"considered", considered,
		"prunes", prunes,
		"returned", len(terms),
		"took_ms", took.Milliseconds(),
	)
	return &ESet{
		Scheme:       opts.Scheme,
		RelevantDocs: len(lists),
		Missing:      missing,
		Considered:   considered,
		Prunes:       prunes,
		Terms:        terms,
		TookMs:       took.Milliseconds(),
	}, nil
}

func (e *Expander) documentLists(ctx context.Context, rset []string) ([]bigram.StatsCursor, []string, error) {
	seen := make(map[string]struct{}, len(rset))
	lists := make([]bigram.StatsCursor, 0, len(rset))
	var missing []string
	for _, docID := range rset {
		if _, dup := seen[docID]; dup || docID == "" {
			continue
		}
		seen[docID] = struct{}{}
		c, err := e.source.DocumentList(ctx, docID)
		if errors.Is(err, apperrors.ErrDocumentNotFound) {
			missing = append(missing, docID)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("loading bigrams of %s: %w", docID, err)
		}
		lists = append(lists, c)
	}
	if len(missing) > 0 {
		e.logger.Warn("relevant documents not found", "doc_ids", missing)
	}
	return lists, missing, nil
}

// heavier ranks first; equal weights order by ascending name.
func heavier(a, b Term) bool {
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	return a.Bigram < b.Bigram
}
