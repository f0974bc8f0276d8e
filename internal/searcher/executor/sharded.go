package executor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/samuelharden/xapian/internal/indexer"
	"github.com/samuelharden/xapian/internal/indexer/index"
	"github.com/samuelharden/xapian/internal/searcher/parser"
	"github.com/samuelharden/xapian/internal/searcher/ranker"
	"github.com/samuelharden/xapian/pkg/config"
	apperrors "github.com/samuelharden/xapian/pkg/errors"
	"github.com/samuelharden/xapian/pkg/tracing"
)

type ShardResult struct {
	ShardID   int
	Postings  map[string]index.PostingList
	TotalDocs int64
	AvgDocLen float64
	Engine    *indexer.Engine
}

type ShardedExecutor struct {
	engines      map[int]*indexer.Engine
	sem          *semaphore.Weighted
	shardTimeout time.Duration
	logger       *slog.Logger
	search       func(eng *indexer.Engine, term string) (index.PostingList, error)
}

type Option func(*ShardedExecutor)

// WithLimits caps concurrent queries at cfg.MaxConcurrentQueries and gives
// each shard cfg.TimeoutPerShard. Zero values leave the limit off. A query
// arriving while every slot is taken fails at once with
// ErrShardUnavailable rather than queueing.
func WithLimits(cfg config.SearchConfig) Option {
	return func(se *ShardedExecutor) {
		if cfg.MaxConcurrentQueries > 0 {
			se.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentQueries))
		}
		se.shardTimeout = cfg.TimeoutPerShard
	}
}

func NewSharded(engines map[int]*indexer.Engine, opts ...Option) *ShardedExecutor {
	se := &ShardedExecutor{
		engines: engines,
		logger:  slog.Default().With("component", "sharded-executor"),
		search:  (*indexer.Engine).Search,
	}
	for _, opt := range opts {
		opt(se)
	}
	return se
}

func (se *ShardedExecutor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	if len(plan.Terms) == 0 {
		return &SearchResult{
			Query:   plan.RawQuery,
			Results: []ranker.ScoredDoc{},
		}, nil
	}
	if se.sem != nil {
		if !se.sem.TryAcquire(1) {
			return nil, fmt.Errorf("%w: all query slots busy", apperrors.ErrShardUnavailable)
		}
		defer se.sem.Release(1)
	}
	ctx, span := tracing.StartChild(ctx, "execute")
	defer span.End()
	shardResults, err := se.fanOut(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("shard fan-out: %w", err)
	}
	merged := make(map[string]index.PostingList)
	termStats := make(map[string]int)
	owner := make(map[string]*indexer.Engine)
	var totalDocs int64
	var totalTokens float64
	for _, sr := range shardResults {
		totalDocs += sr.TotalDocs
		totalTokens += sr.AvgDocLen * float64(sr.TotalDocs)
		for term, postings := range sr.Postings {
			merged[term] = append(merged[term], postings...)
			termStats[term] += len(postings)
			for _, p := range postings {
				owner[p.DocID] = sr.Engine
			}
		}
	}

	docs := matchDocs(plan, merged)
	for _, term := range plan.ExcludeTerms {
		for _, p := range merged[term] {
			delete(docs, p.DocID)
		}
	}
	phraseMisses := checkPhrases(plan, docs, owner)

	scoring := make(map[string]index.PostingList, len(plan.Terms))
	for _, term := range plan.Terms {
		var kept index.PostingList
		for _, p := range merged[term] {
			if _, ok := docs[p.DocID]; ok {
				kept = append(kept, p)
			}
		}
		if len(kept) > 0 {
			scoring[term] = kept
		}
	}
	params := ranker.RankParams{TotalDocs: totalDocs, DocFreq: termStats}
	if totalDocs > 0 {
		params.AvgDocLength = totalTokens / float64(totalDocs)
	}
	docInfo := func(docID string) ranker.DocInfo {
		if engine, ok := owner[docID]; ok {
			return ranker.DocInfo{DocLength: engine.GetDocLength(docID)}
		}
		return ranker.DocInfo{}
	}
	ranked := ranker.Rank(scoring, params, docInfo, limit)
	span.SetAttr("shards", len(shardResults))
	span.SetAttr("candidates", len(docs))
	span.SetAttr("phrase_misses", phraseMisses)
	se.logger.Debug("sharded query executed",
		"query", plan.RawQuery,
		"mode", plan.Mode,
		"shards_queried", len(shardResults),
		"candidates", len(docs),
		"phrase_misses", phraseMisses,
		"results", len(ranked),
	)
	return &SearchResult{
		Query:        plan.RawQuery,
		Mode:         plan.Mode.String(),
		TotalHits:    len(docs),
		Results:      ranked,
		TermStats:    termStats,
		PhraseMisses: phraseMisses,
	}, nil
}

// fanOut collects the postings of every query term from each shard in
// parallel. A failing or slow shard is logged and left out; cancellation of
// ctx aborts the whole fan-out.
func (se *ShardedExecutor) fanOut(ctx context.Context, plan *parser.QueryPlan) ([]ShardResult, error) {
	allTerms := slices.Concat(plan.Terms, plan.ExcludeTerms)
	results := make([]ShardResult, len(se.engines))
	failed := make([]error, len(se.engines))
	g, gctx := errgroup.WithContext(ctx)
	i := 0
	for shardID, engine := range se.engines {
		idx, sid, eng := i, shardID, engine
		i++
		g.Go(func() error {
			shardCtx := gctx
			if se.shardTimeout > 0 {
				var cancel context.CancelFunc
				shardCtx, cancel = context.WithTimeout(gctx, se.shardTimeout)
				defer cancel()
			}
			sr := ShardResult{
				ShardID:   sid,
				Postings:  make(map[string]index.PostingList),
				TotalDocs: eng.GetTotalDocs(),
				AvgDocLen: eng.GetAvgDocLength(),
				Engine:    eng,
			}
			for _, term := range allTerms {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := shardCtx.Err(); err != nil {
					failed[idx] = fmt.Errorf("shard %d: %w: %w", sid, apperrors.ErrTimeout, err)
					return nil
				}
				postings, err := se.search(eng, term)
				if err != nil {
					failed[idx] = fmt.Errorf("shard %d, term %q: %w", sid, term, err)
					return nil
				}
				if len(postings) > 0 {
					sr.Postings[term] = postings
				}
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := shardCtx.Err(); err != nil {
				failed[idx] = fmt.Errorf("shard %d answered late: %w: %w", sid, apperrors.ErrTimeout, err)
				return nil
			}
			results[idx] = sr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	shardResults := make([]ShardResult, 0, len(se.engines))
	for idx, sr := range results {
		if failed[idx] != nil {
			se.logger.Error("shard query failed", "error", failed[idx])
			continue
		}
		shardResults = append(shardResults, sr)
	}
	if len(shardResults) == 0 && len(se.engines) > 0 {
		return nil, fmt.Errorf("%w: all %d shards failed", apperrors.ErrShardUnavailable, len(se.engines))
	}
	return shardResults, nil
}
