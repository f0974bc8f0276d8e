// Package shard spreads documents over a fixed set of index engines, each
// with its own data directory, and serves bigram cursors that span them.
package shard

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/samuelharden/xapian/internal/indexer"
	"github.com/samuelharden/xapian/pkg/config"
	apperrors "github.com/samuelharden/xapian/pkg/errors"
)

// Router owns one engine per shard. The set of shards is fixed when the
// router is built, so lookups need no locking.
type Router struct {
	engines []*indexer.Engine
	logger  *slog.Logger
}

// NewRouter opens numShards engines in parallel under baseCfg.DataDir, one
// "shard-N" directory each. Fewer than one shard is treated as one.
func NewRouter(baseCfg config.IndexerConfig, numShards int) (*Router, error) {
	numShards = max(numShards, 1)
	r := &Router{
		engines: make([]*indexer.Engine, numShards),
		logger:  slog.Default().With("component", "shard-router"),
	}
	var g errgroup.Group
	for id := range r.engines {
		cfg := baseCfg
		cfg.DataDir = filepath.Join(baseCfg.DataDir, fmt.Sprintf("shard-%d", id))
		g.Go(func() error {
			engine, err := indexer.NewEngine(cfg)
			if err != nil {
				return fmt.Errorf("opening shard %d: %w", id, err)
			}
			r.engines[id] = engine
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.Close()
		return nil, err
	}
	r.logger.Info("shard router ready", "num_shards", numShards, "data_dir", baseCfg.DataDir)
	return r, nil
}

// Route returns the engine of shardID.
func (r *Router) Route(shardID int) (*indexer.Engine, error) {
	if shardID < 0 || shardID >= len(r.engines) {
		return nil, fmt.Errorf("%w: shard %d outside [0, %d)", apperrors.ErrShardUnavailable, shardID, len(r.engines))
	}
	return r.engines[shardID], nil
}

// GetAllEngines returns the engines keyed by shard ID.
func (r *Router) GetAllEngines() map[int]*indexer.Engine {
	out := make(map[int]*indexer.Engine, len(r.engines))
	for id, engine := range r.engines {
		out[id] = engine
	}
	return out
}

// ShardFor hashes docID onto a shard. Events that arrive without a usable
// shard ID are placed with it.
func (r *Router) ShardFor(docID string) int {
	return Assign(docID, len(r.engines))
}

// Assign is the placement rule shared by ingestion and the indexer, so a
// document lands on the same shard whichever side picks it.
func Assign(docID string, numShards int) int {
	if numShards <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(docID) % uint64(numShards))
}

// Locate returns the shard holding docID. Shards are probed in ID order;
// a document indexed into two shards resolves to the lower ID.
func (r *Router) Locate(docID string) (int, *indexer.Engine, bool) {
	for id, engine := range r.engines {
		if engine.HasDocument(docID) {
			return id, engine, true
		}
	}
	return 0, nil, false
}

// BigramSource exposes the bigram lists of every shard with
// collection-wide statistics.
func (r *Router) BigramSource() *BigramSource {
	return &BigramSource{router: r}
}

func (r *Router) NumShards() int {
	return len(r.engines)
}

// FlushAll writes every shard's memory index to a segment. All shards are
// attempted; their errors are joined.
func (r *Router) FlushAll() error {
	return r.each("flush", (*indexer.Engine).Flush)
}

// Close flushes and closes every shard.
func (r *Router) Close() error {
	return r.each("close", (*indexer.Engine).Close)
}

func (r *Router) each(op string, fn func(*indexer.Engine) error) error {
	var errs []error
	for id, engine := range r.engines {
		if engine == nil {
			continue
		}
		if err := fn(engine); err != nil {
			r.logger.Error(op+" failed", "shard_id", id, "error", err)
			errs = append(errs, fmt.Errorf("shard %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
