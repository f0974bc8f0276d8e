package shard

import (
	"context"
	"fmt"

	"github.com/samuelharden/xapian/internal/bigram"
	apperrors "github.com/samuelharden/xapian/pkg/errors"
)

// BigramSource serves bigram cursors across all shards. Document lists carry
// term frequencies and a database size summed over every shard, so weights
// do not depend on which shard a relevant document landed in.
type BigramSource struct {
	router *Router
}

// DocumentList returns the bigram list of docID from the shard holding it.
func (s *BigramSource) DocumentList(ctx context.Context, docID string) (bigram.StatsCursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shardID, engine, ok := s.router.Locate(docID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, docID)
	}
	c, ok := engine.BigramList(docID, s)
	if !ok {
		// flushed away between Locate and BigramList
		return nil, fmt.Errorf("%w: %s on shard %d", apperrors.ErrDocumentNotFound, docID, shardID)
	}
	return c, nil
}

// AllBigrams returns the union of every shard's index-wide list.
func (s *BigramSource) AllBigrams(ctx context.Context) (bigram.CollectionFreqCursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sources := make([]bigram.CollectionFreqCursor, 0, len(s.router.engines))
	for _, engine := range s.router.engines {
		sources = append(sources, engine.AllBigrams())
	}
	return bigram.NewUnion(sources...), nil
}

// TermFreq returns the number of documents containing name across shards.
func (s *BigramSource) TermFreq(name string) uint64 {
	tf, _ := s.BigramFreq(name)
	return tf
}

// BigramFreq sums document and collection frequency across shards.
func (s *BigramSource) BigramFreq(name string) (termFreq, collFreq uint64) {
	for _, engine := range s.router.engines {
		tf, cf := engine.BigramFreq(name)
		termFreq += tf
		collFreq += cf
	}
	return termFreq, collFreq
}

// DocCount returns the number of documents across shards.
func (s *BigramSource) DocCount() uint64 {
	var n uint64
	for _, engine := range s.router.engines {
		n += engine.DocCount()
	}
	return n
}
