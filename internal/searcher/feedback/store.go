// Package feedback persists relevance judgments: which documents a user
// marked as relevant for a query. Query expansion reads them back as its
// relevant set when a request names a query instead of documents.
package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samuelharden/xapian/internal/indexer/tokenizer"
	apperrors "github.com/samuelharden/xapian/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS relevance_judgments (
	query      TEXT        NOT NULL,
	doc_id     TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (query, doc_id)
)`

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "feedback-store"),
	}
}

// EnsureSchema creates the judgments table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating relevance_judgments: %w", err)
	}
	return nil
}

// Mark records docID as relevant for query. Marking twice refreshes the
// judgment's timestamp.
func (s *Store) Mark(ctx context.Context, query, docID string) error {
	key, err := NormalizeQuery(query)
	if err != nil {
		return err
	}
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return fmt.Errorf("%w: doc_id is required", apperrors.ErrInvalidInput)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO relevance_judgments (query, doc_id) VALUES ($1, $2)
		 ON CONFLICT (query, doc_id) DO UPDATE SET created_at = NOW()`,
		key, docID,
	)
	if err != nil {
		return fmt.Errorf("storing judgment for %s: %w", docID, err)
	}
	s.logger.Debug("relevance judgment stored", "query", key, "doc_id", docID)
	return nil
}

// RelevantDocs returns up to limit documents judged relevant for query,
// most recent first.
func (s *Store) RelevantDocs(ctx context.Context, query string, limit int) ([]string, error) {
	key, err := NormalizeQuery(query)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id FROM relevance_judgments
		 WHERE query = $1
		 ORDER BY created_at DESC, doc_id
		 LIMIT $2`,
		key, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying judgments: %w", err)
	}
	defer rows.Close()

	docs := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning judgment: %w", err)
		}
		docs = append(docs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading judgments: %w", err)
	}
	return docs, nil
}

// NormalizeQuery reduces a query to its indexed terms so that judgments
// for "New York" and "new york" are shared.
func NormalizeQuery(query string) (string, error) {
	tokens := tokenizer.Tokenize(query)
	if len(tokens) == 0 {
		return "", fmt.Errorf("%w: query %q has no indexable word", apperrors.ErrInvalidInput, query)
	}
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return strings.Join(terms, " "), nil
}
