package publisher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/lib/pq"

	"github.com/samuelharden/xapian/internal/ingestion"
	apperrors "github.com/samuelharden/xapian/pkg/errors"
	"github.com/samuelharden/xapian/pkg/postgres"
)

// uniqueViolation is the SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id              TEXT PRIMARY KEY,
	title           TEXT NOT NULL,
	content_hash    TEXT NOT NULL,
	content_size    INTEGER NOT NULL,
	shard_id        INTEGER NOT NULL,
	idempotency_key TEXT UNIQUE,
	status          TEXT NOT NULL DEFAULT 'PENDING',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	indexed_at      TIMESTAMPTZ
)`

// Document is the row written for an accepted request.
type Document struct {
	ID             string
	Title          string
	ContentHash    string
	ContentSize    int
	ShardID        int
	IdempotencyKey string
}

// PGStore keeps document metadata in the documents table that the indexer
// later marks INDEXED or FAILED.
type PGStore struct {
	db *postgres.Client
}

func NewPGStore(db *postgres.Client) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}
	return nil
}

// Insert stores doc as PENDING. A clash on the document ID or idempotency
// key is reported as ErrConflict.
func (s *PGStore) Insert(ctx context.Context, doc Document) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO documents (id, title, content_hash, content_size, shard_id, idempotency_key, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			doc.ID, doc.Title, doc.ContentHash, doc.ContentSize, doc.ShardID,
			nullableString(doc.IdempotencyKey), ingestion.StatusPending)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return apperrors.Newf(apperrors.ErrConflict, http.StatusConflict, "document %q already exists", doc.ID)
		}
		return err
	})
}

// FindByIdempotencyKey returns the document created under key, or nil.
func (s *PGStore) FindByIdempotencyKey(ctx context.Context, key string) (*ingestion.IngestResponse, error) {
	var resp ingestion.IngestResponse
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, status, shard_id FROM documents WHERE idempotency_key = $1`, key,
	).Scan(&resp.DocumentID, &resp.Status, &resp.ShardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying by idempotency key: %w", err)
	}
	return &resp, nil
}

// Delete removes a document that never reached the indexer.
func (s *PGStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM documents WHERE id = $1 AND status = $2`, id, ingestion.StatusPending); err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	return nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
