// Package ingestion defines the document intake API and the Kafka event the
// indexer consumes.
package ingestion

import "time"

// IngestRequest is the body of POST /api/v1/documents. DocumentID is
// optional; one is minted when absent. Callers that later pass documents to
// query expansion by ID usually supply their own.
type IngestRequest struct {
	DocumentID     string `json:"document_id,omitempty"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	ShardID    int    `json:"shard_id"`
	Duplicate  bool   `json:"duplicate,omitempty"`
}

// Document statuses as stored in the documents table.
const (
	StatusPending = "PENDING"
	StatusIndexed = "INDEXED"
	StatusFailed  = "FAILED"
)

// IngestEvent is the Kafka message payload produced when a document is
// ready for indexing.
type IngestEvent struct {
	DocumentID string    `json:"document_id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	ShardID    int       `json:"shard_id"`
	IngestedAt time.Time `json:"ingested_at"`
}
