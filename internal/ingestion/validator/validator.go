// Package validator checks ingest requests before anything is stored.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samuelharden/xapian/internal/indexer/tokenizer"
	"github.com/samuelharden/xapian/internal/ingestion"
)

const (
	maxTitleLength      = 1024
	maxBodyLength       = 1 << 20
	maxDocumentIDLength = 128
	maxIdempotencyKey   = 255
)

// ValidationError holds one message per rejected field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest trims req in place and reports every invalid field.
// A body must yield at least one indexable term.
func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	errs := make(map[string]string)
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	req.Title = strings.TrimSpace(req.Title)
	req.Body = strings.TrimSpace(req.Body)

	switch {
	case len(req.DocumentID) > maxDocumentIDLength:
		errs["document_id"] = fmt.Sprintf("must be at most %d characters", maxDocumentIDLength)
	case strings.ContainsAny(req.DocumentID, ", \t\n"):
		// IDs are passed comma-separated to the expand endpoint.
		errs["document_id"] = "must not contain commas or whitespace"
	}

	if req.Title == "" {
		errs["title"] = "is required"
	} else if len(req.Title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("must be at most %d characters", maxTitleLength)
	}

	switch {
	case req.Body == "":
		errs["body"] = "is required"
	case len(req.Body) > maxBodyLength:
		errs["body"] = fmt.Sprintf("must be at most %d bytes", maxBodyLength)
	case len(tokenizer.Tokenize(req.Title+" "+req.Body)) == 0:
		errs["body"] = "contains no indexable terms"
	}

	if len(req.IdempotencyKey) > maxIdempotencyKey {
		errs["idempotency_key"] = fmt.Sprintf("must be at most %d characters", maxIdempotencyKey)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
