package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelharden/xapian/internal/ingestion"
)

func TestValidateIngestRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     ingestion.IngestRequest
		invalid []string
	}{
		{"valid", ingestion.IngestRequest{Title: "New York", Body: "new york city"}, nil},
		{"missing title and body", ingestion.IngestRequest{}, []string{"title", "body"}},
		{"stop words only", ingestion.IngestRequest{Title: "the", Body: "and of the"}, []string{"body"}},
		{"comma in id", ingestion.IngestRequest{DocumentID: "a,b", Title: "t", Body: "york city"}, []string{"document_id"}},
		{"long id", ingestion.IngestRequest{DocumentID: strings.Repeat("x", 129), Title: "t", Body: "york city"}, []string{"document_id"}},
		{"long key", ingestion.IngestRequest{Title: "t", Body: "york", IdempotencyKey: strings.Repeat("k", 256)}, []string{"idempotency_key"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIngestRequest(&tt.req)
			if tt.invalid == nil {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			for _, field := range tt.invalid {
				assert.Contains(t, verr.Fields, field)
			}
			assert.Len(t, verr.Fields, len(tt.invalid))
		})
	}
}

func TestValidateTrims(t *testing.T) {
	req := ingestion.IngestRequest{DocumentID: " doc-1 ", Title: " New York ", Body: "  city "}
	require.NoError(t, ValidateIngestRequest(&req))
	assert.Equal(t, "doc-1", req.DocumentID)
	assert.Equal(t, "New York", req.Title)
	assert.Equal(t, "city", req.Body)
}

func TestValidationErrorIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"title": "is required", "body": "is required"}}
	assert.Equal(t, "body: is required; title: is required", err.Error())
}
