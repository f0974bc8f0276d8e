package publisher

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelharden/xapian/internal/indexer/shard"
	"github.com/samuelharden/xapian/internal/ingestion"
	apperrors "github.com/samuelharden/xapian/pkg/errors"
	"github.com/samuelharden/xapian/pkg/kafka"
	"github.com/samuelharden/xapian/pkg/resilience"
)

type memStore struct {
	docs    map[string]Document
	deleted []string
}

func newMemStore() *memStore { return &memStore{docs: make(map[string]Document)} }

func (s *memStore) Insert(_ context.Context, doc Document) error {
	if _, ok := s.docs[doc.ID]; ok {
		return apperrors.New(apperrors.ErrConflict, http.StatusConflict, "exists")
	}
	s.docs[doc.ID] = doc
	return nil
}

func (s *memStore) FindByIdempotencyKey(_ context.Context, key string) (*ingestion.IngestResponse, error) {
	for _, d := range s.docs {
		if d.IdempotencyKey == key {
			return &ingestion.IngestResponse{DocumentID: d.ID, Status: ingestion.StatusPending, ShardID: d.ShardID}, nil
		}
	}
	return nil, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	delete(s.docs, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type fakeProducer struct {
	events []kafka.Event
	err    error
}

func (p *fakeProducer) Publish(_ context.Context, e kafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func newPublisher(store Store, prod EventPublisher) *Publisher {
	p := New(store, prod, 4)
	p.retry = resilience.RetryConfig{MaxAttempts: 2, InitialDelay: 1}
	return p
}

func TestIngestPublishesEvent(t *testing.T) {
	store, prod := newMemStore(), &fakeProducer{}
	resp, err := newPublisher(store, prod).Ingest(context.Background(), &ingestion.IngestRequest{
		DocumentID: "doc-1", Title: "New York", Body: "new york city",
	})
	require.NoError(t, err)
	assert.Equal(t, "doc-1", resp.DocumentID)
	assert.Equal(t, ingestion.StatusPending, resp.Status)
	assert.Equal(t, shard.Assign("doc-1", 4), resp.ShardID)

	require.Len(t, prod.events, 1)
	assert.Equal(t, "doc-1", prod.events[0].Key)
	ev := prod.events[0].Value.(ingestion.IngestEvent)
	assert.Equal(t, resp.ShardID, ev.ShardID)
	assert.Equal(t, "new york city", ev.Body)
	assert.Len(t, store.docs["doc-1"].ContentHash, 64)
}

func TestIngestMintsDocumentID(t *testing.T) {
	resp, err := newPublisher(newMemStore(), &fakeProducer{}).Ingest(context.Background(), &ingestion.IngestRequest{
		Title: "t", Body: "york",
	})
	require.NoError(t, err)
	assert.Len(t, resp.DocumentID, 36)
}

func TestIngestIdempotent(t *testing.T) {
	store, prod := newMemStore(), &fakeProducer{}
	pub := newPublisher(store, prod)
	req := ingestion.IngestRequest{Title: "t", Body: "york", IdempotencyKey: "k1"}
	first, err := pub.Ingest(context.Background(), &req)
	require.NoError(t, err)
	second, err := pub.Ingest(context.Background(), &req)
	require.NoError(t, err)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.True(t, second.Duplicate)
	assert.Len(t, prod.events, 1)
}

func TestIngestConflict(t *testing.T) {
	pub := newPublisher(newMemStore(), &fakeProducer{})
	req := ingestion.IngestRequest{DocumentID: "doc-1", Title: "t", Body: "york"}
	_, err := pub.Ingest(context.Background(), &req)
	require.NoError(t, err)
	_, err = pub.Ingest(context.Background(), &req)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, http.StatusConflict, apperrors.HTTPStatusCode(err))
}

func TestIngestWithdrawsOnPublishFailure(t *testing.T) {
	store := newMemStore()
	pub := newPublisher(store, &fakeProducer{err: errors.New("broker down")})
	_, err := pub.Ingest(context.Background(), &ingestion.IngestRequest{DocumentID: "doc-1", Title: "t", Body: "york"})
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))
	assert.Empty(t, store.docs)
	assert.Equal(t, []string{"doc-1"}, store.deleted)
}
