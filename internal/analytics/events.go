package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventCacheHit   EventType = "cache_hit"
	EventCacheMiss  EventType = "cache_miss"
	EventIndexDoc   EventType = "index_document"
	EventZeroResult EventType = "zero_result"
	EventExpand     EventType = "expand"
	EventSuggest    EventType = "suggest"
)

type SearchEvent struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query"`
	Terms      []string  `json:"terms"`
	TotalHits  int       `json:"total_hits"`
	Returned   int       `json:"returned"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	ShardCount int       `json:"shard_count"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
}

// ExpandEvent records one query expansion. Bigrams holds the returned
// candidates, best first.
type ExpandEvent struct {
	Type         EventType `json:"type"`
	Query        string    `json:"query,omitempty"`
	Scheme       string    `json:"scheme"`
	RelevantDocs int       `json:"relevant_docs"`
	Bigrams      []string  `json:"bigrams"`
	LatencyMs    int64     `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id"`
}

// SuggestEvent records one next-word suggestion request.
type SuggestEvent struct {
	Type      EventType `json:"type"`
	Term      string    `json:"term"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

type IndexEvent struct {
	Type        EventType `json:"type"`
	DocumentID  string    `json:"document_id"`
	ShardID     int       `json:"shard_id"`
	TokenCount  int       `json:"token_count"`
	BigramCount int       `json:"bigram_count"`
	SizeBytes   int       `json:"size_bytes"`
	LatencyMs   int64     `json:"latency_ms"`
	Timestamp   time.Time `json:"timestamp"`
}
