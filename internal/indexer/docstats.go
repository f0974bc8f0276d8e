package indexer

import "sync"

// docStats tracks token counts per document for length normalisation.
// Re-indexing a document replaces its count rather than adding to it.
type docStats struct {
	mu     sync.RWMutex
	length map[string]int
	tokens int64
}

func newDocStats() *docStats {
	return &docStats{length: make(map[string]int)}
}

func (s *docStats) record(docID string, n int) {
	s.mu.Lock()
	s.tokens += int64(n - s.length[docID])
	s.length[docID] = n
	s.mu.Unlock()
}

func (s *docStats) lengthOf(docID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.length[docID]
}

func (s *docStats) count() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.length))
}

func (s *docStats) average() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.length) == 0 {
		return 0
	}
	return float64(s.tokens) / float64(len(s.length))
}

func (e *Engine) GetDocLength(docID string) int { return e.stats.lengthOf(docID) }

func (e *Engine) GetAvgDocLength() float64 { return e.stats.average() }

func (e *Engine) GetTotalDocs() int64 { return e.stats.count() }
