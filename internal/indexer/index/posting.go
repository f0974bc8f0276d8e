package index

import "github.com/samuelharden/xapian/internal/bigram"

type Posting struct {
	DocID     string
	Frequency int
	Positions []int
}

type PostingList []Posting

type TermEntry struct {
	Term     string
	Postings PostingList
}

type DocStats struct {
	DocID    string
	DocLen   int
	TermFreq int
}

// DocBigrams is the bigram list of one document. Bigrams are sorted by name
// and carry only Name and WDF.
type DocBigrams struct {
	DocID   string         `json:"doc_id"`
	DocLen  int            `json:"doc_len"`
	Bigrams []bigram.Entry `json:"bigrams"`
}

// BigramSnapshot is the bigram half of a flush: the index-wide dictionary
// (TermFreq and CollectionFreq per name) and every document's list, both
// sorted.
type BigramSnapshot struct {
	Dict []bigram.Entry
	Docs []DocBigrams
}

func (s BigramSnapshot) Empty() bool {
	return len(s.Dict) == 0 && len(s.Docs) == 0
}
