package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelharden/xapian/internal/indexer/index"
)

func postings(pairs ...any) index.PostingList {
	var pl index.PostingList
	for i := 0; i < len(pairs); i += 2 {
		pl = append(pl, index.Posting{DocID: pairs[i].(string), Frequency: pairs[i+1].(int)})
	}
	return pl
}

func sameLength(string) DocInfo { return DocInfo{DocLength: 10} }

func TestRankOrdersByScore(t *testing.T) {
	got := Rank(map[string]index.PostingList{
		"york": postings("a", 1, "b", 3),
	}, RankParams{TotalDocs: 10, AvgDocLength: 10}, sameLength, 10)

	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].DocID)
	assert.Equal(t, "a", got[1].DocID)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestRankTruncatesAndBreaksTies(t *testing.T) {
	got := Rank(map[string]index.PostingList{
		"york": postings("c", 1, "a", 1, "b", 1),
	}, RankParams{TotalDocs: 10, AvgDocLength: 10}, sameLength, 2)

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].DocID)
	assert.Equal(t, "b", got[1].DocID)
}

func TestRankRareTermsWeighMore(t *testing.T) {
	got := Rank(map[string]index.PostingList{
		"common": postings("a", 1, "b", 1, "c", 1, "d", 1),
		"rare":   postings("d", 1),
	}, RankParams{TotalDocs: 4, AvgDocLength: 10}, sameLength, 0)

	require.Len(t, got, 4)
	assert.Equal(t, "d", got[0].DocID)
}

func TestRankZeroAverageLength(t *testing.T) {
	got := Rank(map[string]index.PostingList{
		"york": postings("a", 1),
	}, RankParams{TotalDocs: 1}, sameLength, 5)
	require.Len(t, got, 1)
	assert.Zero(t, got[0].Score)
}

func TestRankUsesCollectionDocFreq(t *testing.T) {
	pl := map[string]index.PostingList{
		"york": postings("a", 1),
		"post": postings("a", 1),
	}
	local := Rank(pl, RankParams{TotalDocs: 10, AvgDocLength: 10}, sameLength, 1)
	global := Rank(pl, RankParams{
		TotalDocs:    10,
		AvgDocLength: 10,
		DocFreq:      map[string]int{"york": 9, "post": 9},
	}, sameLength, 1)

	require.Len(t, local, 1)
	require.Len(t, global, 1)
	assert.Less(t, global[0].Score, local[0].Score)
}
