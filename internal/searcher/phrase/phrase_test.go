package phrase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelharden/xapian/internal/bigram"
	apperrors "github.com/samuelharden/xapian/pkg/errors"
)

type sourceFunc func(ctx context.Context) (bigram.CollectionFreqCursor, error)

func (f sourceFunc) AllBigrams(ctx context.Context) (bigram.CollectionFreqCursor, error) {
	return f(ctx)
}

// twoSources mimics an engine with a memory index and one segment.
func twoSources() Source {
	return sourceFunc(func(context.Context) (bigram.CollectionFreqCursor, error) {
		mem := bigram.NewIndexList([]bigram.Entry{
			{Name: "new york", TermFreq: 2, CollectionFreq: 3},
			{Name: "york city", TermFreq: 1, CollectionFreq: 1},
		})
		seg := bigram.NewIndexList([]bigram.Entry{
			{Name: "new york", TermFreq: 1, CollectionFreq: 1},
			{Name: "york hall", TermFreq: 1, CollectionFreq: 2},
			{Name: "york post", TermFreq: 2, CollectionFreq: 2},
		})
		return bigram.NewUnion(mem, seg), nil
	})
}

func TestCheckFoundPhrase(t *testing.T) {
	res, err := New(twoSources()).Check(context.Background(), "New York City")
	require.NoError(t, err)
	assert.True(t, res.Possible)
	assert.Equal(t, []BigramHit{
		{Bigram: "new york", Found: true, TermFreq: 3, CollectionFreq: 4},
		{Bigram: "york city", Found: true, TermFreq: 1, CollectionFreq: 1},
	}, res.Bigrams)
}

func TestCheckKeepsPhraseOrder(t *testing.T) {
	res, err := New(twoSources()).Check(context.Background(), "york post new york")
	require.NoError(t, err)
	assert.False(t, res.Possible)
	require.Len(t, res.Bigrams, 3)
	assert.Equal(t, "york post", res.Bigrams[0].Bigram)
	assert.True(t, res.Bigrams[0].Found)
	assert.Equal(t, "post new", res.Bigrams[1].Bigram)
	assert.False(t, res.Bigrams[1].Found)
	assert.Equal(t, "new york", res.Bigrams[2].Bigram)
	assert.True(t, res.Bigrams[2].Found)
}

func TestCheckPastEnd(t *testing.T) {
	res, err := New(twoSources()).Check(context.Background(), "zebra crossing")
	require.NoError(t, err)
	assert.False(t, res.Possible)
	assert.False(t, res.Bigrams[0].Found)
}

func TestCheckRejectsSingleWord(t *testing.T) {
	_, err := New(twoSources()).Check(context.Background(), "the york")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestCheckSourceError(t *testing.T) {
	failing := sourceFunc(func(ctx context.Context) (bigram.CollectionFreqCursor, error) {
		return nil, context.Canceled
	})
	_, err := New(failing).Check(context.Background(), "new york")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSuggest(t *testing.T) {
	tests := []struct {
		name  string
		term  string
		limit int
		want  []string
	}{
		{"by frequency then name", "york", 10, []string{"hall", "post", "city"}},
		{"limit", "York", 2, []string{"hall", "post"}},
		{"last word of a phrase", "new york", 1, []string{"hall"}},
		{"first term", "new", 0, []string{"york"}},
		{"unknown", "zebra", 5, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(twoSources()).Suggest(context.Background(), tt.term, tt.limit)
			require.NoError(t, err)
			next := make([]string, len(got))
			for i, s := range got {
				next[i] = s.Next
			}
			assert.Equal(t, tt.want, next)
		})
	}
}

func TestSuggestCarriesFrequencies(t *testing.T) {
	got, err := New(twoSources()).Suggest(context.Background(), "new", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Suggestion{Next: "york", Bigram: "new york", TermFreq: 3, CollectionFreq: 4}, got[0])
}

func TestSuggestRejectsStopWords(t *testing.T) {
	_, err := New(twoSources()).Suggest(context.Background(), "the", 5)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}
