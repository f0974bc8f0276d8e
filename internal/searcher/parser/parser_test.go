package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseModes(t *testing.T) {
	tests := []struct {
		name  string
		query string
		mode  Mode
		terms []string
	}{
		{"default all", "new york", MatchAll, []string{"new", "york"}},
		{"or", "tabloid OR cathedral", MatchAny, []string{"tabloid", "cathedral"}},
		{"last operator wins", "a1 OR b2 AND c3", MatchAll, []string{"a1", "b2", "c3"}},
		{"duplicates dropped", "york York YORK", MatchAll, []string{"york"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Parse(tt.query)
			assert.Equal(t, tt.mode, plan.Mode)
			assert.Equal(t, tt.terms, plan.Terms)
			assert.Equal(t, tt.query, plan.RawQuery)
		})
	}
}

func TestParseExclusions(t *testing.T) {
	plan := Parse("york NOT new -post")
	assert.Equal(t, []string{"york"}, plan.Terms)
	assert.Equal(t, []string{"new", "post"}, plan.ExcludeTerms)
	assert.Empty(t, plan.Phrases)
}

func TestParsePhrase(t *testing.T) {
	plan := Parse(`"new york" post`)
	assert.Equal(t, []string{"new", "york", "post"}, plan.Terms)
	assert.Equal(t, [][]string{{"new york"}}, plan.Phrases)
}

func TestParsePhraseBigramsSorted(t *testing.T) {
	plan := Parse(`"york post york"`)
	assert.Equal(t, []string{"york", "post"}, plan.Terms)
	assert.Equal(t, [][]string{{"post york", "york post"}}, plan.Phrases)
}

func TestParseNegatedPhrase(t *testing.T) {
	plan := Parse(`york -"new york"`)
	assert.Equal(t, []string{"york"}, plan.Terms)
	assert.Empty(t, plan.ExcludeTerms)
	assert.Equal(t, [][]string{{"new york"}}, plan.ExcludePhrases)

	plan = Parse(`york NOT "new york"`)
	assert.Equal(t, [][]string{{"new york"}}, plan.ExcludePhrases)
}

func TestParseSingleWordPhraseIsATerm(t *testing.T) {
	plan := Parse(`"york"`)
	assert.Equal(t, []string{"york"}, plan.Terms)
	assert.Empty(t, plan.Phrases)
}

func TestParseUnterminatedQuote(t *testing.T) {
	plan := Parse(`post "new york`)
	assert.Equal(t, []string{"post", "new", "york"}, plan.Terms)
	assert.Equal(t, [][]string{{"new york"}}, plan.Phrases)
}

func TestParseEmpty(t *testing.T) {
	for _, q := range []string{"", "   ", `""`, "NOT", "the of"} {
		plan := Parse(q)
		assert.Empty(t, plan.Terms, q)
		assert.Empty(t, plan.Phrases, q)
	}
}

func TestRequiredBigramsMerged(t *testing.T) {
	plan := Parse(`"york post" "new york"`)
	assert.Equal(t, []string{"new york", "york post"}, plan.RequiredBigrams())
}
