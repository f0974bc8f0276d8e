// Package tokenizer normalises document and query text into terms and the
// bigrams the index is built from. Text is lower-cased, split at anything
// that is not a letter or digit, stripped of stop words and single
// characters, and suffix-stemmed.
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/samuelharden/xapian/internal/bigram"
)

var stopWords = wordSet(`
	a an and are as at be but by can do each for from had has have he if in
	is it its no not of on or so that the their they this to was were what
	when where which who will with
`)

func wordSet(list string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(list) {
		set[w] = struct{}{}
	}
	return set
}

// Token is a normalised term. Position counts kept terms only, so two
// tokens either side of a stop word are adjacent.
type Token struct {
	Term     string
	Position int
}

// Tokenize returns the terms of text in order.
func Tokenize(text string) []Token {
	tokens := make([]Token, 0, len(text)/8)
	var word strings.Builder
	emit := func() {
		w := word.String()
		word.Reset()
		if len(w) < 2 {
			return
		}
		if _, stop := stopWords[w]; stop {
			return
		}
		if term := stem(w); term != "" {
			tokens = append(tokens, Token{Term: term, Position: len(tokens)})
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			word.WriteRune(unicode.ToLower(r))
			continue
		}
		emit()
	}
	emit()
	return tokens
}

// suffixRule rewrites suffix to replacement when at least keep bytes of
// the word remain. Rules are tried in order and the first that applies
// wins.
type suffixRule struct {
	suffix, replacement string
	keep                int
}

var suffixRules = []suffixRule{
	{"ational", "ate", 2}, {"tional", "tion", 2}, {"encies", "ence", 2},
	{"ances", "ance", 2}, {"ments", "ment", 2}, {"izing", "ize", 2},
	{"ating", "ate", 2}, {"iness", "y", 2}, {"ously", "ous", 2},
	{"ively", "ive", 2}, {"eness", "ene", 2},
	{"tion", "t", 3}, {"sion", "s", 3}, {"ying", "y", 2}, {"ling", "l", 3},
	{"ies", "y", 2}, {"ing", "", 3}, {"ers", "er", 2}, {"est", "", 3},
	{"ful", "", 3}, {"ous", "", 3}, {"ess", "", 3}, {"ble", "", 3},
	{"ed", "", 3}, {"er", "", 3}, {"ly", "", 3}, {"es", "", 3},
	{"ss", "ss", 2}, {"s", "", 3},
}

func stem(word string) string {
	for _, rule := range suffixRules {
		base, ok := strings.CutSuffix(word, rule.suffix)
		if !ok {
			continue
		}
		if stemmed := base + rule.replacement; len(stemmed) >= rule.keep {
			return stemmed
		}
	}
	return word
}

// Bigrams returns the names of adjacent token pairs in text order. Positions
// are assigned after stop-word removal, so the pair spans a dropped word.
func Bigrams(tokens []Token) []string {
	if len(tokens) < 2 {
		return nil
	}
	out := make([]string, 0, len(tokens)-1)
	for i := 1; i < len(tokens); i++ {
		prev, cur := tokens[i-1], tokens[i]
		if cur.Position != prev.Position+1 {
			continue
		}
		out = append(out, bigram.Join(prev.Term, cur.Term))
	}
	return out
}

// BigramCounts counts each bigram of tokens, giving the within-document
// frequencies of a document.
func BigramCounts(tokens []Token) map[string]int {
	names := Bigrams(tokens)
	counts := make(map[string]int, len(names))
	for _, n := range names {
		counts[n]++
	}
	return counts
}
