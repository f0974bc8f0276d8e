// Package parser turns a raw search string into a QueryPlan.
//
// Words are required by default. A bare OR makes any word enough and a bare
// AND switches back; the last one given wins. NOT, or a leading '-', drops
// documents containing the next word or phrase. A "double quoted" run is a
// phrase: its words are required and its bigrams must all occur in the
// document. An unterminated quote runs to the end of the query.
package parser

import (
	"slices"
	"strings"
	"unicode"

	"github.com/samuelharden/xapian/internal/indexer/tokenizer"
)

type Mode int

const (
	MatchAll Mode = iota
	MatchAny
)

func (m Mode) String() string {
	if m == MatchAny {
		return "any"
	}
	return "all"
}

type QueryPlan struct {
	RawQuery     string
	Mode         Mode
	Terms        []string
	ExcludeTerms []string
	// Phrases and ExcludePhrases hold the sorted, distinct bigram names
	// of each quoted phrase of two or more words.
	Phrases        [][]string
	ExcludePhrases [][]string
}

// RequiredBigrams merges the bigrams of every phrase into one sorted,
// distinct list, the order a cursor can be probed in.
func (p *QueryPlan) RequiredBigrams() []string {
	var all []string
	for _, ph := range p.Phrases {
		all = append(all, ph...)
	}
	slices.Sort(all)
	return slices.Compact(all)
}

type field struct {
	text   string
	quoted bool
}

func Parse(query string) *QueryPlan {
	plan := &QueryPlan{RawQuery: query, Mode: MatchAll}
	included := make(map[string]struct{})
	excluded := make(map[string]struct{})
	negate := false
	for _, f := range lex(query) {
		if !f.quoted {
			switch strings.ToUpper(f.text) {
			case "AND":
				plan.Mode = MatchAll
				continue
			case "OR":
				plan.Mode = MatchAny
				continue
			case "NOT", "-":
				negate = true
				continue
			}
			if rest, ok := strings.CutPrefix(f.text, "-"); ok {
				negate = true
				f.text = rest
			}
		}
		tokens := tokenizer.Tokenize(f.text)
		if len(tokens) == 0 {
			negate = false
			continue
		}
		if negate {
			negate = false
			if f.quoted && len(tokens) > 1 {
				if bigrams := phraseBigrams(tokens); len(bigrams) > 0 {
					plan.ExcludePhrases = append(plan.ExcludePhrases, bigrams)
				}
				continue
			}
			for _, tok := range tokens {
				plan.ExcludeTerms = appendOnce(plan.ExcludeTerms, tok.Term, excluded)
			}
			continue
		}
		for _, tok := range tokens {
			plan.Terms = appendOnce(plan.Terms, tok.Term, included)
		}
		if f.quoted {
			if bigrams := phraseBigrams(tokens); len(bigrams) > 0 {
				plan.Phrases = append(plan.Phrases, bigrams)
			}
		}
	}
	return plan
}

func appendOnce(list []string, term string, seen map[string]struct{}) []string {
	if _, dup := seen[term]; dup {
		return list
	}
	seen[term] = struct{}{}
	return append(list, term)
}

func phraseBigrams(tokens []tokenizer.Token) []string {
	names := tokenizer.Bigrams(tokens)
	slices.Sort(names)
	return slices.Compact(names)
}

// lex splits query on whitespace, keeping quoted runs whole.
func lex(query string) []field {
	var out []field
	s := query
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		if s == "" {
			return out
		}
		if s[0] == '"' {
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				return append(out, field{text: s[1:], quoted: true})
			}
			out = append(out, field{text: s[1 : end+1], quoted: true})
			s = s[end+2:]
			continue
		}
		i := strings.IndexFunc(s, func(r rune) bool { return r == '"' || unicode.IsSpace(r) })
		if i < 0 {
			i = len(s)
		}
		out = append(out, field{text: s[:i]})
		s = s[i:]
	}
}
