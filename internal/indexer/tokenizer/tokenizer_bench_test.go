package tokenizer

import (
	"fmt"
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Query expansion suggests word pairs drawn from documents the user
        judged relevant. Each document keeps a sorted list of its adjacent word
        pairs, and the lists are merged so that statistics for one pair arrive
        together. Rare pairs that recur across the relevant set weigh the most.`,
	"long": strings.Repeat(`Information retrieval systems combine tokenisation, stemming
        and stop word removal to normalise text into searchable terms. Adjacent
        terms form bigrams whose document and collection frequencies drive
        phrase checks, next word suggestions and relevance feedback. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Tokenize(text)
			}
		})
	}
}

func BenchmarkBigramCounts(b *testing.B) {
	for name, text := range sampleTexts {
		tokens := Tokenize(text)
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = BigramCounts(tokens)
			}
		})
	}
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	baseWord := "bigram expansion relevance feedback suggestion "
	for _, size := range []int{10, 100, 1000, 5000} {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Tokenize(text)
			}
		})
	}
}
