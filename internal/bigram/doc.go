// Package bigram defines the cursor protocol used to walk the bigrams (pairs
// of adjacent terms) of a document or of a whole index.
//
// A cursor starts before its first bigram; Next or SkipTo must be called
// before any accessor. Names are visited in ascending byte order, the same
// order for every variant, so cursors over the same index can be merged and
// sought consistently.
//
// # Replacement
//
// Next and SkipTo return nil when the receiver stays in use. A composite
// cursor may instead return a replacement: the caller takes ownership of it
// and must not touch the old cursor again. Advance and Seek apply this rule
// and keep the caller's static cursor type:
//
//	c := bigram.MergeStats(lists...)
//	for c = bigram.Advance(c); !c.AtEnd(); c = bigram.Advance(c) {
//	    c.AccumulateStats(stats)
//	}
//
// # Capabilities
//
// Statistics accumulation (StatsCursor) and collection frequency
// (CollectionFreqCursor) exist only on the variants able to answer them.
// Breaking the protocol (reading a cursor that is not on a bigram, asking a
// composite for a capability one of its children lacks, or using a cursor
// after it was replaced) panics with a *Violation.
package bigram
