package bigram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docList(id string, names ...string) *DocumentList {
	es := make([]Entry, len(names))
	for i, n := range names {
		es[i] = Entry{Name: n, WDF: 1, TermFreq: uint64(i + 1)}
	}
	return NewDocumentList(id, uint64(len(names)+1), 100, es)
}

func TestMergeUnionInOrder(t *testing.T) {
	c := Merge(
		NewList(entries("ab", "cd", "ef")),
		NewList(entries("bc", "cd", "gh")),
	)
	assert.Equal(t, []string{"ab", "bc", "cd", "ef", "gh"}, names(c))
}

func TestMergeSumsWDFOnSharedName(t *testing.T) {
	c := Merge(
		NewList([]Entry{{Name: "ab", WDF: 2, TermFreq: 5}}),
		NewList([]Entry{{Name: "ab", WDF: 3, TermFreq: 6}}),
	)
	c = Advance(c)
	require.False(t, c.AtEnd())
	assert.Equal(t, "ab", c.Name())
	assert.Equal(t, uint64(5), c.WDF())
	assert.Equal(t, uint64(6), c.TermFreq())
}

func TestMergeEmptyAndSingle(t *testing.T) {
	empty := Merge()
	assert.Empty(t, names(empty))

	only := NewList(entries("ab"))
	assert.Same(t, only, Merge(only))
}

func TestOrPrunesWhenOneSideEnds(t *testing.T) {
	left := NewList(entries("ab"))
	right := NewList(entries("bc", "cd"))
	or := newOr(left, right)

	assert.Nil(t, or.Next())
	assert.Equal(t, "ab", or.Name())

	replacement := or.Next()
	require.NotNil(t, replacement, "left ran out, the merge should hand over the right side")
	assert.Same(t, right, replacement)
	assert.Equal(t, "bc", replacement.Name())

	v := requireViolation(t, func() { or.AtEnd() })
	assert.Equal(t, "replaced", v.State)
	requireViolation(t, func() { or.Next() })
	requireViolation(t, func() { or.SkipTo("zz") })
	requireViolation(t, func() { or.ApproxSize() })
	requireViolation(t, func() { _ = or.Name() })
}

// guard fails the test if the wrapped cursor is used after it was replaced.
type guard struct {
	Cursor
	t    *testing.T
	dead bool
}

func (g *guard) use() {
	if g.dead {
		g.t.Fatalf("replaced cursor %T used again", g.Cursor)
	}
}

func (g *guard) Next() Cursor {
	g.use()
	r := g.Cursor.Next()
	if r != nil {
		g.dead = true
		return &guard{Cursor: r, t: g.t}
	}
	return nil
}

func (g *guard) SkipTo(target string) Cursor {
	g.use()
	r := g.Cursor.SkipTo(target)
	if r != nil {
		g.dead = true
		return &guard{Cursor: r, t: g.t}
	}
	return nil
}

func (g *guard) AtEnd() bool        { g.use(); return g.Cursor.AtEnd() }
func (g *guard) Name() string       { g.use(); return g.Cursor.Name() }
func (g *guard) WDF() uint64        { g.use(); return g.Cursor.WDF() }
func (g *guard) ApproxSize() uint64 { g.use(); return g.Cursor.ApproxSize() }

func TestAdvanceDrivingCodeNeverTouchesReplacedHandle(t *testing.T) {
	var c Cursor = &guard{
		t: t,
		Cursor: Merge(
			NewList(entries("aa")),
			NewList(entries("ab", "ac")),
			NewList(entries("ad", "ae", "af", "ag")),
		),
	}
	before := Prunes()
	var got []string
	for c = Advance(c); !c.AtEnd(); c = Advance(c) {
		got = append(got, c.Name())
	}
	assert.Equal(t, []string{"aa", "ab", "ac", "ad", "ae", "af", "ag"}, got)
	assert.Greater(t, Prunes(), before)
}

func TestOrBothSidesEndTogether(t *testing.T) {
	or := newOr(NewList(entries("ab")), NewList(entries("ab")))
	assert.Nil(t, or.Next())
	assert.Equal(t, "ab", or.Name())
	assert.Nil(t, or.Next())
	assert.True(t, or.AtEnd())
	assert.Nil(t, or.Next())
	assert.True(t, or.AtEnd())
	assert.Equal(t, uint64(0), or.ApproxSize())
}

func TestOrSkipTo(t *testing.T) {
	c := Merge(
		NewList(entries("ab", "cd", "ef", "gh")),
		NewList(entries("bc", "de", "fg", "hi")),
	)
	c = Seek(c, "cc")
	require.False(t, c.AtEnd())
	assert.Equal(t, "cd", c.Name())

	c = Seek(c, "cd")
	assert.Equal(t, "cd", c.Name(), "seeking to the current name stays put")

	c = Seek(c, "fa")
	assert.Equal(t, "fg", c.Name())

	c = Seek(c, "zz")
	assert.True(t, c.AtEnd())
	c = Advance(c)
	assert.True(t, c.AtEnd())
}

func TestOrSkipToFromBeforeFirst(t *testing.T) {
	c := Merge(NewList(entries("ab", "bc", "cd")), NewList(entries("ba")))
	c = Seek(c, "bb")
	require.False(t, c.AtEnd())
	assert.Equal(t, "bc", c.Name())
}

func TestOrAccessorBeforeAdvanceViolates(t *testing.T) {
	c := Merge(NewList(entries("ab")), NewList(entries("cd")))
	requireViolation(t, func() { _ = c.Name() })
	requireViolation(t, func() { _ = c.WDF() })
	assert.False(t, c.AtEnd())
	assert.Equal(t, uint64(2), c.ApproxSize())
}

func TestMergeStatsAccumulatesEverySideOnName(t *testing.T) {
	c := MergeStats(
		docList("d1", "big apple", "new york"),
		docList("d2", "new york", "york city"),
		docList("d3", "new york"),
	)
	perName := map[string]int{}
	Drain(c, func(c StatsCursor) bool {
		acc := &recordingAccumulator{}
		c.AccumulateStats(acc)
		perName[c.Name()] = len(acc.got)
		return true
	})
	assert.Equal(t, map[string]int{"big apple": 1, "new york": 3, "york city": 1}, perName)
}

func TestMergeStatsOnPlainChildViolates(t *testing.T) {
	c := Merge(docList("d1", "ab"), NewList(entries("ab")))
	c = Advance(c)
	sc, ok := c.(StatsCursor)
	require.True(t, ok)
	v := requireViolation(t, func() { sc.AccumulateStats(&recordingAccumulator{}) })
	assert.Equal(t, "AccumulateStats", v.Op)
}

func TestSeekReplacementMustKeepCapability(t *testing.T) {
	// A StatsCursor driven through Seek gets back a StatsCursor, even when
	// the merge prunes down to one of its leaves.
	var c StatsCursor = MergeStats(docList("d1", "aa"), docList("d2", "bb", "cc"))
	c = Seek(c, "b")
	require.False(t, c.AtEnd())
	assert.Equal(t, "bb", c.Name())
	_, isLeaf := c.(*DocumentList)
	assert.True(t, isLeaf)
}
