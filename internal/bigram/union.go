package bigram

// Union merges the index-wide lists of several sources (the memory index and
// each on-disk segment). Frequencies of a bigram present in more than one
// source are summed. Once a single source is left, the union hands it over.
type Union struct {
	sources []CollectionFreqCursor
	current []CollectionFreqCursor
	st      state
	name    string
}

// NewUnion returns a cursor over the union of sources. A single source is
// returned unchanged.
func NewUnion(sources ...CollectionFreqCursor) CollectionFreqCursor {
	switch len(sources) {
	case 0:
		return NewIndexList(nil)
	case 1:
		return sources[0]
	}
	return &Union{sources: sources}
}

func (u *Union) ApproxSize() uint64 {
	mustBeLive("ApproxSize", u.st)
	var n uint64
	for _, s := range u.sources {
		n += s.ApproxSize()
	}
	return n
}

func (u *Union) Name() string {
	mustBeOn("Name", u.st)
	return u.name
}

func (u *Union) WDF() uint64 {
	mustBeOn("WDF", u.st)
	var n uint64
	for _, s := range u.current {
		n += s.WDF()
	}
	return n
}

func (u *Union) TermFreq() uint64 {
	mustBeOn("TermFreq", u.st)
	var n uint64
	for _, s := range u.current {
		n += s.TermFreq()
	}
	return n
}

func (u *Union) CollectionFreq() uint64 {
	mustBeOn("CollectionFreq", u.st)
	var n uint64
	for _, s := range u.current {
		n += s.CollectionFreq()
	}
	return n
}

func (u *Union) AtEnd() bool {
	mustBeLive("AtEnd", u.st)
	return u.st == atEnd
}

func (u *Union) Next() Cursor {
	mustBeLive("Next", u.st)
	switch u.st {
	case atEnd:
		return nil
	case beforeFirst:
		for i, s := range u.sources {
			u.sources[i] = Advance(s)
		}
	default:
		for i, s := range u.sources {
			if !s.AtEnd() && s.Name() == u.name {
				u.sources[i] = Advance(s)
			}
		}
	}
	return u.settle()
}

func (u *Union) SkipTo(target string) Cursor {
	mustBeLive("SkipTo", u.st)
	switch u.st {
	case atEnd:
		return nil
	case onBigram:
		if u.name >= target {
			return nil
		}
	}
	for i, s := range u.sources {
		u.sources[i] = Seek(s, target)
	}
	return u.settle()
}

// settle drops exhausted sources and picks the smallest name among the rest.
func (u *Union) settle() Cursor {
	live := u.sources[:0]
	for _, s := range u.sources {
		if !s.AtEnd() {
			live = append(live, s)
		}
	}
	clear(u.sources[len(live):])
	u.sources = live

	switch len(u.sources) {
	case 0:
		u.st = atEnd
		u.current = nil
		return nil
	case 1:
		survivor := u.sources[0]
		u.sources, u.current = nil, nil
		u.st = replaced
		prunes.Add(1)
		return survivor
	}

	u.name = u.sources[0].Name()
	for _, s := range u.sources[1:] {
		if n := s.Name(); n < u.name {
			u.name = n
		}
	}
	u.current = u.current[:0]
	for _, s := range u.sources {
		if s.Name() == u.name {
			u.current = append(u.current, s)
		}
	}
	u.st = onBigram
	return nil
}
