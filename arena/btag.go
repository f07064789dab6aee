package arena

// Status is the three-way state of a boundary tag.
type Status uint8

const (
	// Free tags sit on exactly one free-list bucket and on the segment
	// index.
	Free Status = iota
	// Alloc tags sit on exactly one alloc-hash chain and on the segment
	// index.
	Alloc
	// Span tags mark a region imported from a source arena. They are
	// never merged and never sit on a free-list or the alloc hash; they
	// are on the segment index only, ordered before any co-starting
	// regular tag.
	Span
)

func (s Status) String() string {
	switch s {
	case Free:
		return "FREE"
	case Alloc:
		return "ALLOC"
	case Span:
		return "SPAN"
	default:
		return "UNKNOWN"
	}
}

// BTag is a boundary tag: a fixed-size record describing one contiguous
// segment [start, start+size) of an arena's resource namespace and its
// allocation status. BTags are owned by their arena (see btagpool.go);
// they are never individually freed back to Go's allocator, only returned
// to the arena's own unused list; a BTag is never freed except at arena
// destruction.
//
// listPrev/listNext thread whichever intrusive list the tag is currently
// on: the unused-tag list, a free-list bucket, or an alloc-hash chain —
// never more than one of those at a time. rbLeft/rbRight/rbParent/rbRed
// are the segment index's red-black tree linkage (all_segs).
type BTag struct {
	start  uint64
	size   uint64
	status Status

	listPrev, listNext *BTag

	rbLeft, rbRight, rbParent *BTag
	rbRed                     bool
}

// Start and Size expose the tag's extent for diagnostics and tests.
func (bt *BTag) Start() uint64   { return bt.start }
func (bt *BTag) Size() uint64    { return bt.size }
func (bt *BTag) Status() Status  { return bt.status }

// btagList is an intrusive doubly-linked list of BTags (the Go analogue of
// BSD_LIST in arena.h), supporting O(1) push/remove.
type btagList struct {
	first *BTag
}

func (l *btagList) empty() bool { return l.first == nil }

func (l *btagList) pushFront(bt *BTag) {
	bt.listPrev = nil
	bt.listNext = l.first
	if l.first != nil {
		l.first.listPrev = bt
	}
	l.first = bt
}

func (l *btagList) remove(bt *BTag) {
	if bt.listPrev != nil {
		bt.listPrev.listNext = bt.listNext
	} else {
		l.first = bt.listNext
	}
	if bt.listNext != nil {
		bt.listNext.listPrev = bt.listPrev
	}
	bt.listPrev = nil
	bt.listNext = nil
}

func (l *btagList) popFront() *BTag {
	bt := l.first
	if bt != nil {
		l.remove(bt)
	}
	return bt
}

// forEach calls fn for every tag currently on the list. fn must not mutate
// the list it is iterating.
func (l *btagList) forEach(fn func(*BTag)) {
	for bt := l.first; bt != nil; bt = bt.listNext {
		fn(bt)
	}
}
