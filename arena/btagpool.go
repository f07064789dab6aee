package arena

// btagpool.go is the boundary-tag supply: acquiring, growing, and
// recycling the fixed-size BTag records every other part of the arena
// consumes. It is grounded on __get_btag / __free_btag /
// __has_enough_btags / __get_enough_btags / __add_more_btags in
// original_source/kern/src/arena.c.
//
// The base arena is self-sufficient: when it runs low on tags it pulls a
// page-sized segment from its own free lists while it already holds its
// own lock (arena.c documents this as deliberate, safe re-entrancy, since
// the base arena never has a source to recurse into and the call doesn't
// go through the public, locking entry points). Every other arena borrows
// growth from the single base arena, which requires dropping this arena's
// lock first — one of three places in this package where that happens
// (the others are span import in policy.go and span return in span.go) —
// to keep a strict child-before-source lock order.

// minBTagsPerOp is how many spare unused tags an operation wants in hand
// before it proceeds: one for a possible "new" allocation during a split,
// one for a possible leftover remainder, plus slack for a two-sided xalloc
// split.
const minBTagsPerOp = 4

// btagsPerGrowth is how many BTags a single growth page manufactures.
// Each BTag is a small fixed record; padding this out is harmless and
// keeps growth infrequent, mirroring the original's "however many btags
// fit in PGSIZE" approach without needing to know Go's actual struct size.
const btagsPerGrowth = 64

func (a *Arena) hasEnoughBTags(n int) bool {
	got := 0
	for bt := a.unused.first; bt != nil; bt = bt.listNext {
		got++
		if got >= n {
			return true
		}
	}
	return false
}

// getEnoughBTags ensures at least n unused BTags are available, growing the
// pool if not. Called with a.mu held. Returns false (atomic discipline
// only) if growth fails; under any other discipline a failed growth
// panics with ErrOOM (in this single-process translation, growth either
// succeeds immediately or there's truly nothing more to give).
func (a *Arena) getEnoughBTags(n int, flags Flags) bool {
	if a.hasEnoughBTags(n) {
		return true
	}
	if a.addMoreBTags(flags) {
		return true
	}
	if !flags.atomic() {
		panic(ErrOOM)
	}
	return false
}

// addMoreBTags grows the unused-tag pool by btagsPerGrowth tags.
func (a *Arena) addMoreBTags(flags Flags) bool {
	if a.isBase {
		// Self-sufficient bootstrap: manufacture our own storage by
		// pulling a page-sized segment from our own free lists, under
		// the lock we already hold. This never recurses further because
		// the base arena has no source and this path doesn't re-enter
		// through Alloc/Free.
		start, ok := a.allocFromOwnFreelistsLocked(PageSize)
		if !ok {
			return false
		}
		a.growUnusedFrom(start)
		return true
	}

	// Non-base arena: borrow growth from the single global base arena.
	// We must drop our own lock before taking the base's, preserving the
	// child-before-source lock order (we are the "child" of the base
	// here, regardless of our real source chain).
	base := a.base
	a.mu.Unlock()
	start, err := base.Alloc(PageSize, flags)
	a.mu.Lock()
	if err != nil {
		return false
	}
	a.growUnusedFrom(start)
	return true
}

// growUnusedFrom seeds btagsPerGrowth freshly-manufactured tags onto the
// unused list. start is only used as a growth-accounting token in this
// translation (the tags themselves are ordinary Go heap values, not
// carved out of the raw page at start, since arena.go already documents
// that BTag storage here is Go-owned, not raw-page-owned); start itself is
// not stored anywhere.
func (a *Arena) growUnusedFrom(start uint64) {
	batch := make([]BTag, btagsPerGrowth)
	for i := range batch {
		a.unused.pushFront(&batch[i])
	}
	_ = start
}

// allocFromOwnFreelistsLocked is the base arena's bootstrap path: a
// minimal first-fit pull directly from the free lists that doesn't itself
// need a spare BTag from the unused list. It consumes an exact-fit tag
// whole; otherwise it takes the front of a larger free segment and
// records that front part in a freshly made tag. It fails only when no
// free segment is at least size.
func (a *Arena) allocFromOwnFreelistsLocked(size uint64) (uint64, bool) {
	bt := a.firstFreeOfAtLeast(size)
	if bt == nil {
		return 0, false
	}
	start := bt.start
	if bt.size == size {
		a.untrackFreeSeg(bt)
		bt.status = Alloc
		a.trackAllocSeg(bt)
		return start, true
	}
	// Split without needing a spare tag: shrink the free tag in place
	// and manufacture a new record for the allocated front part, linked
	// into the segment index and the alloc hash like any other ALLOC tag,
	// since this path runs before the unused-tag pool is healthy enough
	// to spare one.
	a.untrackFreeSeg(bt)
	bt.start += size
	bt.size -= size
	a.trackFreeSeg(bt)

	allocated := &BTag{start: start, size: size, status: Alloc}
	a.segs.insert(allocated)
	a.trackAllocSeg(allocated)
	return start, true
}

func (a *Arena) firstFreeOfAtLeast(size uint64) *BTag {
	startBucket := log2Up(size)
	for i := startBucket; i < NrFreeLists; i++ {
		for bt := a.freeSegs[i].first; bt != nil; bt = bt.listNext {
			if bt.size >= size {
				return bt
			}
		}
	}
	return nil
}
