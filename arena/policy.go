package arena

// policy.go implements unconstrained allocation: the three placement
// policies (best-fit, instant-fit, next-fit), segment splitting, and the
// import-and-retry loop that pulls more span from a source arena when the
// local free lists can't satisfy a request. Grounded on
// __alloc_bestfit / __alloc_nextfit / __alloc_instantfit / alloc_from_arena /
// arena_alloc / __account_alloc / __get_from_freelists in
// original_source/kern/src/arena.c.

// Alloc allocates size units from the arena using its default placement
// policy: best-fit, instant-fit, or next-fit, selected by flags;
// instant-fit if none of the three bits is set.
func (a *Arena) Alloc(size uint64, flags Flags) (uint64, error) {
	if size == 0 {
		panic("arena: Alloc(0)")
	}
	size = roundUp(size, a.quantum)

	a.mu.Lock()
	defer a.mu.Unlock()
	for {
		// Reserve spare boundary tags before picking a free segment, not
		// after: growing the tag pool can drop and reacquire a.mu (see
		// btagpool.go), and a segment selected first could be stolen by a
		// concurrent allocation during that window.
		if !a.getEnoughBTags(minBTagsPerOp, flags) {
			return 0, ErrOOM
		}
		if bt, ok := a.getFromFreelistsLocked(size, flags); ok {
			return a.accountAllocLocked(bt, size)
		}
		if !a.importMoreLocked(size, flags) {
			err := ErrOOM
			if a.source == nil {
				err = ErrNoSource
			}
			if flags.atomic() {
				return 0, err
			}
			// Non-atomic discipline panics on OOM, matching arena_alloc's
			// behavior when it can't get more resources and the caller
			// didn't ask for MEM_ATOMIC.
			panic(err)
		}
	}
}

// getFromFreelistsLocked finds a free segment satisfying size under the
// arena's configured placement policy.
func (a *Arena) getFromFreelistsLocked(size uint64, flags Flags) (*BTag, bool) {
	switch flags.style() {
	case BestFit:
		return a.allocBestFit(size)
	case NextFit:
		return a.allocNextFit(size)
	default:
		return a.allocInstantFit(size)
	}
}

// allocBestFit scans upward from the bucket that could hold an exact fit
// until some bucket yields a candidate, picking the smallest segment
// that's still large enough — the tightest-fit search, at the cost of a
// linear scan.
func (a *Arena) allocBestFit(size uint64) (*BTag, bool) {
	startBucket := log2Down(size)
	var best *BTag
	for i := startBucket; i < NrFreeLists; i++ {
		for bt := a.freeSegs[i].first; bt != nil; bt = bt.listNext {
			if bt.size < size {
				continue
			}
			if best == nil || bt.size < best.size {
				best = bt
			}
		}
		// Once we've found any candidate and finished scanning a bucket
		// above the starting one, a tighter fit can't appear in a
		// higher bucket (every segment there is strictly larger than
		// every segment in a lower bucket), so stop early.
		if best != nil && i > startBucket {
			break
		}
	}
	return best, best != nil
}

// allocInstantFit picks the first free segment in the first non-empty
// bucket at or above ceil(log2(size)) — every segment in that bucket is
// guaranteed large enough, so there's no need to compare sizes. This is
// the default policy: O(1) bucket selection, O(list) pop.
func (a *Arena) allocInstantFit(size uint64) (*BTag, bool) {
	bucket := log2Up(size)
	for i := bucket; i < NrFreeLists; i++ {
		if bt := a.freeSegs[i].first; bt != nil {
			return bt, true
		}
	}
	return nil, false
}

// allocNextFit resumes scanning the segment index from where the last
// next-fit allocation left off, wrapping around once, and takes the first
// free segment big enough rather than falling back to a full best-fit
// scan.
func (a *Arena) allocNextFit(size uint64) (*BTag, bool) {
	start := a.segs.first()
	if start == nil {
		return nil, false
	}
	cur := a.segIndexAtOrAfter(a.lastNextfitAlloc)
	if cur == nil {
		cur = start
	}
	first := cur
	for {
		if cur.status == Free && cur.size >= size {
			a.lastNextfitAlloc = cur.start + size
			return cur, true
		}
		cur = next(cur)
		if cur == nil {
			cur = start
		}
		if cur == first {
			return nil, false
		}
	}
}

// segIndexAtOrAfter returns the first segment-index entry whose start is
// >= addr, or nil if addr is past every tracked segment.
func (a *Arena) segIndexAtOrAfter(addr uint64) *BTag {
	var result *BTag
	for bt := a.segs.first(); bt != nil; bt = next(bt) {
		if bt.start >= addr {
			result = bt
			break
		}
	}
	return result
}

// accountAllocLocked carves exactly size units off the front of the free
// segment bt, converts that front portion to ALLOC, and returns any
// leftover remainder to the free lists. Mirrors __account_alloc plus
// __split_bt_at.
func (a *Arena) accountAllocLocked(bt *BTag, size uint64) (uint64, error) {
	a.untrackFreeSeg(bt)
	start := bt.start
	if bt.size == size {
		bt.status = Alloc
		a.trackAllocSeg(bt)
		return start, nil
	}

	remainder := a.getBT()
	remainder.start = bt.start + size
	remainder.size = bt.size - size
	bt.size = size
	bt.status = Alloc

	a.segs.insert(remainder)
	a.trackFreeSeg(remainder)
	a.trackAllocSeg(bt)
	return start, nil
}

// importMoreLocked asks the source arena (if any) for more span, sized to
// at least size but scaled up by importScale to amortize future imports,
// per get_more_resources. Returns false if there's no source or the
// source can't satisfy the request.
func (a *Arena) importMoreLocked(size uint64, flags Flags) bool {
	if a.source == nil {
		return false
	}
	importSize := size
	if scaled := size << a.importScale; scaled > importSize {
		importSize = scaled
	}
	importSize = roundUp(importSize, a.quantum)

	if !a.getEnoughBTags(2, flags) {
		return false
	}
	span := a.getBT()
	bt := a.getBT()

	a.mu.Unlock()
	imported, err := a.afunc(a.source, importSize, flags)
	a.mu.Lock()
	if err != nil {
		a.freeBT(span)
		a.freeBT(bt)
		return false
	}

	span.start, span.size, span.status = imported, importSize, Span
	a.segs.insert(span)

	bt.start, bt.size = imported, importSize
	a.amtTotalSegs += importSize
	a.segs.insert(bt)
	a.trackFreeSeg(bt)
	return true
}
