package arena

// xalloc.go implements constrained allocation: alignment, phase, a
// nocross boundary, and a [minaddr, maxaddr] window. Grounded on
// __find_sufficient / __xalloc_min_max / __xalloc_from_freelists /
// __xalloc_nextfit / xalloc_from_arena / arena_xalloc in
// original_source/kern/src/arena.c.

// Constraints narrows an Xalloc request. Align must be a power of two (or
// zero, meaning the arena's quantum). Phase must be less than Align.
// NoCross, if non-zero, must be a power of two; the allocation will never
// straddle a multiple of it. MinAddr/MaxAddr bound the returned range
// inclusive; use NoBound for an unconstrained end.
type Constraints struct {
	Align   uint64
	Phase   uint64
	NoCross uint64
	MinAddr uint64
	MaxAddr uint64
}

// NoBound is the "no upper bound" sentinel for Constraints.MaxAddr.
const NoBound = ^uint64(0)

// Xalloc allocates size units satisfying c. Combining a source arena with
// NoCross, MinAddr, or MaxAddr is a programmer error and panics:
// satisfying those constraints might require importing a
// precisely-shaped span from the source, which this arena has no way to
// request.
func (a *Arena) Xalloc(size uint64, c Constraints, flags Flags) (uint64, error) {
	if size == 0 {
		panic("arena: Xalloc(0)")
	}
	align := c.Align
	if align == 0 {
		align = a.quantum
	}
	if !isPow2(align) {
		panic("arena: Xalloc align must be a power of two")
	}
	if c.Phase >= align {
		panic("arena: Xalloc phase must be less than align")
	}
	if c.NoCross != 0 && !isPow2(c.NoCross) {
		panic("arena: Xalloc nocross must be a power of two")
	}
	maxaddr := c.MaxAddr
	if maxaddr == 0 {
		maxaddr = NoBound
	}
	size = roundUp(size, a.quantum)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.source != nil && (c.NoCross != 0 || c.MinAddr != 0 || maxaddr != NoBound) {
		panic("arena: sourced arena cannot satisfy nocross/minaddr/maxaddr constraints")
	}

	style := flags.style()
	for {
		// Reserve spare boundary tags before picking a free segment, not
		// after: growing the tag pool can drop and reacquire a.mu (see
		// btagpool.go), and a segment selected first could be stolen by a
		// concurrent allocation during that window.
		if !a.getEnoughBTags(minBTagsPerOp, flags) {
			return 0, ErrOOM
		}
		if bt, addr, ok := a.xallocFromFreelistsLocked(size, align, c.Phase, c.NoCross, c.MinAddr, maxaddr, style); ok {
			return a.splitForXallocLocked(bt, addr, size)
		}
		if style != BestFit {
			// Retry as best-fit before importing. The instant-fit and
			// next-fit walks above already test every free segment
			// against the same constraints, so this pass repeats their
			// search rather than widening it.
			if bt, addr, ok := a.xallocFromFreelistsLocked(size, align, c.Phase, c.NoCross, c.MinAddr, maxaddr, BestFit); ok {
				return a.splitForXallocLocked(bt, addr, size)
			}
		}
		if !a.importMoreLocked(size, flags) {
			err := ErrOOM
			if a.source == nil {
				err = ErrNoSource
			}
			if flags.atomic() {
				return 0, err
			}
			panic(err)
		}
	}
}

func (a *Arena) xallocFromFreelistsLocked(size, align, phase, nocross, minaddr, maxaddr uint64, style Flags) (*BTag, uint64, bool) {
	if style == NextFit {
		return a.xallocNextFitLocked(size, align, phase, nocross, minaddr, maxaddr)
	}
	var bestBt *BTag
	var bestAddr uint64
	for bt := a.segs.first(); bt != nil; bt = next(bt) {
		if bt.status != Free {
			continue
		}
		addr, ok := findSufficient(bt, size, align, phase, nocross, minaddr, maxaddr)
		if !ok {
			continue
		}
		if style == InstantFit {
			return bt, addr, true
		}
		if bestBt == nil || bt.size < bestBt.size {
			bestBt, bestAddr = bt, addr
		}
	}
	return bestBt, bestAddr, bestBt != nil
}

func (a *Arena) xallocNextFitLocked(size, align, phase, nocross, minaddr, maxaddr uint64) (*BTag, uint64, bool) {
	start := a.segIndexAtOrAfter(a.lastNextfitAlloc)
	if start == nil {
		start = a.segs.first()
	}
	if start == nil {
		return nil, 0, false
	}
	cur := start
	for {
		if cur.status == Free {
			if addr, ok := findSufficient(cur, size, align, phase, nocross, minaddr, maxaddr); ok {
				a.lastNextfitAlloc = addr + size
				return cur, addr, true
			}
		}
		cur = next(cur)
		if cur == nil {
			cur = a.segs.first()
		}
		if cur == start {
			return nil, 0, false
		}
	}
}

// findSufficient finds the lowest address within bt that satisfies every
// constraint, or reports false if none exists.
func findSufficient(bt *BTag, size, align, phase, nocross, minaddr, maxaddr uint64) (uint64, bool) {
	lo := bt.start
	if minaddr > lo {
		lo = minaddr
	}
	segEnd := bt.start + bt.size
	hi := segEnd
	if maxaddr != NoBound && maxaddr+1 < hi {
		hi = maxaddr + 1
	}
	cand := alignedPhaseAtOrAfter(lo, align, phase)
	for cand+size <= hi && cand >= lo {
		if nocross == 0 || !crossesBoundary(cand, size, nocross) {
			return cand, true
		}
		boundary := roundUp(cand+1, nocross)
		advanced := alignedPhaseAtOrAfter(boundary, align, phase)
		if advanced <= cand {
			return 0, false
		}
		cand = advanced
	}
	return 0, false
}

// alignedPhaseAtOrAfter returns the smallest x >= lo with x % align ==
// phase, for 0 <= phase < align.
func alignedPhaseAtOrAfter(lo, align, phase uint64) uint64 {
	if lo <= phase {
		return phase
	}
	rem := (lo - phase) % align
	if rem == 0 {
		return lo
	}
	return lo + (align - rem)
}

func crossesBoundary(addr, size, nocross uint64) bool {
	return addr/nocross != (addr+size-1)/nocross
}

// splitForXallocLocked carves [addr, addr+size) out of free segment bt,
// which may require splitting off a piece before addr in addition to any
// leftover after it (the two-sided split xalloc needs that best-fit's
// single-sided split doesn't).
func (a *Arena) splitForXallocLocked(bt *BTag, addr, size uint64) (uint64, error) {
	a.untrackFreeSeg(bt)

	if addr > bt.start {
		before := a.getBT()
		before.start = bt.start
		before.size = addr - bt.start
		bt.start = addr
		bt.size -= before.size
		a.segs.insert(before)
		a.trackFreeSeg(before)
	}

	if bt.size > size {
		after := a.getBT()
		after.start = bt.start + size
		after.size = bt.size - size
		bt.size = size
		a.segs.insert(after)
		a.trackFreeSeg(after)
	}

	bt.status = Alloc
	a.trackAllocSeg(bt)
	return addr, nil
}
