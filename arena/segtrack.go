package arena

// segtrack.go tracks free and allocated boundary tags in their respective
// buckets/chains: __track_free_seg, __untrack_free_seg, __track_alloc_seg,
// and __untrack_alloc_seg in original_source/kern/src/arena.c. Every BTag
// with status Free or Alloc must be on exactly one of these lists, in
// addition to always being in the segment index (rbtree.go) while it
// describes a live segment.

// getBT pops one tag off the unused list. Callers must have already
// ensured enough tags are available via getEnoughBTags.
func (a *Arena) getBT() *BTag {
	bt := a.unused.popFront()
	if bt == nil {
		panic("arena: getBT called without a reserved unused tag")
	}
	*bt = BTag{}
	return bt
}

// freeBT returns bt to the unused list. bt must not currently be linked
// into the segment index, a free-list bucket, or an alloc-hash chain.
func (a *Arena) freeBT(bt *BTag) {
	a.unused.pushFront(bt)
}

func freelistBucket(size uint64) int {
	// Free segments are indexed by the largest power of two that fits,
	// i.e. floor(log2(size)), so every segment in bucket ceil(log2(size))
	// or above is at least size. A search starting there needs no size
	// comparison, but it skips bucket floor(log2(size)), which can also
	// hold large-enough segments when size is not a power of two.
	i := log2Down(size)
	if i >= NrFreeLists {
		i = NrFreeLists - 1
	}
	return i
}

func (a *Arena) trackFreeSeg(bt *BTag) {
	bt.status = Free
	a.freeSegs[freelistBucket(bt.size)].pushFront(bt)
}

func (a *Arena) untrackFreeSeg(bt *BTag) {
	a.freeSegs[freelistBucket(bt.size)].remove(bt)
}

func (a *Arena) trackAllocSeg(bt *BTag) {
	bt.status = Alloc
	a.allocHash[hashStart(bt.start)].pushFront(bt)
	a.amtAllocSegs += bt.size
	a.nrAllocs++
}

func (a *Arena) untrackAllocSeg(bt *BTag) {
	a.allocHash[hashStart(bt.start)].remove(bt)
	a.amtAllocSegs -= bt.size
	a.nrAllocs--
}

// findAllocSeg looks up the ALLOC tag starting exactly at addr, or nil if
// none exists (a free, double-free, or corrupt address).
func (a *Arena) findAllocSeg(addr uint64) *BTag {
	for bt := a.allocHash[hashStart(addr)].first; bt != nil; bt = bt.listNext {
		if bt.start == addr {
			return bt
		}
	}
	return nil
}
