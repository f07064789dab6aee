package arena

// span.go implements Free/Xfree, coalescing of adjacent free segments, and
// span return to a source arena once an entire imported span becomes free
// again. Grounded on __merge_right_to_left / __coalesce_free_seg /
// free_from_arena / arena_free / arena_xfree in
// original_source/kern/src/arena.c.

// Free releases an allocation previously returned by Alloc or Xalloc.
// addr must be exactly the address an allocation started at; freeing any
// other address, or an address twice, is a programmer error and panics.
func (a *Arena) Free(addr uint64, size uint64) {
	size = roundUp(size, a.quantum)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freeLocked(addr, size)
}

func (a *Arena) freeLocked(addr uint64, size uint64) {
	bt := a.findAllocSeg(addr)
	if bt == nil {
		panic("arena: free of unallocated address")
	}
	if bt.size != size {
		panic("arena: free size mismatch")
	}
	a.untrackAllocSeg(bt)
	a.trackFreeSeg(bt)
	a.coalesceLocked(bt)
}

// coalesceLocked merges bt with its free neighbors in the segment index,
// right first then left (matching __coalesce_free_seg's order), and then
// checks whether the result is now exactly one whole imported span with
// nothing allocated in it, in which case the span is handed back to the
// source.
func (a *Arena) coalesceLocked(bt *BTag) {
	if right := next(bt); right != nil && right.status == Free {
		a.mergeRightIntoLeft(bt, right)
	}
	if left := prev(bt); left != nil && left.status == Free {
		a.mergeRightIntoLeft(left, bt)
		bt = left
	}
	a.maybeReturnSpanLocked(bt)
}

// mergeRightIntoLeft absorbs right into left: left grows to cover both,
// right is removed from the segment index and the free lists and
// recycled onto the unused list.
func (a *Arena) mergeRightIntoLeft(left, right *BTag) {
	a.untrackFreeSeg(left)
	a.untrackFreeSeg(right)
	left.size += right.size
	a.segs.erase(right)
	a.freeBT(right)
	a.trackFreeSeg(left)
}

// maybeReturnSpanLocked checks whether bt's free segment exactly spans a
// SPAN tag imported from our source; if so, the whole span is returned via
// ffunc and every tag involved (the free segment and the span marker) is
// released back to the unused pool.
func (a *Arena) maybeReturnSpanLocked(bt *BTag) {
	if a.source == nil {
		return
	}
	span := prev(bt)
	if span == nil || span.status != Span || span.start != bt.start || span.size != bt.size {
		return
	}
	a.untrackFreeSeg(bt)
	a.segs.erase(bt)
	a.segs.erase(span)
	a.amtTotalSegs -= bt.size

	addr, size := bt.start, bt.size
	a.freeBT(bt)
	a.freeBT(span)

	// Drop our lock before calling into the source, preserving the
	// child-before-source lock order (one of the documented exceptions to
	// "never release the arena lock mid-operation", alongside BT growth
	// in btagpool.go and span import in policy.go).
	a.mu.Unlock()
	a.ffunc(a.source, addr, size)
	a.mu.Lock()
}

// Xfree releases an allocation made by Xalloc. It behaves exactly like
// Free; the distinct name mirrors arena_xfree/arena_free in the original,
// which are likewise identical apart from bookkeeping that this
// translation doesn't need to split out.
func (a *Arena) Xfree(addr uint64, size uint64) {
	a.Free(addr, size)
}
