package arena

import (
	"fmt"
	"strings"
)

// Stats is a snapshot of an arena's bookkeeping counters, for diagnostics
// and the vmemctl CLI. Grounded on print_arena_stats in
// original_source/kern/src/arena.c.
type Stats struct {
	Name         string
	Quantum      uint64
	AmtTotal     uint64
	AmtAllocated uint64
	AmtFree      uint64
	NrAllocs     uint64
	NrSegments   int
}

// Stats returns a snapshot of the arena's counters.
func (a *Arena) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	nrSegs := 0
	for bt := a.segs.first(); bt != nil; bt = next(bt) {
		nrSegs++
	}
	return Stats{
		Name:         a.name,
		Quantum:      a.quantum,
		AmtTotal:     a.amtTotalSegs,
		AmtAllocated: a.amtAllocSegs,
		AmtFree:      a.amtTotalSegs - a.amtAllocSegs,
		NrAllocs:     a.nrAllocs,
		NrSegments:   nrSegs,
	}
}

func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "arena %s: quantum=%d total=%d alloc=%d free=%d allocs=%d segs=%d",
		s.Name, s.Quantum, s.AmtTotal, s.AmtAllocated, s.AmtFree, s.NrAllocs, s.NrSegments)
	return b.String()
}

// CheckInvariants walks the segment index and free lists, verifying the
// structural invariants every arena state must hold: non-SPAN segments
// don't overlap and no two adjacent ones are both FREE (they should have
// coalesced into one) — a SPAN tag legitimately shares a start with, and
// is skipped when checking, the content tag(s) carved out of it — every
// free segment sits in the bucket its size implies, and the running
// totals — including nr_allocs == |ALLOC| — agree with a fresh recount.
// It is meant for tests, not production code paths — it's O(n) and takes
// the arena's lock for the whole walk.
func (a *Arena) CheckInvariants() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var prev *BTag
	var total, allocated, nrAllocs uint64
	for bt := a.segs.first(); bt != nil; bt = next(bt) {
		// A SPAN tag and the content tag(s) carved out of it share a start
		// and the SPAN's extent covers them, by design (see span.go) — that
		// is not an overlap, and a SPAN is never a candidate for the
		// adjacent-FREE check either, so it never becomes prev.
		if bt.status != Span {
			if prev != nil && bt.start < prev.start+prev.size {
				return fmt.Errorf("arena %s: segment [%#x,+%#x) overlaps previous [%#x,+%#x)",
					a.name, bt.start, bt.size, prev.start, prev.size)
			}
			if prev != nil && prev.status == Free && bt.status == Free {
				return fmt.Errorf("arena %s: adjacent FREE segments [%#x,+%#x) and [%#x,+%#x) should have coalesced",
					a.name, prev.start, prev.size, bt.start, bt.size)
			}
			total += bt.size
			if bt.status == Alloc {
				allocated += bt.size
				nrAllocs++
			}
			prev = bt
		}
	}
	if total != a.amtTotalSegs {
		return fmt.Errorf("arena %s: amtTotalSegs=%d but recount=%d", a.name, a.amtTotalSegs, total)
	}
	if allocated != a.amtAllocSegs {
		return fmt.Errorf("arena %s: amtAllocSegs=%d but recount=%d", a.name, a.amtAllocSegs, allocated)
	}
	if nrAllocs != a.nrAllocs {
		return fmt.Errorf("arena %s: nrAllocs=%d but recount=%d", a.name, a.nrAllocs, nrAllocs)
	}

	var bucketErr error
	for i, bucket := range a.freeSegs {
		bucket.forEach(func(bt *BTag) {
			if bucketErr != nil {
				return
			}
			if want := freelistBucket(bt.size); want != i {
				bucketErr = fmt.Errorf("arena %s: free tag size %d in bucket %d, wants %d", a.name, bt.size, i, want)
			}
		})
	}
	return bucketErr
}
