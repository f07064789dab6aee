// Package arena implements a Vmem-style boundary-tag arena: a
// boundary-tag store, a segment index ordering those tags by address, and
// the core allocation policies, splitting, coalescing, and span
// import/export built on top of them. It is grounded on
// original_source/kern/src/arena.c (Akaros), translated into idiomatic,
// explicitly-owned Go: boundary tags are Go-owned values reachable
// through the arena's own lists and tree, not externally allocated nodes
// reached through raw pointer casts.
package arena

import (
	"fmt"
	"sync"

	"github.com/shenjiangwei/vmemslab/internal/klog"
)

// AllocFunc imports size units of resource from a source arena; it has the
// same shape as Arena.Alloc so that a source arena can be used directly.
type AllocFunc func(source *Arena, size uint64, flags Flags) (uint64, error)

// FreeFunc returns an imported span to a source arena; it has the same
// shape as Arena.Free.
type FreeFunc func(source *Arena, addr uint64, size uint64)

// Arena manages a namespace of arbitrary integer-addressed resources using
// boundary tags. A zero Arena is not valid; use Create or Builder.
type Arena struct {
	mu sync.Mutex

	name        string
	quantum     uint64
	importScale uint8
	isBase      bool
	qcacheMax   uint64

	source *Arena
	afunc  AllocFunc
	ffunc  FreeFunc
	// base is the arena that ultimately backs this one's boundary-tag
	// growth (find_my_base in the original): for an arena with no source
	// this is self (every such arena is a base); for every other arena
	// it's the base arena at the root of its source chain.
	base *Arena

	segs      segIndex
	unused    btagList
	freeSegs  [NrFreeLists]btagList
	allocHash [NrHashLists]btagList

	amtTotalSegs uint64
	amtAllocSegs uint64
	nrAllocs     uint64

	lastNextfitAlloc uint64
}

// Builder lays out a brand-new arena (plus two seed boundary tags) for use
// before any general-purpose allocator exists — the Go analogue of
// arena_builder, used for the base arena, the kpages arena, and the
// kmalloc arena during bootstrap. Unlike the original, which packs the
// struct + two btag records into one physical page via pointer casts,
// this stores the Arena and its two seed BTags as ordinary Go-owned
// values; "one page" is a documentation fiction here (there is no real
// memory layout constraint to satisfy in Go), preserving only the
// invariant that actually matters: the new arena starts with exactly two
// usable boundary tags, with zero further allocation needed to get off
// the ground.
func Builder(name string, quantum uint64, afunc AllocFunc, ffunc FreeFunc, source *Arena, qcacheMax uint64) *Arena {
	a := &Arena{}
	a.init(name, quantum, afunc, ffunc, source, qcacheMax)
	if source == nil {
		a.isBase = true
		a.base = a
	} else {
		a.base = source.base
	}
	seed := make([]BTag, 2)
	a.unused.pushFront(&seed[0])
	a.unused.pushFront(&seed[1])
	return a
}

func (a *Arena) init(name string, quantum uint64, afunc AllocFunc, ffunc FreeFunc, source *Arena, qcacheMax uint64) {
	if source != nil && (afunc == nil || ffunc == nil) {
		panic(fmt.Sprintf("arena %s: a sourced arena needs both afunc and ffunc", name))
	}
	a.name = name
	a.quantum = quantum
	a.qcacheMax = qcacheMax
	a.afunc = afunc
	a.ffunc = ffunc
	a.source = source
}

// Create builds a new arena, optionally seeding it with an initial span
// [base, base+size). A sourced arena must not be given an initial span
// directly (it imports from its source instead); see Add. The arena
// starts with btagsPerGrowth boundary tags taken from the Go heap, so
// adding the initial span and the first allocations don't carve tag
// storage out of the arena's own resources.
func Create(name string, base, size, quantum uint64, afunc AllocFunc, ffunc FreeFunc, source *Arena, qcacheMax uint64, flags Flags) (*Arena, error) {
	if source != nil && size != 0 {
		panic(fmt.Sprintf("arena %s: can't have both a source and an initial span", name))
	}
	a := &Arena{}
	a.init(name, quantum, afunc, ffunc, source, qcacheMax)
	if source == nil {
		a.isBase = true
		a.base = a
	} else {
		a.base = source.base
	}
	seed := make([]BTag, btagsPerGrowth)
	for i := range seed {
		a.unused.pushFront(&seed[i])
	}
	if size != 0 {
		if err := a.add(base, size, flags); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Add adds segment [base, base+size) to the arena. It is forbidden on
// arenas that have a source: a sourced arena must only grow by importing
// from that source, never by a manually-added span.
func (a *Arena) Add(base, size uint64, flags Flags) error {
	if a.source != nil {
		panic(fmt.Sprintf("arena %s: arenas with a source must not manually add resources", a.name))
	}
	return a.add(base, size, flags)
}

func (a *Arena) add(base, size uint64, flags Flags) error {
	a.assertQuantumAligned(base, size)
	if base+size < base {
		panic(fmt.Sprintf("arena %s: add(%d,+%d) overflows", a.name, base, size))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addLocked(base, size, flags)
}

// addLocked is __arena_add: it consumes one or two BTs (a SPAN tag only if
// the arena has a source) and tracks [base, base+size) as free.
func (a *Arena) addLocked(base, size uint64, flags Flags) error {
	need := 1
	if a.source != nil {
		need = 2
	}
	if !a.getEnoughBTags(need, flags) {
		return ErrOOM
	}
	bt := a.getBT()
	if a.source != nil {
		span := a.getBT()
		span.start, span.size, span.status = base, size, Span
		a.segs.insert(span)
	}
	bt.start, bt.size = base, size
	a.amtTotalSegs += size
	a.trackFreeSeg(bt)
	a.segs.insert(bt)
	klog.Debug("arena %s: added span [%#x, %#x)", a.name, base, base+size)
	return nil
}

func (a *Arena) assertQuantumAligned(base, size uint64) {
	if !alignedTo(base, a.quantum) {
		panic(fmt.Sprintf("arena %s: unaligned base %#x for quantum %d", a.name, base, a.quantum))
	}
	if !alignedTo(size, a.quantum) {
		panic(fmt.Sprintf("arena %s: unaligned size %#x for quantum %d", a.name, size, a.quantum))
	}
}

// Destroy tears the arena down. It must have no outstanding allocations.
// Any boundary tags left on the unused list that back a whole growth page
// would be returned to the base arena in the original, which finds them
// because the first BT on each growth page sits at a page-aligned start;
// since this Go translation allocates growth tags as plain slices rather
// than from raw pages, "returning a page" just drops the owning arena's
// reference to it — there is nothing further to hand back to the base
// arena's address space for BT storage itself (only for the address
// range it accounted for, which free() already reconciled as allocations
// were freed).
func (a *Arena) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i < NrHashLists; i++ {
		if !a.allocHash[i].empty() {
			panic(fmt.Sprintf("arena %s: destroy with outstanding allocations", a.name))
		}
	}
	for i := 0; i < NrFreeLists; i++ {
		if a.source != nil && !a.freeSegs[i].empty() {
			panic(fmt.Sprintf("arena %s: sourced arena destroyed with free segments still held", a.name))
		}
	}
	klog.Debug("arena %s: destroyed", a.name)
}

// AmtFree returns the amount of free space tracked by the arena (not
// counting anything cached in a qcache, which this implementation
// doesn't have).
func (a *Arena) AmtFree() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.amtTotalSegs - a.amtAllocSegs
}

// AmtTotal returns the total amount of space (free + allocated) the arena
// tracks.
func (a *Arena) AmtTotal() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.amtTotalSegs
}

// Name returns the arena's diagnostic name.
func (a *Arena) Name() string { return a.name }

// Quantum returns the arena's minimum alignment/grain.
func (a *Arena) Quantum() uint64 { return a.quantum }

// SetImportScale sets how aggressively this arena over-imports from its
// source: get_more_resources in the original asks for
// max(size, size<<import_scale) so that a run of small imports doesn't
// turn into a separate source call every time. It has no effect on a
// base arena, which has no source to import from.
func (a *Arena) SetImportScale(scale uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.importScale = scale
}
