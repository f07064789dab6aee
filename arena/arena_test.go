package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newBaseArena(t *testing.T, base, size, quantum uint64) *Arena {
	t.Helper()
	a, err := Create("test-base", base, size, quantum, nil, nil, nil, 0, 0)
	require.NoError(t, err)
	return a
}

func TestAllocFreeRoundTrip(t *testing.T) {
	a := newBaseArena(t, 0x1000, 0x10000, 8)
	require.NoError(t, a.CheckInvariants())
	require.Equal(t, uint64(0), a.Stats().NrAllocs)

	addr, err := a.Alloc(64, 0)
	require.NoError(t, err)
	require.NoError(t, a.CheckInvariants())
	require.Equal(t, uint64(64), a.Stats().AmtAllocated)
	require.Equal(t, uint64(1), a.Stats().NrAllocs)

	a.Free(addr, 64)
	require.NoError(t, a.CheckInvariants())
	require.Equal(t, uint64(0), a.Stats().AmtAllocated)
	require.Equal(t, a.Stats().AmtTotal, a.Stats().AmtFree)
	require.Equal(t, uint64(0), a.Stats().NrAllocs, "nr_allocs must return to its pre-alloc value after a matching free")
}

func TestNrAllocsTracksMultipleOutstandingAllocations(t *testing.T) {
	a := newBaseArena(t, 0, 0x10000, 8)
	p1, err := a.Alloc(0x40, 0)
	require.NoError(t, err)
	_, err = a.Alloc(0x40, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(2), a.Stats().NrAllocs)

	a.Free(p1, 0x40)
	require.Equal(t, uint64(1), a.Stats().NrAllocs)
	require.NoError(t, a.CheckInvariants())
}

func TestBestFitPicksTightestSegment(t *testing.T) {
	b := newBaseArena(t, 0, 0x10000, 8)
	p1, err := b.Alloc(0x100, BestFit)
	require.NoError(t, err)
	// Keep an allocation between p1 and p2 so their holes can't coalesce.
	_, err = b.Alloc(0x100, BestFit)
	require.NoError(t, err)
	p2, err := b.Alloc(0x40, BestFit)
	require.NoError(t, err)
	_, err = b.Alloc(0x100, BestFit)
	require.NoError(t, err)

	b.Free(p1, 0x100)
	b.Free(p2, 0x40)

	got, err := b.Alloc(0x30, BestFit)
	require.NoError(t, err)
	require.Equal(t, p2, got, "best-fit should prefer the tighter 0x40 hole over the 0x100 hole")
	require.NoError(t, b.CheckInvariants())
}

func TestNextFitAdvancesCursor(t *testing.T) {
	a := newBaseArena(t, 0, 0x4000, 8)
	first, err := a.Alloc(0x100, NextFit)
	require.NoError(t, err)
	second, err := a.Alloc(0x100, NextFit)
	require.NoError(t, err)
	require.Greater(t, second, first, "next-fit should not reuse the same region immediately")
	require.NoError(t, a.CheckInvariants())
}

func TestXallocAlignmentAndPhase(t *testing.T) {
	a := newBaseArena(t, 0, 0x10000, 8)
	addr, err := a.Xalloc(0x100, Constraints{Align: 0x1000, Phase: 0x40}, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(0x40), addr%0x1000)
	require.NoError(t, a.CheckInvariants())
}

func TestXallocNoCrossAvoidsBoundary(t *testing.T) {
	a := newBaseArena(t, 0, 0x10000, 8)
	// Force the first bytes of the arena to be allocated off so the
	// remaining free segment doesn't start exactly on a boundary,
	// exercising the nocross search rather than trivially succeeding at
	// offset 0.
	_, err := a.Alloc(0x10, 0)
	require.NoError(t, err)

	addr, err := a.Xalloc(0x20, Constraints{NoCross: 0x1000}, 0)
	require.NoError(t, err)
	require.Equal(t, addr/0x1000, (addr+0x20-1)/0x1000, "allocation must not straddle a nocross boundary")
	require.NoError(t, a.CheckInvariants())
}

func TestXallocMinMaxWindow(t *testing.T) {
	a := newBaseArena(t, 0, 0x10000, 8)
	addr, err := a.Xalloc(0x100, Constraints{MinAddr: 0x4000, MaxAddr: 0x8000}, 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, addr, uint64(0x4000))
	require.LessOrEqual(t, addr+0x100-1, uint64(0x8000))
	require.NoError(t, a.CheckInvariants())
}

func TestXallocSourcedArenaRejectsMinMax(t *testing.T) {
	src := newBaseArena(t, 0, 0x10000, 8)
	afunc := func(source *Arena, size uint64, flags Flags) (uint64, error) { return source.Alloc(size, flags) }
	ffunc := func(source *Arena, addr uint64, size uint64) { source.Free(addr, size) }
	child, err := Create("child", 0, 0, 8, afunc, ffunc, src, 0, 0)
	require.NoError(t, err)

	require.Panics(t, func() {
		_, _ = child.Xalloc(0x100, Constraints{MinAddr: 0x100}, 0)
	})
}

func TestSpanImportAndCoalesceReturnsSpan(t *testing.T) {
	src := newBaseArena(t, 0, 0x10000, 0x1000)
	afunc := func(source *Arena, size uint64, flags Flags) (uint64, error) { return source.Alloc(size, flags) }
	ffunc := func(source *Arena, addr uint64, size uint64) { source.Free(addr, size) }
	child, err := Create("child", 0, 0, 0x1000, afunc, ffunc, src, 0, 0)
	require.NoError(t, err)

	before := src.Stats().AmtFree

	addr, err := child.Alloc(0x1000, 0)
	require.NoError(t, err)
	require.Less(t, src.Stats().AmtFree, before, "importing a span should consume space from the source")

	child.Free(addr, 0x1000)
	require.Equal(t, before, src.Stats().AmtFree, "a fully-freed span must be returned to the source")
	require.NoError(t, child.CheckInvariants())
	require.NoError(t, src.CheckInvariants())
}

func TestDoubleFreePanics(t *testing.T) {
	a := newBaseArena(t, 0, 0x1000, 8)
	addr, err := a.Alloc(0x40, 0)
	require.NoError(t, err)
	a.Free(addr, 0x40)
	require.Panics(t, func() { a.Free(addr, 0x40) })
}

func TestAllocWithoutSourceReturnsErrNoSource(t *testing.T) {
	a := newBaseArena(t, 0, 0x100, 8)
	_, err := a.Alloc(0x1000, MemAtomic)
	require.ErrorIs(t, err, ErrNoSource)
}

func TestOOMUnderAtomicReturnsError(t *testing.T) {
	src := newBaseArena(t, 0, 0x100, 8)
	afunc := func(source *Arena, size uint64, flags Flags) (uint64, error) { return source.Alloc(size, flags) }
	ffunc := func(source *Arena, addr uint64, size uint64) { source.Free(addr, size) }
	child, err := Create("child", 0, 0, 8, afunc, ffunc, src, 0, 0)
	require.NoError(t, err)

	_, err = child.Alloc(0x1000, MemAtomic)
	require.ErrorIs(t, err, ErrOOM)
}

func TestUnalignedAddPanics(t *testing.T) {
	a, _ := Create("q", 0, 0, 16, nil, nil, nil, 0, 0)
	require.Panics(t, func() { _ = a.Add(1, 16, 0) })
}
