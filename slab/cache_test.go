package slab

import (
	"testing"

	"github.com/shenjiangwei/vmemslab/arena"
	"github.com/shenjiangwei/vmemslab/pageframe"
	"github.com/stretchr/testify/require"
)

func newPagesArena(t *testing.T, size uint64) (*arena.Arena, pageframe.Source) {
	t.Helper()
	h := pageframe.NewHeap(int(size))
	// The backing arena's own quantum doesn't need to match a real page
	// size: slab.Cache always requests whole multiples of
	// pageframe_PageSize regardless of what grain the arena itself
	// enforces, and a Go-heap Source's base address isn't guaranteed to
	// land on a page boundary the way a real mmap's would.
	a, err := arena.Create("test-pages", uint64(h.Base()), size, 1, nil, nil, nil, 0, 0)
	require.NoError(t, err)
	return a, h
}

func TestSmallObjectAllocFreeRoundTrip(t *testing.T) {
	a, src := newPagesArena(t, 1<<20)
	c, err := Create("test-small", 32, 8, a, src, nil, nil)
	require.NoError(t, err)
	defer c.Destroy()

	addr, err := c.Alloc(0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), c.NrCurAlloc())

	buf := c.Bytes(addr)
	require.Len(t, buf, 32)
	buf[0] = 0x42

	c.Free(addr)
	require.Equal(t, uint64(0), c.NrCurAlloc())
}

func TestSmallObjectFreeListThreading(t *testing.T) {
	a, src := newPagesArena(t, 1<<20)
	c, err := Create("test-thread", 16, 8, a, src, nil, nil)
	require.NoError(t, err)

	var addrs []uint64
	for i := 0; i < 32; i++ {
		addr, err := c.Alloc(0)
		require.NoError(t, err)
		addrs = append(addrs, addr)
	}
	for _, addr := range addrs {
		c.Free(addr)
	}
	require.Equal(t, uint64(0), c.NrCurAlloc())

	// Reallocating the same count should succeed by walking the
	// now-fully-free chain back through every slot.
	addrs = addrs[:0]
	for i := 0; i < 32; i++ {
		addr, err := c.Alloc(0)
		require.NoError(t, err)
		addrs = append(addrs, addr)
	}
	require.Equal(t, uint64(32), c.NrCurAlloc())
	for _, addr := range addrs {
		c.Free(addr)
	}
	c.Destroy()
}

func TestLargeObjectUsesBufctlLayout(t *testing.T) {
	a, src := newPagesArena(t, 4<<20)
	c, err := Create("test-large", largeCutoff*4, 8, a, src, nil, nil)
	require.NoError(t, err)
	require.True(t, c.large)

	addr, err := c.Alloc(0)
	require.NoError(t, err)
	buf := c.Bytes(addr)
	buf[0] = 0x7E

	c.Free(addr)
	require.Equal(t, uint64(0), c.NrCurAlloc())
	c.Destroy()
}

func TestCacheGrowsAcrossSlabs(t *testing.T) {
	a, src := newPagesArena(t, 4<<20)
	c, err := Create("test-grow", 64, 8, a, src, nil, nil)
	require.NoError(t, err)

	objsPerPage := int(pageframe_PageSize / c.slotSize)
	var addrs []uint64
	for i := 0; i < objsPerPage*3; i++ {
		addr, err := c.Alloc(0)
		require.NoError(t, err)
		addrs = append(addrs, addr)
	}
	require.Equal(t, uint64(len(addrs)), c.NrCurAlloc())

	for _, addr := range addrs {
		c.Free(addr)
	}
	require.Equal(t, uint64(0), c.NrCurAlloc())
	c.Destroy()
}

func TestDestroyWithLiveAllocationsPanics(t *testing.T) {
	a, src := newPagesArena(t, 1<<20)
	c, err := Create("test-destroy", 32, 8, a, src, nil, nil)
	require.NoError(t, err)
	addr, err := c.Alloc(0)
	require.NoError(t, err)
	require.Panics(t, func() { c.Destroy() })
	c.Free(addr)
	c.Destroy()
}

func TestReapFreesEmptySlabs(t *testing.T) {
	a, src := newPagesArena(t, 1<<20)
	c, err := Create("test-reap", 32, 8, a, src, nil, nil)
	require.NoError(t, err)
	addr, err := c.Alloc(0)
	require.NoError(t, err)
	before := a.Stats().AmtAllocated
	c.Free(addr)
	c.Reap()
	require.Less(t, a.Stats().AmtAllocated, before, "reap should return the emptied slab's page to the arena")
	c.Destroy()
}

// TestSingleObjectSlabGoesStraightToEmpty exercises Free's full/partial/
// empty transition on a slab that holds exactly one object — reached
// through Create/grow only with an alignment above half a page,
// so numTotal is forced down to 1 on an otherwise normally-grown slab
// (real page, real address) to isolate just the transition logic under
// test. Freeing that one object must land the slab on empty, not strand
// it on partial: a slab stuck on partial with zero busy objects makes
// Destroy panic even though nothing is actually still allocated.
func TestSingleObjectSlabGoesStraightToEmpty(t *testing.T) {
	a, src := newPagesArena(t, 1<<20)
	c, err := Create("test-single", 32, 8, a, src, nil, nil)
	require.NoError(t, err)

	addr, err := c.Alloc(0)
	require.NoError(t, err)
	s := c.pageIndex[roundDownPage(addr)]
	require.NotNil(t, s)
	require.True(t, c.full.empty(), "one alloc on a fresh multi-slot slab should sit on partial")
	c.partial.remove(s)
	s.numTotal = s.numBusy
	c.full.pushFront(s)

	c.Free(addr)

	require.Equal(t, uint64(0), c.nrCurAlloc)
	require.True(t, c.full.empty(), "slab must leave the full list on its only free")
	require.True(t, c.partial.empty(), "a fully-freed single-object slab must not be stranded on partial")
	require.False(t, c.empty.empty(), "a fully-freed single-object slab belongs on the empty list")
	require.NotPanics(t, func() { c.Destroy() })
}

func TestRegistryLookupPicksSmallestSufficientCache(t *testing.T) {
	a, src := newPagesArena(t, 1<<20)
	small, err := Create("lookup-16", 16, 8, a, src, nil, nil)
	require.NoError(t, err)
	big, err := Create("lookup-64", 64, 8, a, src, nil, nil)
	require.NoError(t, err)
	defer small.Destroy()
	defer big.Destroy()

	require.Equal(t, small, Lookup(10))
	require.Equal(t, big, Lookup(40))
	require.Nil(t, Lookup(1<<20))
}
