package kmem

import (
	"testing"

	"github.com/shenjiangwei/vmemslab/arena"
	"github.com/stretchr/testify/require"
)

func newTestSystem(t *testing.T) *System {
	t.Helper()
	sys, err := Bootstrap(
		WithTotalSize(8<<20),
		WithQuantum(8),
		WithSizeClasses(16, 256),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sys.Close() })
	return sys
}

func TestBootstrapBuildsArenaChain(t *testing.T) {
	sys := newTestSystem(t)
	require.NotNil(t, sys.Base())
	require.NotNil(t, sys.Kpages())
	require.NotNil(t, sys.Kmalloc())
	require.NotEmpty(t, sys.Caches())
}

func TestAllocateRoutesSmallSizesToSlabCache(t *testing.T) {
	sys := newTestSystem(t)
	addr, err := sys.Allocate(20, 0)
	require.NoError(t, err)

	buf := sys.Bytes(addr, 20)
	require.Len(t, buf, 20)
	buf[0] = 1

	sys.Free(addr, 20)
}

func TestAllocateRoutesLargeSizesToKmalloc(t *testing.T) {
	sys := newTestSystem(t)
	before := sys.Kmalloc().Stats().AmtAllocated

	addr, err := sys.Allocate(1<<16, 0)
	require.NoError(t, err)
	require.Greater(t, sys.Kmalloc().Stats().AmtAllocated, before)

	sys.Free(addr, 1<<16)
}

func TestAllocateManySmallObjectsAndFreeAll(t *testing.T) {
	sys := newTestSystem(t)
	var addrs []uint64
	for i := 0; i < 500; i++ {
		addr, err := sys.Allocate(32, 0)
		require.NoError(t, err)
		addrs = append(addrs, addr)
	}
	for _, addr := range addrs {
		sys.Free(addr, 32)
	}
	require.NoError(t, sys.Kpages().CheckInvariants())
	require.NoError(t, sys.Base().CheckInvariants())
}

func TestOOMUnderAtomicDisciplineReturnsError(t *testing.T) {
	sys, err := Bootstrap(WithTotalSize(1<<16), WithQuantum(8), WithSizeClasses(16, 16))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sys.Close() })

	_, err = sys.Allocate(1<<30, arena.MemAtomic)
	require.Error(t, err)
}
