package bench

import (
	"testing"

	"github.com/shenjiangwei/vmemslab/kmem"
	"github.com/stretchr/testify/require"
)

func newTestSystem(t *testing.T) *kmem.System {
	t.Helper()
	sys, err := kmem.Bootstrap(
		kmem.WithTotalSize(16<<20),
		kmem.WithQuantum(8),
		kmem.WithSizeClasses(16, 2048),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sys.Close() })
	return sys
}

func TestAllocRoutesToSlabOrKmallocAndTracksStats(t *testing.T) {
	w := New(newTestSystem(t), 1)

	small, err := w.Alloc(32)
	require.NoError(t, err)
	large, err := w.Alloc(1 << 16)
	require.NoError(t, err)

	stats := w.Stats()
	require.Equal(t, uint64(1), stats.SlabHits)
	require.Equal(t, uint64(1), stats.KmallocMisses)

	w.Free(small)
	w.Free(large)
	require.Equal(t, uint64(2), w.Stats().Frees)
}

func TestXallocAlignedTracksLiveAllocation(t *testing.T) {
	w := New(newTestSystem(t), 2)

	addr, err := w.XallocAligned(256, 64, 0)
	require.NoError(t, err)
	require.Zero(t, addr%64)
	require.Equal(t, uint64(1), w.Stats().XallocOps)

	w.Free(addr)
	require.Equal(t, uint64(1), w.Stats().Frees)
}

func TestRunDrivesWorkloadAndDrainFreesEverything(t *testing.T) {
	w := New(newTestSystem(t), 3)

	err := w.Run(200, 16, 512, 32)
	require.NoError(t, err)

	stats := w.Stats()
	require.Greater(t, stats.SlabHits+stats.KmallocMisses, uint64(0))
	require.NotEmpty(t, w.Report())

	w.Drain()
	require.Zero(t, len(w.live))
}

func TestFreeOfUntrackedAddressPanics(t *testing.T) {
	w := New(newTestSystem(t), 4)
	require.Panics(t, func() { w.Free(0xdeadbeef) })
}
