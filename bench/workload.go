// Package bench drives a *kmem.System with a synthetic mix of allocation
// sizes and shapes, and keeps hit/miss-style counters the way a
// pool-tier wrapper would, generalized from "which tier pool served
// this" to "which layer of the system served this".
package bench

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/shenjiangwei/vmemslab/arena"
	"github.com/shenjiangwei/vmemslab/kmem"
)

// Stats tallies what kind of request each allocation turned out to be,
// the way a pool-tier wrapper tallies hits/misses/fallbacks per tier.
// There's no qcache here, so "hit" means "served by a bootstrapped slab
// cache" rather than "served by a pre-warmed free buffer" — the nearest
// equivalent this system actually has.
type Stats struct {
	SlabHits      uint64 // request fit a bootstrapped size class
	KmallocMisses uint64 // request fell through to the kmalloc arena
	XallocOps     uint64 // constrained (aligned/phased) requests issued
	Frees         uint64
	BytesTouched  uint64 // sum of Alloc'd sizes whose first byte was written via Bytes()
}

// liveAlloc records what a tracked address needs to be freed through: its
// size, and whether it was handed out via the slab/kmalloc dispatch
// Allocate performs or went straight to Kmalloc().Xalloc, bypassing that
// dispatch entirely. A size alone isn't enough to know how to free an
// address — ClassFor(size) can match a bootstrapped class even when the
// address itself came from a direct, undispatched Xalloc.
type liveAlloc struct {
	size   uint64
	xalloc bool
}

// Workload wraps a *kmem.System with the bookkeeping needed to drive a
// repeatable random mix of allocate/touch/free cycles and report what
// happened, the way MemoryPool wrapped a hybrid.Allocator.
type Workload struct {
	mu    sync.Mutex
	sys   *kmem.System
	rng   *rand.Rand
	live  map[uint64]liveAlloc // addr -> origin, for outstanding allocations
	stats Stats
}

// New builds a Workload over an already-bootstrapped system. seed makes
// the generated request sequence reproducible across runs.
func New(sys *kmem.System, seed int64) *Workload {
	return &Workload{
		sys:  sys,
		rng:  rand.New(rand.NewSource(seed)),
		live: make(map[uint64]liveAlloc),
	}
}

// Alloc issues one allocation of size bytes, records whether it landed in
// a slab cache or the kmalloc arena, writes a byte into the returned
// range to prove the backing memory is real and addressable, and tracks
// it as a live allocation for a later Free or Drain.
func (w *Workload) Alloc(size uint64) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.allocLocked(size, 0)
}

func (w *Workload) allocLocked(size uint64, flags arena.Flags) (uint64, error) {
	if w.sys.ClassFor(size) != 0 {
		w.stats.SlabHits++
	} else {
		w.stats.KmallocMisses++
	}
	addr, err := w.sys.Allocate(size, flags)
	if err != nil {
		return 0, err
	}
	buf := w.sys.Bytes(addr, int(size))
	buf[0] = 0xA5
	w.stats.BytesTouched += size
	w.live[addr] = liveAlloc{size: size}
	return addr, nil
}

// XallocAligned issues a constrained request directly against the
// kmalloc arena — the Xalloc surface isn't part of the slab-dispatch
// path, so it bypasses Allocate and goes straight to the backing arena —
// and tracks the result as a live allocation the same way Alloc does.
func (w *Workload) XallocAligned(size, align, phase uint64) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	addr, err := w.sys.Kmalloc().Xalloc(size, arena.Constraints{Align: align, Phase: phase}, 0)
	if err != nil {
		return 0, err
	}
	w.stats.XallocOps++
	w.live[addr] = liveAlloc{size: size, xalloc: true}
	return addr, nil
}

// Free releases a previously allocated address. Freeing an address this
// Workload didn't hand out is a programmer error, the same as it is for
// kmem.System.Free and arena.Free underneath it.
func (w *Workload) Free(addr uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.freeLocked(addr)
}

func (w *Workload) freeLocked(addr uint64) {
	live, ok := w.live[addr]
	if !ok {
		panic(fmt.Sprintf("bench: free of untracked address %#x", addr))
	}
	delete(w.live, addr)
	// A direct Xalloc bypassed Allocate's slab/kmalloc dispatch, so it must
	// be freed straight back to Kmalloc() regardless of what ClassFor(size)
	// says — ClassFor matching a bootstrapped class doesn't mean this
	// particular address came from that class's cache.
	if !live.xalloc && w.sys.ClassFor(live.size) != 0 {
		w.sys.Free(addr, live.size)
	} else {
		w.sys.Kmalloc().Free(addr, live.size)
	}
	w.stats.Frees++
}

// Run drives n request cycles: each one allocates a random size in
// [minSize, maxSize], occasionally issues an aligned Xalloc instead, and
// frees a previously live allocation at random once the live set grows
// past keepLive — the same bursty allocate-then-drain shape
// MemoryPool.Allocate/Free exercised across mpool's tiers, generalized
// to this system's slab/kmalloc split.
func (w *Workload) Run(n int, minSize, maxSize uint64, keepLive int) error {
	for i := 0; i < n; i++ {
		w.mu.Lock()
		size := minSize
		if maxSize > minSize {
			size += uint64(w.rng.Int63n(int64(maxSize - minSize + 1)))
		}
		issueXalloc := w.rng.Intn(8) == 0
		w.mu.Unlock()

		var err error
		if issueXalloc {
			_, err = w.XallocAligned(size, 64, 0)
		} else {
			_, err = w.Alloc(size)
		}
		if err != nil {
			return fmt.Errorf("bench: request %d (size %d): %w", i, size, err)
		}

		w.mu.Lock()
		tooMany := len(w.live) > keepLive
		var victim uint64
		if tooMany {
			idx := w.rng.Intn(len(w.live))
			j := 0
			for addr := range w.live {
				if j == idx {
					victim = addr
					break
				}
				j++
			}
		}
		w.mu.Unlock()
		if tooMany {
			w.Free(victim)
		}
	}
	return nil
}

// Drain frees every allocation the workload still has live, the
// counterpart to MemoryPool.Close freeing every pool before reporting.
func (w *Workload) Drain() {
	w.mu.Lock()
	addrs := make([]uint64, 0, len(w.live))
	for addr := range w.live {
		addrs = append(addrs, addr)
	}
	w.mu.Unlock()
	for _, addr := range addrs {
		w.Free(addr)
	}
}

// Stats returns a snapshot of the counters accumulated so far.
func (w *Workload) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Report renders a human-readable summary, the bench analogue of
// MemoryPool.Close's final fmt.Printf of pool statistics.
func (w *Workload) Report() string {
	s := w.Stats()
	return fmt.Sprintf(
		"slab hits: %d, kmalloc misses: %d, xalloc ops: %d, frees: %d, bytes touched: %d",
		s.SlabHits, s.KmallocMisses, s.XallocOps, s.Frees, s.BytesTouched,
	)
}
