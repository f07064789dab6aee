package kmem

import (
	"github.com/shenjiangwei/vmemslab/arena"
	"github.com/shenjiangwei/vmemslab/internal/klog"
)

// system.go implements the general-purpose dispatch: a small request
// that fits one of the bootstrapped size classes goes to that class's
// slab cache; everything else goes straight to the kmalloc arena. This
// generalizes a single slab-vs-buddy size threshold to a multi-class
// lookup.

// classFor returns the smallest bootstrapped size class that fits size,
// or 0 if size is too big for any class (the caller should fall through
// to the kmalloc arena directly).
func (s *System) classFor(size uint64) uint64 {
	for _, class := range s.classes {
		if class >= size {
			return class
		}
	}
	return 0
}

// ClassFor exposes classFor for diagnostics and the bench package, which
// wants to know whether a given request would be served by a slab cache
// before it actually issues it.
func (s *System) ClassFor(size uint64) uint64 { return s.classFor(size) }

// Allocate hands out size bytes, dispatching to a size-class slab cache
// when one fits and to the kmalloc arena otherwise.
func (s *System) Allocate(size uint64, flags arena.Flags) (uint64, error) {
	if size == 0 {
		panic("kmem: Allocate(0)")
	}
	if class := s.classFor(size); class != 0 {
		addr, err := s.caches[class].Alloc(flags)
		if err != nil {
			return 0, s.oomPolicy(err)
		}
		return addr, nil
	}
	addr, err := s.kmalloc.Alloc(size, flags)
	if err != nil {
		return 0, s.oomPolicy(err)
	}
	return addr, nil
}

// oomPolicy is the seam a future blocking/retrying OOM policy would
// replace: today every OOM under non-atomic discipline already panicked
// before this hook runs (arena.Alloc and slab.Cache.Alloc panic
// internally unless MemAtomic was set), so this just passes an
// atomic-discipline error through unchanged, without needing to touch
// Allocate's call sites.
func (s *System) oomPolicy(err error) error {
	return err
}

// Free releases an allocation made by Allocate. size must match exactly
// what was requested: it picks the size-class cache (or the kmalloc arena)
// the address goes back to. arena.Free panics on a size mismatch;
// slab.Cache.Free takes no size and panics only on an address it never
// handed out.
func (s *System) Free(addr uint64, size uint64) {
	if class := s.classFor(size); class != 0 {
		s.caches[class].Free(addr)
		return
	}
	s.kmalloc.Free(addr, size)
}

// Bytes returns the real bytes backing addr. Every address this System
// ever hands out is backed by the same pageframe.Source, regardless of
// whether it came from a slab cache or the kmalloc arena directly.
func (s *System) Bytes(addr uint64, length int) []byte {
	return s.source.Bytes(uintptrOf(addr), length)
}

func uintptrOf(addr uint64) uintptr { return uintptr(addr) }

// Close releases the backing memory region. Every arena and cache built
// on top of it becomes invalid; callers must not use the System again
// after calling Close.
func (s *System) Close() error {
	if closer, ok := s.source.(interface{ Close() error }); ok {
		klog.Debug("kmem: releasing backing memory")
		return closer.Close()
	}
	return nil
}
