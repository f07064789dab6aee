// Package kmem ties the arena and slab packages together into one
// ready-to-use allocation system: a bootstrap sequence generalized to
// also stand up a small family of well-known slab size classes, the way
// a real kernel boots its general-purpose allocator before anything else
// can run.
package kmem

import (
	"fmt"

	"github.com/shenjiangwei/vmemslab/arena"
	"github.com/shenjiangwei/vmemslab/internal/klog"
	"github.com/shenjiangwei/vmemslab/pageframe"
	"github.com/shenjiangwei/vmemslab/slab"
)

// System is the bootstrapped allocator: a base arena, a kpages arena that
// imports spans from it, a kmalloc arena that imports from kpages
// for anything too large or irregular for a slab cache, and a family of
// slab caches for common small sizes. This is the Go analogue of the
// "general purpose kernel allocator" the original's arena_init +
// kmem_cache_init sequence stands up.
type System struct {
	cfg config

	source pageframe.Source

	base    *arena.Arena
	kpages  *arena.Arena
	kmalloc *arena.Arena

	classes []uint64 // ascending power-of-two size classes with a cache
	caches  map[uint64]*slab.Cache
}

// sourceAlloc/sourceFree give an arena the plain (source, size, flags) /
// (source, addr, size) shape arena.AllocFunc/arena.FreeFunc need to import
// from and return span to whatever arena is passed as source — the same
// afunc/ffunc pair works for every import edge in the system because
// arena.Arena.Alloc/Free already carry that shape.
func sourceAlloc(source *arena.Arena, size uint64, flags arena.Flags) (uint64, error) {
	return source.Alloc(size, flags)
}

func sourceFree(source *arena.Arena, addr uint64, size uint64) {
	source.Free(addr, size)
}

// Bootstrap reserves a region of backing memory, builds the base/kpages/
// kmalloc arena chain over it, and creates a slab cache for every
// power-of-two size class in [minClass, maxClass], so a kmalloc-style
// request dispatches to a slab cache whenever one exists for its size
// class.
func Bootstrap(opts ...Option) (*System, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	src, err := pageframe.NewMmap(int(cfg.totalSize))
	if err != nil {
		return nil, fmt.Errorf("kmem: reserving backing memory: %w", err)
	}

	base := arena.Builder("base", cfg.quantum, nil, nil, nil, 0)
	if err := base.Add(uint64(src.Base()), uint64(src.Size()), 0); err != nil {
		return nil, fmt.Errorf("kmem: seeding base arena: %w", err)
	}

	kpages := arena.Builder("kpages", cfg.quantum, sourceAlloc, sourceFree, base, cfg.qcacheMax)
	kpages.SetImportScale(cfg.importScale)

	kmalloc := arena.Builder("kmalloc", cfg.quantum, sourceAlloc, sourceFree, kpages, cfg.qcacheMax)
	kmalloc.SetImportScale(cfg.importScale)

	sys := &System{
		cfg:     cfg,
		source:  src,
		base:    base,
		kpages:  kpages,
		kmalloc: kmalloc,
		caches:  make(map[uint64]*slab.Cache),
	}

	for class := cfg.minClass; class <= cfg.maxClass; class <<= 1 {
		name := fmt.Sprintf("kmalloc-%d", class)
		c, err := slab.Create(name, class, cfg.quantum, kpages, src, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("kmem: creating size-class cache %s: %w", name, err)
		}
		sys.caches[class] = c
		sys.classes = append(sys.classes, class)
	}

	klog.Info("kmem: bootstrapped system with %d size classes, total=%d", len(sys.classes), cfg.totalSize)
	return sys, nil
}

// Base returns the root arena backing the whole system (diagnostics only;
// allocating from it directly bypasses the size-class dispatch System.
// Allocate performs).
func (s *System) Base() *arena.Arena { return s.base }

// Kpages returns the arena every slab cache draws its (page-aligned) pages
// from.
func (s *System) Kpages() *arena.Arena { return s.kpages }

// Kmalloc returns the general-purpose arena used for requests with no
// matching size class.
func (s *System) Kmalloc() *arena.Arena { return s.kmalloc }

// Caches returns every well-known size-class cache, ascending by size.
func (s *System) Caches() []*slab.Cache {
	out := make([]*slab.Cache, len(s.classes))
	for i, class := range s.classes {
		out[i] = s.caches[class]
	}
	return out
}
