// Package slab implements an object cache: a per-object-size cache of
// fixed-size buffers, laid out across pages drawn from a backing arena
// and backed by real bytes through a pageframe.Source. Grounded on
// original_source/kern/src/slab.c (the Akaros slab allocator, itself
// based on the SunOS 5.4 slab paper).
package slab

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/shenjiangwei/vmemslab/arena"
	"github.com/shenjiangwei/vmemslab/internal/klog"
	"github.com/shenjiangwei/vmemslab/pageframe"
)

// largeCutoff is the object size above which a cache switches from the
// packed, free-list-threaded small-object layout to the bufctl-tracked
// large-object layout. original_source/kern/src/slab.c compares against
// a SLAB_LARGE_CUTOFF that isn't defined in any header this module's
// source pack retrieved; this value (an eighth of a page) is a from-first-
// principles choice recorded as an Open Question decision in DESIGN.md,
// not a value read out of the original.
const largeCutoff = pageframe_PageSize / 8

// pageframe_PageSize mirrors arena.PageSize without slab depending on
// arena's internal constant name; both packages agree a page is 4096
// bytes.
const pageframe_PageSize = 4096

// numBufPerSlab is how many objects a large-object slab's buffer run is
// sized to hold, mirroring NUM_BUF_PER_SLAB in the original (also not
// present in the retrieved headers; chosen the same way as largeCutoff).
const numBufPerSlab = 8

const freeListWordSize = 8 // bytes reserved per small object for the next-free pointer

// Ctor initializes a freshly-grown object's bytes. Dtor undoes it when a
// slab is destroyed. Either may be nil.
type Ctor func(buf []byte)
type Dtor func(buf []byte)

// Cache is a fixed-size object cache: one per-size slab cache.
type Cache struct {
	mu sync.Mutex

	name    string
	objSize uint64
	align   uint64
	large   bool

	ctor Ctor
	dtor Dtor

	pages  *arena.Arena
	source pageframe.Source

	full, partial, empty slabList

	// pageIndex backs small-slab Free: the page a small object lives on
	// is always exactly the page its slab was grown from, so the page's
	// base address is enough to find the owning slab without pointer
	// arithmetic into the page itself.
	pageIndex map[uint64]*slab
	// bufctlIndex backs large-slab Free the same way pageIndex backs
	// small-slab Free: a Go-side index standing in for the original's
	// buf2bufctl pointer trick.
	bufctlIndex map[uint64]*bufctl

	nrCurAlloc uint64

	slotSize uint64 // bytes per object slot (small slabs include the free-list word)
	runPages int    // large-slab only: pages per buffer run (1<<order)
	runOrder int
}

// Create builds a new cache of fixed-size objects, each obj_size bytes,
// aligned to align (8 if align is 0), drawing
// pages from pages and real bytes from source. Grounded on
// __kmem_cache_create / kmem_cache_create.
func Create(name string, objSize, align uint64, pages *arena.Arena, source pageframe.Source, ctor Ctor, dtor Dtor) (*Cache, error) {
	if objSize == 0 {
		panic("slab: object size must be > 0")
	}
	if align == 0 {
		align = 8
	}
	c := &Cache{
		name:        name,
		objSize:     objSize,
		align:       align,
		ctor:        ctor,
		dtor:        dtor,
		pages:       pages,
		source:      source,
		pageIndex:   make(map[uint64]*slab),
		bufctlIndex: make(map[uint64]*bufctl),
	}
	c.large = objSize > largeCutoff
	if !c.large {
		c.slotSize = roundUp(objSize+freeListWordSize, align)
	} else {
		c.slotSize = roundUp(objSize, align)
		minPages := (numBufPerSlab*c.slotSize + pageframe_PageSize - 1) / pageframe_PageSize
		c.runOrder = log2Up(minPages)
		c.runPages = 1 << c.runOrder
	}
	registerCache(c)
	klog.Debug("slab: created cache %s objSize=%d large=%v", name, objSize, c.large)
	return c, nil
}

func roundUp(n, q uint64) uint64 {
	if q == 0 {
		return n
	}
	if r := n % q; r != 0 {
		return n + (q - r)
	}
	return n
}

func log2Up(n uint64) int {
	if n <= 1 {
		return 0
	}
	i, p := 0, uint64(1)
	for p < n {
		p <<= 1
		i++
	}
	return i
}

// Name returns the cache's diagnostic name.
func (c *Cache) Name() string { return c.name }

// ObjSize returns the size of objects this cache hands out.
func (c *Cache) ObjSize() uint64 { return c.objSize }

// NrCurAlloc returns the number of objects currently allocated.
func (c *Cache) NrCurAlloc() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nrCurAlloc
}

// Alloc hands out one object, growing the cache if every existing slab is
// full. Grounded on kmem_cache_alloc.
func (c *Cache) Alloc(flags arena.Flags) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.partial.first
	if s == nil {
		if c.empty.empty() {
			if !c.grow(flags) {
				if flags&arena.MemAtomic != 0 {
					return 0, ErrOOM
				}
				panic(fmt.Sprintf("slab: cache %s out of memory growing", c.name))
			}
		}
		s = c.empty.popFront()
		c.partial.pushFront(s)
	}

	var addr uint64
	if !c.large {
		addr = s.freeSmallObj
		next := binary.LittleEndian.Uint64(c.source.Bytes(uintptrOf(addr+c.objSize), freeListWordSize))
		s.freeSmallObj = next
	} else {
		bc := s.bufctlHead
		s.bufctlHead = bc.listNext
		addr = bc.bufAddr
	}
	s.numBusy++
	if s.numBusy == s.numTotal {
		c.partial.remove(s)
		c.full.pushFront(s)
	}
	c.nrCurAlloc++
	return addr, nil
}

// Free returns an object previously handed out by Alloc. addr must be
// exactly the address Alloc returned; any other address is a programmer
// error and panics.
func (c *Cache) Free(addr uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s *slab
	if !c.large {
		pageBase := roundDownPage(addr)
		s = c.pageIndex[pageBase]
		if s == nil {
			panic(ErrNotAllocated)
		}
		binary.LittleEndian.PutUint64(c.source.Bytes(uintptrOf(addr+c.objSize), freeListWordSize), s.freeSmallObj)
		s.freeSmallObj = addr
	} else {
		bc := c.bufctlIndex[addr]
		if bc == nil {
			panic(ErrNotAllocated)
		}
		s = bc.mySlab
		bc.listNext = s.bufctlHead
		s.bufctlHead = bc
	}

	wasFull := s.numBusy == s.numTotal
	s.numBusy--
	c.nrCurAlloc--
	switch {
	case wasFull:
		// A single-object slab (numTotal == 1) goes straight from full to
		// empty on its one free; checking wasFull first, rather than an
		// else-if chained off it, keeps that case from getting stranded
		// on partial.
		c.full.remove(s)
		if s.numBusy == 0 {
			c.empty.pushFront(s)
		} else {
			c.partial.pushFront(s)
		}
	case s.numBusy == 0:
		c.partial.remove(s)
		c.empty.pushFront(s)
	}
}

// Bytes returns the object's bytes for an address this cache handed out.
func (c *Cache) Bytes(addr uint64) []byte {
	return c.source.Bytes(uintptrOf(addr), int(c.objSize))
}

// Reap destroys every slab currently on the empty list, returning their
// pages to the backing arena. Grounded on kmem_cache_reap.
func (c *Cache) Reap() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		s := c.empty.popFront()
		if s == nil {
			return
		}
		c.destroySlab(s)
	}
}

// Destroy tears the cache down. Every slab (including partially and fully
// allocated ones - which must not exist, or this panics, matching the
// original's asserts) is released.
func (c *Cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.full.empty() || !c.partial.empty() {
		panic(fmt.Sprintf("slab: cache %s destroyed with live allocations", c.name))
	}
	for {
		s := c.empty.popFront()
		if s == nil {
			break
		}
		c.destroySlab(s)
	}
	unregisterCache(c)
}

func roundDownPage(addr uint64) uint64 {
	return addr - addr%pageframe_PageSize
}

func uintptrOf(addr uint64) uintptr { return uintptr(addr) }
