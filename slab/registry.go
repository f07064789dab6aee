package slab

import "sync"

// registry.go is the global cache registry: every cache created through
// Create links onto one process-wide, size-sorted list, kept behind its
// own lock. Grounded on kmem_caches / kmem_caches_lock and the insertion
// logic in __kmem_cache_create (original_source/kern/src/slab.c); this
// lock is a leaf lock, meaning it is never held while trying to acquire a
// cache's own lock or an arena's lock.
var (
	registryMu sync.Mutex
	registry   []*Cache // kept sorted by objSize ascending, like the original's SLIST
)

func registerCache(c *Cache) {
	registryMu.Lock()
	defer registryMu.Unlock()
	i := 0
	for ; i < len(registry); i++ {
		if registry[i].objSize >= c.objSize {
			break
		}
	}
	registry = append(registry, nil)
	copy(registry[i+1:], registry[i:])
	registry[i] = c
}

func unregisterCache(c *Cache) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for i, rc := range registry {
		if rc == c {
			registry = append(registry[:i], registry[i+1:]...)
			return
		}
	}
}

// Registry returns every currently-registered cache, sorted ascending by
// object size, for diagnostics (e.g. the vmemctl cache-dump subcommand).
func Registry() []*Cache {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]*Cache, len(registry))
	copy(out, registry)
	return out
}

// Lookup finds the smallest registered cache whose objSize is >= size, the
// same "walk the size-sorted list" lookup kmalloc-style callers use to
// pick a cache for a request's size class.
func Lookup(size uint64) *Cache {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, c := range registry {
		if c.objSize >= size {
			return c
		}
	}
	return nil
}
