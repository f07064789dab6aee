package slab

import "errors"

// ErrOOM is returned (never panicked) when a cache can't grow and the
// caller requested atomic discipline (arena.MemAtomic). Matches arena's ErrOOM
// convention so callers layered on top of both packages can treat OOM the
// same way everywhere.
var ErrOOM = errors.New("slab: out of memory")

// ErrNotAllocated is a programmer error: freeing an address this cache
// never handed out. It panics rather than returning, like arena.Free's
// equivalent check, since there's no way to recover a caller's corrupted
// bookkeeping.
var ErrNotAllocated = errors.New("slab: free of address not owned by this cache")
