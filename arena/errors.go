package arena

import "errors"

// Error definitions. Programmer errors (freeing an unknown address, a
// mismatched size, non-power-of-two alignment, ...) panic instead of
// returning an error.
var (
	// ErrOOM is returned (never panicked) when an atomic-discipline
	// allocation cannot be satisfied and no more resources can be
	// imported from a source.
	ErrOOM = errors.New("arena: out of memory")
	// ErrNoSource is returned (or panicked, under non-atomic discipline)
	// in place of ErrOOM when no free segment fits a request and the
	// arena has no source to import more from.
	ErrNoSource = errors.New("arena: no source to import from and no free segment fits")
)
