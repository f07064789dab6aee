package kmem

// options.go holds kmem.Bootstrap's construction-time configuration —
// this module's ambient "configuration" surface. There's no persisted
// config file or environment parsing here; everything needed to stand up
// the system is decided once, at construction.

// Option configures Bootstrap.
type Option func(*config)

type config struct {
	totalSize   uint64
	quantum     uint64
	importScale uint8
	qcacheMax   uint64
	minClass    uint64
	maxClass    uint64
}

func defaultConfig() config {
	return config{
		totalSize:   64 << 20, // 64 MiB of address space behind the base arena
		quantum:     8,
		importScale: 3, // kpages imports from base at 8x the requested size
		qcacheMax:   0,
		minClass:    16,
		maxClass:    4096,
	}
}

// WithTotalSize sets how much backing address space the base arena is
// seeded with.
func WithTotalSize(n uint64) Option {
	return func(c *config) { c.totalSize = n }
}

// WithQuantum sets the minimum alignment/grain for every arena Bootstrap
// creates.
func WithQuantum(n uint64) Option {
	return func(c *config) { c.quantum = n }
}

// WithImportScale sets how aggressively the kpages and kmalloc arenas
// over-import from their source relative to a single request, amortizing
// future imports (the arena package's import_scale).
func WithImportScale(n uint8) Option {
	return func(c *config) { c.importScale = n }
}

// WithSizeClasses sets the inclusive range of power-of-two slab size
// classes System.Allocate will route through a cache rather than
// straight to the kmalloc arena.
func WithSizeClasses(min, max uint64) Option {
	return func(c *config) { c.minClass, c.maxClass = min, max }
}
