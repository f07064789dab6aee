// Package pageframe is the only place in this module that touches real
// backing memory. Every other package (arena, slab, kmem) works purely in
// terms of uint64 addresses and never dereferences a pointer built from
// one; pageframe hands out a Source that turns an address an arena has
// already agreed to hand out into an actual byte slice.
//
// Grounded on the mmap-based buffer backers in
// other_examples/momentics-hioload-ws__bufferpool_linux.go and
// other_examples/aethne0-bongodb__system_linux.go, both of which wrap
// golang.org/x/sys/unix (or the syscall package directly) around one
// anonymous mmap call and hand back a []byte.
package pageframe

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Source maps a numeric address range, already agreed on by an arena, to
// real bytes. Base is the lowest address the source backs; an arena is
// expected to be seeded with [Base(), Base()+Size()) so every address it
// ever hands out falls inside what Bytes can serve.
type Source interface {
	Base() uintptr
	Size() uintptr
	// Bytes returns the length bytes starting at addr. It panics if the
	// range isn't entirely within [Base(), Base()+Size()) — an
	// out-of-range request here means a caller above this package
	// mismanaged its own address bookkeeping.
	Bytes(addr uintptr, length int) []byte
}

// Mmap backs an address range with one anonymous, page-backed mapping
// obtained via mmap(2). The mapping is never resized; callers that need
// more space create another Mmap and let an arena import from it as a
// second span.
type Mmap struct {
	buf  []byte
	base uintptr
}

// NewMmap reserves size bytes of anonymous memory. The kernel backs the
// mapping with whole pages, but Size() reports exactly size and Bytes
// serves only that range.
func NewMmap(size int) (*Mmap, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pageframe: invalid mmap size %d", size)
	}
	buf, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("pageframe: mmap %d bytes: %w", size, err)
	}
	m := &Mmap{buf: buf}
	// This and the matching cast in NewHeap are the only pointer-to-integer
	// casts in the module, and they never go back the other way: base is used only as a
	// bookkeeping token an arena can do arithmetic on, compared against
	// other addresses, and subtracted back out in Bytes below.
	m.base = uintptr(unsafe.Pointer(&buf[0]))
	return m, nil
}

func (m *Mmap) Base() uintptr { return m.base }
func (m *Mmap) Size() uintptr { return uintptr(len(m.buf)) }

func (m *Mmap) Bytes(addr uintptr, length int) []byte {
	off, ok := m.offset(addr, length)
	if !ok {
		panic(fmt.Sprintf("pageframe: [%#x,+%#x) out of range for mapping [%#x,+%#x)",
			addr, length, m.base, len(m.buf)))
	}
	return m.buf[off : off+uintptr(length)]
}

func (m *Mmap) offset(addr uintptr, length int) (uintptr, bool) {
	if length < 0 || addr < m.base {
		return 0, false
	}
	off := addr - m.base
	if off > uintptr(len(m.buf)) || uintptr(length) > uintptr(len(m.buf))-off {
		return 0, false
	}
	return off, true
}

// Close unmaps the region. Nothing in this module calls Close on a source
// an arena still has live spans over; it exists for completeness and for
// tests that create short-lived mappings.
func (m *Mmap) Close() error {
	return unix.Munmap(m.buf)
}

// Heap is a Source backed by an ordinary Go-heap []byte instead of a real
// mapping — the fallback path momentics-hioload-ws takes when its
// hugepage mmap fails, used here for tests and for any environment where
// an anonymous mapping isn't available or worth the syscall.
type Heap struct {
	buf  []byte
	base uintptr
}

// NewHeap allocates size bytes on the Go heap to back a Source.
func NewHeap(size int) *Heap {
	buf := make([]byte, size)
	h := &Heap{buf: buf}
	if size > 0 {
		h.base = uintptr(unsafe.Pointer(&buf[0]))
	}
	return h
}

func (h *Heap) Base() uintptr { return h.base }
func (h *Heap) Size() uintptr { return uintptr(len(h.buf)) }

func (h *Heap) Bytes(addr uintptr, length int) []byte {
	if length == 0 {
		return nil
	}
	if addr < h.base || addr-h.base > uintptr(len(h.buf)) || uintptr(length) > uintptr(len(h.buf))-(addr-h.base) {
		panic(fmt.Sprintf("pageframe: [%#x,+%#x) out of range for heap region [%#x,+%#x)",
			addr, length, h.base, len(h.buf)))
	}
	off := addr - h.base
	return h.buf[off : off+uintptr(length)]
}
