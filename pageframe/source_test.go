package pageframe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeapBytesRoundTrip(t *testing.T) {
	h := NewHeap(4096)
	b := h.Bytes(h.Base()+16, 8)
	require.Len(t, b, 8)
	b[0] = 0xAB
	again := h.Bytes(h.Base()+16, 8)
	require.Equal(t, byte(0xAB), again[0], "Bytes must re-slice the same backing array, not copy")
}

func TestHeapBytesOutOfRangePanics(t *testing.T) {
	h := NewHeap(64)
	require.Panics(t, func() { h.Bytes(h.Base()+60, 16) })
}

func TestMmapBytesRoundTrip(t *testing.T) {
	m, err := NewMmap(4096)
	require.NoError(t, err)
	defer m.Close()

	b := m.Bytes(m.Base(), 16)
	require.Len(t, b, 16)
	b[4] = 0x7E
	again := m.Bytes(m.Base()+4, 1)
	require.Equal(t, byte(0x7E), again[0])
}

func TestMmapBytesOutOfRangePanics(t *testing.T) {
	m, err := NewMmap(4096)
	require.NoError(t, err)
	defer m.Close()
	require.Panics(t, func() { m.Bytes(m.Base()+4090, 16) })
}
