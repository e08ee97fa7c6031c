package slab

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ko6/mem"
)

func TestKmallocZeroed(t *testing.T) {
	pa := mem.NewAllocator(4)
	h := NewHeap(pa, 16)
	b, _ := h.Kmalloc(40)
	for _, c := range b {
		require.Zero(t, c)
	}
	require.Len(t, b, 40)
}

func TestKmallocRejectsOversize(t *testing.T) {
	pa := mem.NewAllocator(4)
	h := NewHeap(pa, 16)
	require.Panics(t, func() { h.Kmalloc(mem.PageSize + 1) })
}

func TestFreeListChurn(t *testing.T) {
	pa := mem.NewAllocator(4)
	h := NewHeap(pa, 16)

	objsPerPage := mem.PageSize / 16
	var ptrs []Ptr
	for i := 0; i < objsPerPage; i++ {
		_, p := h.Kmalloc(16)
		ptrs = append(ptrs, p)
	}
	require.Equal(t, 0, h.FreeListLen(1), "page fully carved, nothing left free")
	require.Equal(t, 3, pa.NumFree())

	for _, p := range ptrs {
		h.Kfree(p)
	}
	require.Equal(t, 0, h.FreeListLen(1), "emptied page must be returned to the page allocator")
	require.Equal(t, 4, pa.NumFree())
}

func TestWholePageAllocation(t *testing.T) {
	pa := mem.NewAllocator(2)
	h := NewHeap(pa, 16)
	b, p := h.Kmalloc(mem.PageSize)
	require.Len(t, b, mem.PageSize)
	require.Equal(t, 1, pa.NumFree())
	h.Kfree(p)
	require.Equal(t, 2, pa.NumFree())
}

func TestKstrdupNulTerminated(t *testing.T) {
	pa := mem.NewAllocator(4)
	h := NewHeap(pa, 16)
	b, _ := h.Kstrdup("hi")
	require.Equal(t, []byte{'h', 'i', 0}, b[:3])
}
