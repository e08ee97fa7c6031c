package ustack

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ko6/defs"
)

func TestAllocCarvesDownward(t *testing.T) {
	p := NewPool(0, 0x10000)
	top1, ok := p.Alloc()
	require.True(t, ok)
	top2, ok := p.Alloc()
	require.True(t, ok)
	require.Less(t, top2, top1)
	require.Equal(t, top1-Size, top2)
}

func TestFreeReuseHighestAddress(t *testing.T) {
	p := NewPool(0, 0x10000)
	top1, _ := p.Alloc()
	top2, _ := p.Alloc()
	p.Free(top1)
	p.Free(top2)
	reused, ok := p.Alloc()
	require.True(t, ok)
	require.Equal(t, top1, reused, "highest-address free stack must be reused first")
}

func TestFreeOfUnknownStackPanics(t *testing.T) {
	p := NewPool(0, 0x10000)
	require.Panics(t, func() { p.Free(0x9999) })
}

func TestExhaustion(t *testing.T) {
	p := NewPool(0, Size)
	_, ok := p.Alloc()
	require.True(t, ok)
	_, ok = p.Alloc()
	require.False(t, ok)
}

func TestSbrkRejectsCrossingBoundary(t *testing.T) {
	p := NewPool(0, 0x10000)
	heapEnd := uintptr(0)
	prev, err := p.Sbrk(&heapEnd, 0x1000)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, uintptr(0), prev)
	require.Equal(t, uintptr(0x1000), heapEnd)

	before := heapEnd
	_, err = p.Sbrk(&heapEnd, int(p.Boundary()))
	require.Equal(t, -defs.EFAULT, err)
	require.Equal(t, before, heapEnd, "failed sbrk must not move heapEnd")
}

func TestSbrkRejectsNegative(t *testing.T) {
	p := NewPool(0, 0x10000)
	heapEnd := uintptr(0)
	_, err := p.Sbrk(&heapEnd, -1)
	require.Equal(t, -defs.EFAULT, err)
}
