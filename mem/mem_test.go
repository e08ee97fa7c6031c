package mem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocFreeRoundTrip(t *testing.T) {
	a := NewAllocator(4)
	require.Equal(t, 4, a.NumFree())

	p1, i1, ok := a.Alloc()
	require.True(t, ok)
	require.NotNil(t, p1)
	require.Equal(t, 3, a.NumFree())

	p2, i2, ok := a.Alloc()
	require.True(t, ok)
	require.NotEqual(t, i1, i2)

	a.Free(i1)
	require.Equal(t, 3, a.NumFree())

	p3, i3, ok := a.Alloc()
	require.True(t, ok)
	require.Equal(t, i1, i3, "freed page should be reused")
	require.False(t, p3.IsValid())

	_ = p2
}

func TestAllocExhaustion(t *testing.T) {
	a := NewAllocator(2)
	_, _, ok := a.Alloc()
	require.True(t, ok)
	_, _, ok = a.Alloc()
	require.True(t, ok)
	_, _, ok = a.Alloc()
	require.False(t, ok)
}

func TestRefcountPanicsOnUnderflow(t *testing.T) {
	a := NewAllocator(1)
	p, _, _ := a.Alloc()
	require.Panics(t, func() { p.DecRefcount() })
}

func TestRefcountPanicsAtMax(t *testing.T) {
	a := NewAllocator(1)
	p, _, _ := a.Alloc()
	for i := 0; i < 255; i++ {
		p.IncRefcount()
	}
	require.Panics(t, func() { p.IncRefcount() })
}

func TestLBARoundTrip(t *testing.T) {
	a := NewAllocator(1)
	p, _, _ := a.Alloc()
	p.SetLBA(3, 128)
	minor, lba := p.GetLBA()
	require.Equal(t, 3, minor)
	require.Equal(t, 128, lba)
}

func TestAllocWaitRetriesAfterOOMSignal(t *testing.T) {
	a := NewAllocator(1)
	a.OOM = make(chan OOMRequest, 1)
	_, idx, ok := a.Alloc()
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		req := <-a.OOM
		a.Free(idx)
		req.Resume <- true
		close(done)
	}()

	_, _, ok = a.AllocWait(1)
	require.True(t, ok)
	<-done
}

func TestAllocWaitGivesUpWhenResumeFalse(t *testing.T) {
	a := NewAllocator(1)
	a.OOM = make(chan OOMRequest, 1)
	_, _, ok := a.Alloc()
	require.True(t, ok)

	go func() {
		req := <-a.OOM
		req.Resume <- false
	}()

	_, _, ok = a.AllocWait(1)
	require.False(t, ok)
}

func TestAllocWaitWithNoListenerFailsImmediately(t *testing.T) {
	a := NewAllocator(1)
	_, _, ok := a.Alloc()
	require.True(t, ok)

	_, _, ok = a.AllocWait(1)
	require.False(t, ok)
}

func TestDataIsPageSized(t *testing.T) {
	a := NewAllocator(1)
	p, _, _ := a.Alloc()
	require.Len(t, p.Data(), PageSize)
}
