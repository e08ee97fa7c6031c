package ksync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ko6/defs"
	"ko6/mem"
	"ko6/thread"
	"ko6/ustack"
)

func newTestScheduler(n int) *thread.Scheduler {
	pa := mem.NewAllocator(n + 4)
	stacks := ustack.NewPool(0, uintptr((n+4)*ustack.Size))
	return thread.NewScheduler(n, 1, pa, stacks)
}

func TestMutexFIFOHandoff(t *testing.T) {
	s := newTestScheduler(8)
	m := NewMutex(s)

	var order []int
	done := make(chan struct{})
	orderMu := make(chan struct{}, 1)
	orderMu <- struct{}{}
	record := func(id int) {
		<-orderMu
		order = append(order, id)
		orderMu <- struct{}{}
	}

	holder, _ := s.Create(func(arg any) {
		me := s.Current(0)
		require.Equal(t, 0, int(m.Lock(0, me)))
		record(0)
		// give waiters a chance to queue up behind us
		s.Yield(0, me)
		s.Yield(0, me)
		require.Equal(t, 0, int(m.Unlock(me)))
	}, nil)

	var waiters []*thread.Thread
	for i := 1; i <= 3; i++ {
		id := i
		w, _ := s.Create(func(arg any) {
			me := s.Current(0)
			require.Equal(t, 0, int(m.Lock(0, me)))
			record(id)
			require.Equal(t, 0, int(m.Unlock(me)))
			if id == 3 {
				close(done)
			}
		}, nil)
		waiters = append(waiters, w)
	}
	_ = waiters

	s.Boot(0, holder)
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("mutex handoff never completed")
	}
	require.Equal(t, []int{0, 1, 2, 3}, order, "FIFO wait list must be honored")
}

func TestMutexDoubleLockIsDeadlock(t *testing.T) {
	s := newTestScheduler(4)
	m := NewMutex(s)
	done := make(chan defs.Err_t, 1)
	th, _ := s.Create(func(arg any) {
		me := s.Current(0)
		require.Equal(t, 0, int(m.Lock(0, me)))
		done <- m.Lock(0, me)
	}, nil)
	s.Boot(0, th)
	select {
	case err := <-done:
		require.Equal(t, -defs.EDEADLK, err)
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestMutexUnlockByNonOwner(t *testing.T) {
	s := newTestScheduler(4)
	m := NewMutex(s)
	result := make(chan defs.Err_t, 1)

	locker, _ := s.Create(func(arg any) {
		me := s.Current(0)
		require.Equal(t, 0, int(m.Lock(0, me)))
		s.Yield(0, me)
	}, nil)
	s.Create(func(arg any) {
		me := s.Current(0)
		result <- m.Unlock(me)
	}, nil)

	s.Boot(0, locker)
	select {
	case err := <-result:
		require.Equal(t, -defs.EPERM, err)
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestBarrierReleasesAllOnLastArrival(t *testing.T) {
	s := newTestScheduler(8)
	b, err := NewBarrier(s, 3)
	require.Equal(t, defs.Err_t(0), err)

	var passed int32Counter
	done := make(chan struct{})
	for i := 0; i < 3; i++ {
		last := i == 2
		s.Create(func(arg any) {
			me := s.Current(0)
			require.Equal(t, 0, int(b.Wait(0, me)))
			passed.inc()
			if last {
				close(done)
			}
		}, nil)
	}

	first, _ := s.Create(func(arg any) {}, nil)
	s.Boot(0, first)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("barrier never released")
	}
}

type int32Counter struct {
	n int
}

func (c *int32Counter) inc() { c.n++ }
