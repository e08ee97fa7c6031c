package ksync

import (
	"sync"

	"ko6/defs"
	"ko6/thread"
)

// / Barrier synchronizes a fixed number of threads: the last arriver
// / releases every other waiter and never itself sleeps (spec.md §4.7).
type Barrier struct {
	sched *thread.Scheduler

	mu       sync.Mutex
	expected int
	waiting  int
	wait     []*thread.Thread
}

// / NewBarrier returns a barrier expecting count threads per round.
// / count must be > 0.
func NewBarrier(sched *thread.Scheduler, count int) (*Barrier, defs.Err_t) {
	if count <= 0 {
		return nil, -defs.EINVAL
	}
	return &Barrier{sched: sched, expected: count}, 0
}

// / Reset changes the expected count for the next round. EBUSY if
// / threads are currently waiting.
func (b *Barrier) Reset(count int) defs.Err_t {
	if count <= 0 {
		return -defs.EINVAL
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.waiting != 0 {
		return -defs.EBUSY
	}
	b.expected = count
	return 0
}

// / Wait blocks t until expected threads have called Wait. The thread
// / that completes the round wakes every other waiter and returns
// / immediately without sleeping itself.
func (b *Barrier) Wait(cpu int, t *thread.Thread) defs.Err_t {
	b.mu.Lock()
	b.waiting++
	if b.waiting == b.expected {
		woken := b.wait
		b.wait = nil
		b.waiting = 0
		b.mu.Unlock()
		for _, w := range woken {
			b.sched.Notify(w)
		}
		return 0
	}
	b.wait = append(b.wait, t)
	b.mu.Unlock()
	b.sched.Wait(cpu, t)
	return 0
}

// / Destroy tears b down. EBUSY while a round is in progress.
func (b *Barrier) Destroy() defs.Err_t {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.waiting != 0 {
		return -defs.EBUSY
	}
	return 0
}
