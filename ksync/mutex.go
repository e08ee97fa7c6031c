// Package ksync implements the synchronization primitives of spec.md
// C7: a mutex with FIFO wait-list handoff and a barrier with
// "last-arriver releases everyone else" semantics. Both are translated
// line-for-line from original_source/src/soft/kernel/ksynchro.c, with
// the wait list kept as a plain slice queue (mirroring the teacher's
// preference for slices over intrusive list_t links wherever the
// element order, not identity-based unlinking, is what matters).
package ksync

import (
	"sync"

	"ko6/defs"
	"ko6/thread"
)

// / Mutex is a lock with a single owner and a FIFO wait list, per
// / spec.md §4.7.
type Mutex struct {
	sched *thread.Scheduler

	mu    sync.Mutex
	busy  bool
	owner *thread.Thread
	wait  []*thread.Thread
}

// / NewMutex returns a free, unowned mutex.
func NewMutex(sched *thread.Scheduler) *Mutex {
	return &Mutex{sched: sched}
}

// / Lock acquires m for cpu's thread t. EDEADLK if t already owns m.
func (m *Mutex) Lock(cpu int, t *thread.Thread) defs.Err_t {
	m.mu.Lock()
	if m.busy && m.owner == t {
		m.mu.Unlock()
		return -defs.EDEADLK
	}
	if m.busy {
		m.wait = append(m.wait, t)
		m.mu.Unlock()
		m.sched.Wait(cpu, t)
		return 0
	}
	m.busy = true
	m.owner = t
	m.mu.Unlock()
	return 0
}

// / Unlock releases m, handing ownership straight to the next FIFO
// / waiter (if any) instead of leaving the mutex free to be stolen.
// / EINVAL if m is already free; EPERM if t does not own m.
func (m *Mutex) Unlock(t *thread.Thread) defs.Err_t {
	m.mu.Lock()
	if !m.busy {
		m.mu.Unlock()
		return -defs.EINVAL
	}
	if m.owner != t {
		m.mu.Unlock()
		return -defs.EPERM
	}
	if len(m.wait) > 0 {
		next := m.wait[0]
		m.wait = m.wait[1:]
		m.owner = next
		m.mu.Unlock()
		m.sched.Notify(next)
		return 0
	}
	m.busy = false
	m.owner = nil
	m.mu.Unlock()
	return 0
}

// / Destroy tears m down. EBUSY while locked; otherwise EPERM unless t
// / is recorded as the owner. A free mutex has no recorded owner
// / (Unlock clears it), so for any non-nil t Destroy of a free mutex
// / reports EPERM.
func (m *Mutex) Destroy(t *thread.Thread) defs.Err_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return -defs.EBUSY
	}
	if m.owner != t {
		return -defs.EPERM
	}
	return 0
}
