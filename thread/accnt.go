package thread

import (
	"sync"
	"sync/atomic"
	"time"
)

// / Accnt_t accumulates per-thread user/system time, ported from the
// / teacher's accnt.Accnt_t almost unchanged — the arithmetic is
// / domain-agnostic and the spec's Thread carries the same two
// / counters implicitly through its accounting needs (supplemented
// / from original_source kthread.c, which tracks similar counters).
type Accnt_t struct {
	Userns int64
	Sysns  int64
	sync.Mutex
}

// / Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt_t) Utadd(delta int64) {
	atomic.AddInt64(&a.Userns, delta)
}

// / Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt_t) Systadd(delta int64) {
	atomic.AddInt64(&a.Sysns, delta)
}

// / Now returns the current time in nanoseconds.
func (a *Accnt_t) Now() int64 {
	return time.Now().UnixNano()
}

// / Finish adds time elapsed since inttime to the system-time counter.
func (a *Accnt_t) Finish(inttime int64) {
	a.Systadd(a.Now() - inttime)
}

// / Snapshot returns the (Userns, Sysns) pair. Utadd and Systadd update
// / the counters atomically without taking the lock, so the pair is not
// / read as one atomic unit against concurrent adds.
func (a *Accnt_t) Snapshot() (int64, int64) {
	a.Lock()
	defer a.Unlock()
	return a.Userns, a.Sysns
}
