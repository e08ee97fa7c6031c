// Package thread implements the scheduler and thread model (spec.md
// C6): a fixed-size thread table, round-robin election, and the
// cooperative/preemptive switch path that every blocking primitive in
// the kernel (mutex, barrier, join, tty read) eventually calls
// through.
//
// Grounded on the teacher's tinfo.Tnote_t (the per-thread "current"
// note a real kernel keeps beside its context) for the Thread fields,
// and on accnt.Accnt_t (see accnt.go) for the accounting supplement.
// The teacher's switch path is hand-written MIPS/x86 assembly that
// saves and restores a register file; Go cannot express that, and
// goroutines cannot be asynchronously suspended mid-instruction the
// way a real preemption IRQ suspends a thread. The substitution used
// here, documented in DESIGN.md, is a baton: each Thread runs on its
// own goroutine parked on a buffered resume channel, and exactly one
// goroutine per virtual CPU ever holds the baton at a time. Handing
// the baton to another thread plays the role of context_load; parking
// on the channel plays the role of the call to switch() not returning
// until this thread is elected again. Preemption is therefore
// necessarily cooperative at the Go level (see Scheduler.CheckPreempt)
// even though it models the preemptive policy described in spec.md
// §4.6 and §9.
package thread

import (
	"runtime"
	"sync"

	"ko6/defs"
	"ko6/mem"
	"ko6/ustack"
)

// / State is a thread's scheduling state (spec.md §3).
type State int

const (
	Running State = iota
	Ready
	Wait
	Zombie
	Dead
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Ready:
		return "READY"
	case Wait:
		return "WAIT"
	case Zombie:
		return "ZOMBIE"
	case Dead:
		return "DEAD"
	default:
		return "?"
	}
}

// / Thread is one schedulable kernel thread. mu is the per-thread
// / spinlock spec.md §3 calls for: every field below it is read or
// / written only while holding it, except resumeCh which is the baton
// / channel itself.
type Thread struct {
	Id Tid

	mu     sync.Mutex
	state  State
	retval int
	joiner *Thread

	entry func(arg any)
	arg   any

	// kpage is the page backing this thread's one-page kernel
	// storage (spec.md §3: "thread storage is exactly one page").
	// Nothing is actually laid out on it; it exists so the page
	// allocator's accounting reflects the real cost of a thread.
	kpage int

	ustackTop uintptr
	errno     defs.Err_t

	Accnt Accnt_t

	preempt  bool
	resumeCh chan struct{}
}

// / Tid indexes the scheduler's thread table.
type Tid int

// / NoTid is the not-a-thread sentinel, mirroring defs.NoTid.
const NoTid Tid = -1

// / State reports t's current scheduling state.
func (t *Thread) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// / Scheduler owns the thread table and per-CPU election state.
// / Protected by a single lock, as spec.md §9's design notes ask for:
// / "each [table] should be a statically initialized structure
// / protected by a single lock."
type Scheduler struct {
	mu    sync.Mutex
	cond  *sync.Cond
	table []*Thread
	curr  []Tid

	pa     *mem.Allocator
	stacks *ustack.Pool
}

// / NewScheduler builds a scheduler with room for maxThreads threads
// / running across ncpu virtual CPUs, drawing thread storage pages
// / from pa and user stacks from stacks.
func NewScheduler(maxThreads, ncpu int, pa *mem.Allocator, stacks *ustack.Pool) *Scheduler {
	s := &Scheduler{
		table:  make([]*Thread, maxThreads),
		curr:   make([]Tid, ncpu),
		pa:     pa,
		stacks: stacks,
	}
	s.cond = sync.NewCond(&s.mu)
	for i := range s.curr {
		s.curr[i] = NoTid
	}
	return s
}

// / Create allocates a thread table slot, a kernel storage page and a
// / user stack, marks the new thread READY, and starts its goroutine.
// / The thread does not actually run until some CPU elects it.
func (s *Scheduler) Create(entry func(arg any), arg any) (*Thread, defs.Err_t) {
	s.mu.Lock()
	slot := -1
	for i, th := range s.table {
		if th == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		s.mu.Unlock()
		return nil, -defs.ENOMEM
	}

	pg, pidx, ok := s.pa.Alloc()
	if !ok {
		s.mu.Unlock()
		return nil, -defs.ENOHEAP
	}
	top, ok := s.stacks.Alloc()
	if !ok {
		s.pa.Free(pidx)
		s.mu.Unlock()
		return nil, -defs.ENOHEAP
	}
	pg.SetValid()

	t := &Thread{
		Id:        Tid(slot),
		state:     Ready,
		entry:     entry,
		arg:       arg,
		kpage:     pidx,
		ustackTop: top,
		resumeCh:  make(chan struct{}, 1),
	}
	s.table[slot] = t
	s.mu.Unlock()

	go s.run(t)
	s.cond.Broadcast()
	return t, 0
}

// run is the thread's goroutine body: park on the baton, bootstrap,
// execute the entry point, then exit if it returns without calling
// Exit itself.
func (s *Scheduler) run(t *Thread) {
	<-t.resumeCh
	t.mu.Lock()
	t.state = Running
	t.mu.Unlock()

	t.entry(t.arg)

	s.Exit(t, 0)
}

// / elect scans the table cyclically starting just after cur, returns
// / the first READY thread, and records it as cpu's current thread.
// / If none is READY it waits on the scheduler condvar — the
// / Go-idiomatic substitute for "enable interrupts and busy-scan until
// / one appears" (DESIGN.md).
func (s *Scheduler) elect(cpu int, cur Tid) *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.table)
	for {
		start := int(cur)
		if start < 0 {
			start = 0
		}
		for i := 1; i <= n; i++ {
			idx := (start + i) % n
			th := s.table[idx]
			if th == nil {
				continue
			}
			th.mu.Lock()
			ready := th.state == Ready
			th.mu.Unlock()
			if ready {
				s.curr[cpu] = th.Id
				return th
			}
		}
		s.cond.Wait()
	}
}

// / switchAway hands the baton from t to the next elected thread and
// / parks t's goroutine until it is elected again. t must already have
// / left state RUNNING (set to READY, WAIT, or ZOMBIE) by the caller.
func (s *Scheduler) switchAway(cpu int, t *Thread) {
	other := s.elect(cpu, t.Id)
	if other == t {
		t.mu.Lock()
		t.state = Running
		t.mu.Unlock()
		return
	}
	other.resumeCh <- struct{}{}
	<-t.resumeCh
	t.mu.Lock()
	t.state = Running
	t.mu.Unlock()
}

// / Yield voluntarily gives up cpu, per spec.md §4.6's cooperative
// / path: thread_yield.
func (s *Scheduler) Yield(cpu int, t *Thread) {
	t.mu.Lock()
	t.state = Ready
	t.mu.Unlock()
	s.cond.Broadcast()
	s.switchAway(cpu, t)
}

// / CheckPreempt is called by thread bodies at their own safe points
// / and by the timer ISR's bookkeeping; if a preemption is pending for
// / t it yields cpu exactly the way a real preemptive tick would. This
// / is the cooperative substitute noted in the package doc: Go cannot
// / suspend a running goroutine's instruction stream out from under
// / it, so the preempted thread must reach a checkpoint itself.
func (s *Scheduler) CheckPreempt(cpu int, t *Thread) {
	t.mu.Lock()
	p := t.preempt
	t.preempt = false
	t.mu.Unlock()
	if p {
		s.Yield(cpu, t)
	}
}

// / RequestPreempt is invoked from the timer IRQ handler (irq.Router)
// / for the thread currently running on cpu.
func (s *Scheduler) RequestPreempt(cpu int) {
	s.mu.Lock()
	id := s.curr[cpu]
	var t *Thread
	if id != NoTid {
		t = s.table[id]
	}
	s.mu.Unlock()
	if t == nil {
		return
	}
	t.mu.Lock()
	t.preempt = true
	t.mu.Unlock()
}

// / Wait implements the exact race-window contract of spec.md §4.6:
// / state is moved to WAIT only if it is still RUNNING when the lock
// / is taken, so a Notify that raced ahead of us and already set it to
// / READY is never clobbered back to WAIT — the wakeup is never lost.
func (s *Scheduler) Wait(cpu int, t *Thread) {
	t.mu.Lock()
	if t.state == Running {
		t.state = Wait
	}
	t.mu.Unlock()
	s.switchAway(cpu, t)
}

// / Notify marks t READY regardless of its previous state (spec.md
// / §4.6). Safe to call concurrently with Wait on the same thread from
// / a different CPU: whichever of the two takes t.mu first determines
// / the outcome, and in both orderings t ends up READY.
func (s *Scheduler) Notify(t *Thread) {
	t.mu.Lock()
	t.state = Ready
	t.mu.Unlock()
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// / Exit finishes t with the given return value, wakes its joiner if
// / one is already waiting, and ends t's goroutine. Exit never returns
// / to its caller's Go code, matching launch() "never returning" in
// / spec.md §4.6 — the entry function is expected to call Exit as its
// / last action.
func (s *Scheduler) Exit(t *Thread, value int) {
	t.mu.Lock()
	t.retval = value
	t.state = Zombie
	joiner := t.joiner
	t.mu.Unlock()

	if joiner != nil {
		s.Notify(joiner)
	}

	s.mu.Lock()
	cpu := -1
	for i, id := range s.curr {
		if id == t.Id {
			cpu = i
			break
		}
	}
	s.mu.Unlock()
	if cpu == -1 {
		cpu = 0
	}

	other := s.elect(cpu, t.Id)
	other.resumeCh <- struct{}{}
	runtime.Goexit()
}

// / Join blocks caller until target reaches ZOMBIE, then reaps it
// / (moves it to DEAD, freeing its table slot for reuse) and returns
// / its exit value (spec.md §4.6).
func (s *Scheduler) Join(cpu int, caller, target *Thread) (int, defs.Err_t) {
	target.mu.Lock()
	if target.joiner != nil && target.joiner != caller {
		target.mu.Unlock()
		return 0, -defs.EINVAL
	}
	target.joiner = caller
	if target.state != Zombie {
		caller.mu.Lock()
		caller.state = Wait
		caller.mu.Unlock()
		target.mu.Unlock()
		s.switchAway(cpu, caller)
		target.mu.Lock()
	}
	rv := target.retval
	target.state = Dead
	target.mu.Unlock()

	s.reap(target)
	return rv, 0
}

// reap frees target's table slot, kernel storage page and user stack.
func (s *Scheduler) reap(target *Thread) {
	s.mu.Lock()
	s.table[target.Id] = nil
	s.mu.Unlock()
	s.pa.Free(target.kpage)
	s.stacks.Free(target.ustackTop)
}

// / ThreadByID looks up a thread by table slot, returning nil if tid is
// / out of range or the slot is empty (spec.md §4.6 thread_join takes a
// / tid, not a *Thread).
func (s *Scheduler) ThreadByID(tid Tid) *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(tid) < 0 || int(tid) >= len(s.table) {
		return nil
	}
	return s.table[tid]
}

// / Current returns the thread currently elected on cpu, or nil.
func (s *Scheduler) Current(cpu int) *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.curr[cpu]
	if id == NoTid {
		return nil
	}
	return s.table[id]
}

// / Boot elects and runs the first thread on cpu; used once at kernel
// / boot to hand the CPU to the init thread (spec.md §4.11).
func (s *Scheduler) Boot(cpu int, first *Thread) {
	s.curr[cpu] = first.Id
	first.resumeCh <- struct{}{}
}
