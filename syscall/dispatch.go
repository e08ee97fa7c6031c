package syscall

import (
	"fmt"
	"sync"

	"github.com/google/pprof/profile"

	"ko6/dev"
	"ko6/defs"
	"ko6/ksync"
	"ko6/thread"
	"ko6/ustack"
)

// / Number identifies a syscall entry in the dispatch table (spec.md
// / §4.10).
type Number int

const (
	SysExit Number = iota
	SysThreadCreate
	SysThreadYield
	SysThreadExit
	SysThreadJoin
	SysClock
	SysMutexInit
	SysMutexLock
	SysMutexUnlock
	SysMutexDestroy
	SysBarrierInit
	SysBarrierWait
	SysBarrierDestroy
	SysSbrk
	SysRead
	SysWrite
	SysCacheLineSize
	SysShell
	numSyscalls
)

// / Context is everything a syscall handler needs: the scheduler, this
// / thread's address space and heap break, its synchronization object
// / tables, and the console device.
type Context struct {
	Sched  *thread.Scheduler
	AS     *AddrSpace
	Stacks *ustack.Pool
	CPU    int

	heapEnd uintptr

	mutexes    map[int]*ksync.Mutex
	barriers   map[int]*ksync.Barrier
	nextHandle int

	TTY *dev.TTY

	ttyWaitMu sync.Mutex
	ttyWait   []*thread.Thread

	cacheLineSize int
	prof          []*profile.Sample

	// / UserEntry resolves a thread_create entry-point address into the
	// / Go closure its goroutine runs. This translation has no MIPS
	// / interpreter to jump to a raw address, so boot wires concrete
	// / entries here (DESIGN.md); a context with no UserEntry set
	// / reports thread_create as ENOSYS rather than silently no-opping.
	UserEntry func(entryVA uintptr) func(arg any)
}

// / NewContext builds a syscall context for one thread. If tty is
// / non-nil its Write is wired to wake any thread parked in sysRead on
// / an empty FIFO.
func NewContext(sched *thread.Scheduler, as *AddrSpace, stacks *ustack.Pool, cpu int, tty *dev.TTY, cacheLineSize int) *Context {
	c := &Context{
		Sched:         sched,
		AS:            as,
		Stacks:        stacks,
		CPU:           cpu,
		heapEnd:       as.Low,
		mutexes:       make(map[int]*ksync.Mutex),
		barriers:      make(map[int]*ksync.Barrier),
		TTY:           tty,
		cacheLineSize: cacheLineSize,
	}
	if tty != nil {
		tty.AddNotify(c.wakeTTYReaders)
	}
	return c
}

// wakeTTYReaders resumes every thread parked in sysRead, letting each
// recheck the FIFO; threads that still find it empty (another reader
// drained it first) park again.
func (c *Context) wakeTTYReaders() {
	c.ttyWaitMu.Lock()
	woken := c.ttyWait
	c.ttyWait = nil
	c.ttyWaitMu.Unlock()
	for _, t := range woken {
		c.Sched.Notify(t)
	}
}

// / Handler is one syscall's implementation: up to four argument words
// / in, one result word and an error code out.
type Handler func(c *Context, self *thread.Thread, a0, a1, a2, a3 uintptr) (uintptr, defs.Err_t)

// / Table is the fixed syscall vector, indexed by Number.
var Table = [numSyscalls]Handler{
	SysExit:           sysExit,
	SysThreadCreate:   sysThreadCreate,
	SysThreadYield:    sysThreadYield,
	SysThreadExit:     sysThreadExit,
	SysThreadJoin:     sysThreadJoin,
	SysClock:          sysClock,
	SysMutexInit:      sysMutexInit,
	SysMutexLock:      sysMutexLock,
	SysMutexUnlock:    sysMutexUnlock,
	SysMutexDestroy:   sysMutexDestroy,
	SysBarrierInit:    sysBarrierInit,
	SysBarrierWait:    sysBarrierWait,
	SysBarrierDestroy: sysBarrierDestroy,
	SysSbrk:           sysSbrk,
	SysRead:           sysRead,
	SysWrite:          sysWrite,
	SysCacheLineSize:  sysCacheLineSize,
	SysShell:          sysShell,
}

// / Dispatch validates num and invokes the registered handler. An
// / out-of-range number is ENOSYS, not a panic: user code can request
// / any number it likes (spec.md §4.10).
func Dispatch(c *Context, self *thread.Thread, num Number, a0, a1, a2, a3 uintptr) (uintptr, defs.Err_t) {
	if num < 0 || int(num) >= int(numSyscalls) || Table[num] == nil {
		return 0, -defs.ENOSYS
	}
	return Table[num](c, self, a0, a1, a2, a3)
}

func sysExit(c *Context, self *thread.Thread, a0, _, _, _ uintptr) (uintptr, defs.Err_t) {
	c.Sched.Exit(self, int(a0))
	return 0, 0
}

// sysThreadCreate spawns a new thread whose body is the closure
// UserEntry resolves a0 (the entry address) to, passed a1 as its
// argument (spec.md §4.6 thread_create).
func sysThreadCreate(c *Context, self *thread.Thread, a0, a1, _, _ uintptr) (uintptr, defs.Err_t) {
	if c.UserEntry == nil {
		return 0, -defs.ENOSYS
	}
	t, err := c.Sched.Create(c.UserEntry(a0), a1)
	if err != 0 {
		return 0, err
	}
	return uintptr(t.Id), 0
}

func sysThreadYield(c *Context, self *thread.Thread, _, _, _, _ uintptr) (uintptr, defs.Err_t) {
	c.Sched.Yield(c.CPU, self)
	return 0, 0
}

func sysThreadExit(c *Context, self *thread.Thread, a0, _, _, _ uintptr) (uintptr, defs.Err_t) {
	c.Sched.Exit(self, int(a0))
	return 0, 0
}

func sysThreadJoin(c *Context, self *thread.Thread, a0, _, _, _ uintptr) (uintptr, defs.Err_t) {
	target := c.Sched.ThreadByID(thread.Tid(a0))
	if target == nil {
		return 0, -defs.ESRCH
	}
	rv, err := c.Sched.Join(c.CPU, self, target)
	return uintptr(rv), err
}

func sysClock(c *Context, self *thread.Thread, _, _, _, _ uintptr) (uintptr, defs.Err_t) {
	u, s := self.Accnt.Snapshot()
	return uintptr(u + s), 0
}

func sysMutexInit(c *Context, self *thread.Thread, _, _, _, _ uintptr) (uintptr, defs.Err_t) {
	h := c.nextHandle
	c.nextHandle++
	c.mutexes[h] = ksync.NewMutex(c.Sched)
	return uintptr(h), 0
}

func (c *Context) mutex(h uintptr) (*ksync.Mutex, defs.Err_t) {
	m, ok := c.mutexes[int(h)]
	if !ok {
		return nil, -defs.EINVAL
	}
	return m, 0
}

func sysMutexLock(c *Context, self *thread.Thread, a0, _, _, _ uintptr) (uintptr, defs.Err_t) {
	m, err := c.mutex(a0)
	if err != 0 {
		return 0, err
	}
	return 0, m.Lock(c.CPU, self)
}

func sysMutexUnlock(c *Context, self *thread.Thread, a0, _, _, _ uintptr) (uintptr, defs.Err_t) {
	m, err := c.mutex(a0)
	if err != 0 {
		return 0, err
	}
	return 0, m.Unlock(self)
}

func sysMutexDestroy(c *Context, self *thread.Thread, a0, _, _, _ uintptr) (uintptr, defs.Err_t) {
	m, err := c.mutex(a0)
	if err != 0 {
		return 0, err
	}
	if e := m.Destroy(self); e != 0 {
		return 0, e
	}
	delete(c.mutexes, int(a0))
	return 0, 0
}

func sysBarrierInit(c *Context, self *thread.Thread, a0, _, _, _ uintptr) (uintptr, defs.Err_t) {
	b, err := ksync.NewBarrier(c.Sched, int(a0))
	if err != 0 {
		return 0, err
	}
	h := c.nextHandle
	c.nextHandle++
	c.barriers[h] = b
	return uintptr(h), 0
}

func (c *Context) barrier(h uintptr) (*ksync.Barrier, defs.Err_t) {
	b, ok := c.barriers[int(h)]
	if !ok {
		return nil, -defs.EINVAL
	}
	return b, 0
}

func sysBarrierWait(c *Context, self *thread.Thread, a0, _, _, _ uintptr) (uintptr, defs.Err_t) {
	b, err := c.barrier(a0)
	if err != 0 {
		return 0, err
	}
	return 0, b.Wait(c.CPU, self)
}

func sysBarrierDestroy(c *Context, self *thread.Thread, a0, _, _, _ uintptr) (uintptr, defs.Err_t) {
	b, err := c.barrier(a0)
	if err != 0 {
		return 0, err
	}
	if e := b.Destroy(); e != 0 {
		return 0, e
	}
	delete(c.barriers, int(a0))
	return 0, 0
}

func sysSbrk(c *Context, self *thread.Thread, a0, _, _, _ uintptr) (uintptr, defs.Err_t) {
	prev, err := c.Stacks.Sbrk(&c.heapEnd, int(int64(a0)))
	return uintptr(prev), err
}

// sysRead suspends the calling thread on the scheduler while the tty
// FIFO is empty, per spec.md §5's "read on an empty device FIFO" is a
// suspension point. It resumes each time wakeTTYReaders runs and
// rechecks the FIFO, since a racing reader may have drained it first.
func sysRead(c *Context, self *thread.Thread, a0, a1, a2, _ uintptr) (uintptr, defs.Err_t) {
	minor, va, n := a0, a1, int(a2)
	if minor != 0 || c.TTY == nil {
		return 0, -defs.ENOSYS
	}
	buf := make([]byte, n)
	var got int
	for {
		got = c.TTY.Read(buf)
		if got > 0 || n == 0 {
			break
		}
		c.ttyWaitMu.Lock()
		c.ttyWait = append(c.ttyWait, self)
		c.ttyWaitMu.Unlock()
		c.Sched.Wait(c.CPU, self)
	}
	if err := c.AS.CopyOut(va, buf[:got]); err != 0 {
		return 0, err
	}
	return uintptr(got), 0
}

func sysWrite(c *Context, self *thread.Thread, a0, a1, a2, _ uintptr) (uintptr, defs.Err_t) {
	minor, va, n := a0, a1, int(a2)
	if minor != 0 || c.TTY == nil {
		return 0, -defs.ENOSYS
	}
	buf := make([]byte, n)
	if err := c.AS.CopyIn(va, buf); err != 0 {
		return 0, err
	}
	put := c.TTY.Write(buf)
	return uintptr(put), 0
}

func sysCacheLineSize(c *Context, self *thread.Thread, _, _, _, _ uintptr) (uintptr, defs.Err_t) {
	return uintptr(c.cacheLineSize), 0
}

// / RecordProfileSample appends a scheduler profile sample (one
// / github.com/google/pprof/profile.Sample labelled with the thread's
// / id and state) to this context. The samples are only counted, by
// / sysShell's profile sub-command; nothing serializes them into a
// / profile.proto blob or exposes them through a device.
func (c *Context) RecordProfileSample(tid thread.Tid, state thread.State) {
	c.prof = append(c.prof, &profile.Sample{
		Value: []int64{1},
		Label: map[string][]string{
			"tid":   {fmt.Sprintf("%d", tid)},
			"state": {state.String()},
		},
	})
}

// sysShell is the debug multiplexed syscall: a0 selects a sub-command,
// currently only the profile query, which returns the number of
// samples recorded by RecordProfileSample (spec.md §6's debug shell
// path, which this translation narrows to that query — the
// interactive command parser itself is a Non-goal).
func sysShell(c *Context, self *thread.Thread, a0, _, _, _ uintptr) (uintptr, defs.Err_t) {
	const cmdProfile = 0
	switch a0 {
	case cmdProfile:
		return uintptr(len(c.prof)), 0
	default:
		return 0, -defs.EINVAL
	}
}
