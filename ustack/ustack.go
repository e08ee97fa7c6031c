// Package ustack implements the user-stack pool (spec.md C3): a
// carve-from-the-top allocator for fixed-size user stacks, plus the
// sbrk service used by the user heap.
//
// Grounded on the teacher's region-bookkeeping style in mem/dmap.go
// (a moving boundary within a fixed virtual range) and on the
// "XXXPANIC"-guarded invariants used throughout biscuit for corruption
// that must never happen in a correct kernel — here, the stack guard
// words.
package ustack

import (
	"sort"
	"sync"

	"ko6/defs"
)

// / Magic is written at both ends of every stack and checked on free.
const Magic uint64 = 0xdeadc0de15c001ed

// / Size is the fixed size, in bytes, of one user stack.
const Size = 8192

// / stackMem is the simulated backing memory for one stack: guard words
// / at both ends, usable space in between.
type stackMem struct {
	top  uint64   // guard word at the highest address
	body []byte   // usable stack bytes
	bot  uint64   // guard word at the lowest address
}

// / Pool allocates and frees fixed-size user stacks from a descending
// / region, and tracks a per-caller heap-end pointer for sbrk.
type Pool struct {
	mu sync.Mutex

	regionLow  uintptr // lowest address the region may ever reach
	boundary   uintptr // current top of the unused (not-yet-carved) region
	stackBytes uintptr

	free  []uintptr // addresses of released stacks, kept sorted ascending
	stack map[uintptr]*stackMem
}

// / NewPool creates a pool carving stacks downward from top, never
// / going below low.
func NewPool(low, top uintptr) *Pool {
	return &Pool{
		regionLow:  low,
		boundary:   top,
		stackBytes: Size,
		stack:      make(map[uintptr]*stackMem),
	}
}

// / Alloc reuses the highest-address released stack if one exists,
// / otherwise carves a new one from the top of the region, lowering the
// / boundary (spec.md §4.3). It returns the stack's top address.
func (p *Pool) Alloc() (uintptr, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		top := p.free[n-1]
		p.free = p.free[:n-1]
		p.reinit(top)
		return top, true
	}

	if p.boundary < p.regionLow+p.stackBytes {
		return 0, false
	}
	p.boundary -= p.stackBytes
	top := p.boundary + p.stackBytes
	p.reinit(top)
	return top, true
}

// reinit (re)writes guard words for the stack at top; must hold p.mu.
func (p *Pool) reinit(top uintptr) {
	sm, ok := p.stack[top]
	if !ok {
		sm = &stackMem{body: make([]byte, p.stackBytes-16)}
		p.stack[top] = sm
	}
	sm.top = Magic
	sm.bot = Magic
}

// / Free releases the stack at top. Guard-word mismatch is fatal
// / (spec.md §4.3, §7 fatal conditions). Freeing the lowest-address
// / stack may raise the region boundary by folding in consecutive
// / free stacks at the edge.
func (p *Pool) Free(top uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sm, ok := p.stack[top]
	if !ok {
		panic("ustack: free of unknown stack")
	}
	if sm.top != Magic || sm.bot != Magic {
		panic("ustack: guard word corruption detected on free")
	}

	i := sort.Search(len(p.free), func(i int) bool { return p.free[i] >= top })
	p.free = append(p.free, 0)
	copy(p.free[i+1:], p.free[i:])
	p.free[i] = top

	// raise the boundary by unlinking consecutive free stacks sitting
	// exactly at the current boundary.
	for len(p.free) > 0 && p.free[0] == p.boundary+p.stackBytes {
		p.free = p.free[1:]
		p.boundary += p.stackBytes
	}
}

// / Boundary reports the current region boundary, for tests.
func (p *Pool) Boundary() uintptr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.boundary
}

// / Sbrk moves *heapEnd by delta bytes within the user region, failing
// / with EFAULT (and leaving *heapEnd unchanged) if the result would
// / cross the current user-stack boundary (spec.md §4.3).
func (p *Pool) Sbrk(heapEnd *uintptr, delta int) (uintptr, defs.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := int64(*heapEnd) + int64(delta)
	if next < 0 || uintptr(next) >= p.boundary {
		return 0, -defs.EFAULT
	}
	prev := *heapEnd
	*heapEnd = uintptr(next)
	return prev, 0
}
