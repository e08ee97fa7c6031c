// Package mem implements the page allocator (spec.md C1): a contiguous
// range of kernel-managed physical memory, a per-page descriptor array
// usable either as slab metadata or as block-cache metadata, and the
// whole-page free list every other allocator in the kernel draws from.
//
// The free-list representation (an index-linked list threaded through
// the descriptor array, walked under a single mutex) is grounded on the
// teacher's mem.Physmem_t in biscuit, stripped of the per-CPU caching
// and pmap bookkeeping that only make sense for a paged x86 kernel.
package mem

import (
	"fmt"
	"sync"
)

// / PageShift is the base-2 exponent of the page size.
const PageShift = 12

// / PageSize is the size of a single page in bytes (4 KiB, spec.md §3).
const PageSize = 1 << PageShift

// / nilIdx marks the end of an index-linked free list.
const nilIdx = ^uint32(0)

// / Role records which subsystem owns a page's descriptor fields.
type Role int

const (
	RoleFree  Role = iota /// on the whole-page free list, not owned
	RoleSlab              /// carved into C2 slab objects
	RoleBlock             /// backs a block-cache entry (C8)
)

// / Page is the per-4KiB-page descriptor: a tagged union over the slab
// / and block-cache roles (spec.md §3 "Page descriptor"). Only the
// / fields belonging to the current Role are meaningful.
type Page struct {
	Role Role

	// slab role
	Lines  int /// object size in cache lines; 0 means whole-page slab
	NBUsed int /// live object count

	// block-cache role
	Dirty    bool
	Locked   bool
	Valid    bool
	DevMinor int
	LBA      int
	refcount uint8

	next uint32 /// index of next page on its free list (nilIdx = none)
	data []byte /// backing storage for this page
}

// / SetValid, ClearValid, IsValid manage the block-cache "valid" bit.
func (p *Page) SetValid()     { p.Valid = true }
func (p *Page) ClearValid()   { p.Valid = false }
func (p *Page) IsValid() bool { return p.Valid }

// / SetLocked, ClearLocked, IsLocked manage the block-cache pin bit.
func (p *Page) SetLocked()     { p.Locked = true }
func (p *Page) ClearLocked()   { p.Locked = false }
func (p *Page) IsLocked() bool { return p.Locked }

// / SetDirty, ClearDirty, IsDirty manage the block-cache dirty bit.
func (p *Page) SetDirty()     { p.Dirty = true }
func (p *Page) ClearDirty()   { p.Dirty = false }
func (p *Page) IsDirty() bool { return p.Dirty }

// / SetLBA records which (device, block) this cache page holds.
func (p *Page) SetLBA(minor, lba int) {
	p.DevMinor = minor
	p.LBA = lba
}

// / GetLBA returns the (device, block) recorded by SetLBA.
func (p *Page) GetLBA() (minor, lba int) {
	return p.DevMinor, p.LBA
}

// / IncRefcount bumps the page's reference count, saturating and
// / panicking on overflow per spec.md §4.1 ("Refcount saturates at 255,
// / fatal overflow").
func (p *Page) IncRefcount() {
	if p.refcount == 255 {
		panic(fmt.Sprintf("page refcount overflow (minor=%d lba=%d)", p.DevMinor, p.LBA))
	}
	p.refcount++
}

// / DecRefcount drops the reference count by one.
func (p *Page) DecRefcount() {
	if p.refcount == 0 {
		panic("page refcount underflow")
	}
	p.refcount--
}

// / Refcount reports the current reference count.
func (p *Page) Refcount() uint8 { return p.refcount }

// / Data returns the page's backing 4 KiB storage.
func (p *Page) Data() []byte {
	if p.data == nil {
		p.data = make([]byte, PageSize)
	}
	return p.data
}

// / OOMRequest is sent on Allocator.OOM when AllocWait finds the free
// / list empty: Need pages are wanted, and Resume is signalled once the
// / caller believes pages may have been freed elsewhere. Grounded on
// / the teacher's oommsg.Oommsg_t, generalized from a single global
// / channel to one owned by the Allocator it guards.
type OOMRequest struct {
	Need   int
	Resume chan bool
}

// / Allocator owns a contiguous range of physical pages and the
// / whole-page free list (spec.md §4.1). It is the sole arbiter of page
// / roles: a page belongs to exactly one role at a time.
type Allocator struct {
	mu     sync.Mutex
	pages  []Page
	freeHd uint32
	freeN  int

	// OOM, if non-nil, receives an OOMRequest whenever AllocWait
	// observes an empty free list; Alloc never posts to it. A nil OOM
	// means AllocWait behaves like Alloc with no retry.
	OOM chan OOMRequest
}

// / NewAllocator reserves n pages and puts them all on the free list.
func NewAllocator(n int) *Allocator {
	a := &Allocator{pages: make([]Page, n)}
	for i := range a.pages {
		a.pages[i].next = uint32(i + 1)
	}
	a.pages[n-1].next = nilIdx
	a.freeHd = 0
	a.freeN = n
	return a
}

// / NumFree reports how many pages remain on the whole-page free list;
// / used by the testable-properties round-trip checks (spec.md §8).
func (a *Allocator) NumFree() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.freeN
}

// / Total reports the number of pages the allocator was constructed with.
func (a *Allocator) Total() int { return len(a.pages) }

// / Alloc removes the head of the free list and returns it with a
// / zeroed Role and descriptor.
func (a *Allocator) Alloc() (*Page, int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.freeHd == nilIdx {
		return nil, 0, false
	}
	idx := a.freeHd
	p := &a.pages[idx]
	a.freeHd = p.next
	a.freeN--
	*p = Page{data: p.data}
	return p, int(idx), true
}

// / Free returns the page at idx to the head of the free list.
func (a *Allocator) Free(idx int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := &a.pages[idx]
	*p = Page{next: a.freeHd, data: p.data}
	a.freeHd = uint32(idx)
	a.freeN++
}

// / At returns the descriptor for page idx without affecting free-list
// / membership; used by C2/C8 to recover a page's descriptor from an
// / address-derived index.
func (a *Allocator) At(idx int) *Page {
	return &a.pages[idx]
}

// / AllocWait behaves like Alloc, but on exhaustion posts an OOMRequest
// / to OOM (if set) and retries once the listener signals Resume,
// / giving a reclaimer (e.g. the block cache evicting clean pages) a
// / chance to run before giving up. With no OOM listener it degrades to
// / a single Alloc attempt.
func (a *Allocator) AllocWait(need int) (*Page, int, bool) {
	if p, idx, ok := a.Alloc(); ok {
		return p, idx, ok
	}
	if a.OOM == nil {
		return nil, 0, false
	}
	req := OOMRequest{Need: need, Resume: make(chan bool, 1)}
	a.OOM <- req
	if !<-req.Resume {
		return nil, 0, false
	}
	return a.Alloc()
}
