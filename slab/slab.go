// Package slab implements the kernel heap (spec.md C2): sub-page object
// allocation in CacheLineSize-multiple chunks, carved out of pages
// drawn from mem.Allocator.
//
// The teacher's mem.Physmem_t threads its whole-page free list through
// an index stored in each page descriptor (biscuit mem/mem.go,
// `_phys_new`/`_phys_insert`). This package keeps that "index into a
// fixed array" idiom for the page descriptors themselves, but frees
// objects within a page through ordinary Go slices rather than
// intrusive pointers — a deliberate Go-idiomatic substitution, since
// slice push/pop gives the same O(1) amortized
// behavior without unsafe chunk headers.
package slab

import (
	"fmt"
	"sync"

	"ko6/mem"
)

// / MinCacheLineSize is the smallest cache line size this allocator will
// / round requests up to (spec.md §4.2: "minimum 16").
const MinCacheLineSize = 16

// / chunk identifies one free object: the page it lives in and its byte
// / offset within that page.
type chunk struct {
	page int
	off  int
}

// / Heap is the kernel slab allocator. One Heap wraps one mem.Allocator.
type Heap struct {
	pa   *mem.Allocator
	line int // CacheLineSize, L
	mu   sync.Mutex
	// free[k] holds free objects of size k*line for k>0. free[0] is
	// unused; whole-page availability is tracked by pa itself.
	free map[int][]chunk
}

// / NewHeap builds a slab allocator on top of pa with the given
// / hardware cache line size, rounded up to MinCacheLineSize.
func NewHeap(pa *mem.Allocator, cacheLineSize int) *Heap {
	l := cacheLineSize
	if l < MinCacheLineSize {
		l = MinCacheLineSize
	}
	return &Heap{pa: pa, line: l, free: make(map[int][]chunk)}
}

// / LineSize returns L, the configured cache line size.
func (h *Heap) LineSize() int { return h.line }

func (h *Heap) linesFor(n int) int {
	return (n + h.line - 1) / h.line
}

// / Ptr identifies a live slab allocation so it can later be passed to
// / Kfree: the page it lives in and its byte offset within that page.
type Ptr struct {
	Page int
	Off  int
}

// / Kmalloc allocates n bytes, zeroed, aligned to the cache line size.
// / A request larger than PageSize is fatal (spec.md §4.2).
func (h *Heap) Kmalloc(n int) ([]byte, Ptr) {
	if n <= 0 {
		panic("kmalloc: non-positive size")
	}
	if n > mem.PageSize {
		panic(fmt.Sprintf("kmalloc: %d exceeds page size", n))
	}
	k := h.linesFor(n)
	if k*h.line == mem.PageSize {
		// whole-page request: routed straight to the page free list.
		p, idx, ok := h.pa.Alloc()
		if !ok {
			panic("kmalloc: page list 0 exhausted for whole-page request")
		}
		p.Role = mem.RoleSlab
		p.Lines = 0
		p.NBUsed = 1
		d := p.Data()
		clear(d)
		return d[:n], Ptr{Page: idx, Off: 0}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.free[k]) == 0 {
		h.refill(k)
	}
	lst := h.free[k]
	c := lst[len(lst)-1]
	h.free[k] = lst[:len(lst)-1]
	pg := h.pa.At(c.page)
	pg.NBUsed++
	d := pg.Data()[c.off : c.off+k*h.line]
	clear(d)
	return d[:n], Ptr{Page: c.page, Off: c.off}
}

// refill draws a fresh page from the page allocator, carves it into
// chunks of size k*line, and chains them onto free[k]. Must be called
// with h.mu held.
func (h *Heap) refill(k int) {
	p, idx, ok := h.pa.Alloc()
	if !ok {
		panic("kmalloc: out of pages")
	}
	p.Role = mem.RoleSlab
	p.Lines = k
	p.NBUsed = 0
	objsz := k * h.line
	n := mem.PageSize / objsz
	lst := h.free[k]
	for i := 0; i < n; i++ {
		lst = append(lst, chunk{page: idx, off: i * objsz})
	}
	h.free[k] = lst
}

// / Kcalloc allocates count*n zeroed bytes as one slab object.
func (h *Heap) Kcalloc(count, n int) ([]byte, Ptr) {
	return h.Kmalloc(count * n)
}

// / Kstrdup returns a NUL-terminated copy of s in a freshly allocated
// / slab object.
func (h *Heap) Kstrdup(s string) ([]byte, Ptr) {
	b, p := h.Kmalloc(len(s) + 1)
	copy(b, s)
	b[len(s)] = 0
	return b, p
}

// / Kfree releases an object previously returned by Kmalloc/Kcalloc,
// / identified by the Ptr handed back at allocation time.
func (h *Heap) Kfree(p Ptr) {
	pageIdx, off := p.Page, p.Off
	pg := h.pa.At(pageIdx)
	if pg.Role != mem.RoleSlab {
		panic("kfree: page is not a slab page")
	}
	k := pg.Lines
	if k == 0 {
		// whole-page allocation
		h.pa.Free(pageIdx)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.free[k] = append(h.free[k], chunk{page: pageIdx, off: off})
	pg.NBUsed--
	if pg.NBUsed == 0 {
		h.reclaimPage(k, pageIdx)
	}
}

// reclaimPage unlinks every free chunk belonging to pageIdx from free[k]
// and returns the page to the whole-page free list (spec.md §4.2
// deallocation). Must be called with h.mu held.
func (h *Heap) reclaimPage(k, pageIdx int) {
	lst := h.free[k]
	kept := lst[:0]
	for _, c := range lst {
		if c.page != pageIdx {
			kept = append(kept, c)
		}
	}
	h.free[k] = kept
	pg := h.pa.At(pageIdx)
	pg.Role = mem.RoleFree
	pg.Lines = 0
	h.pa.Free(pageIdx)
}

// / FreeListLen reports the number of free objects of size class k,
// / used by the testable-properties churn test (spec.md §8 scenario 1).
func (h *Heap) FreeListLen(k int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.free[k])
}
