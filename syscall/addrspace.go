// Package syscall implements the syscall dispatch table of spec.md
// C10: a numbered table of handlers, user-pointer validation against
// the flat user region, and the debug/profile path wired to
// github.com/google/pprof/profile (SPEC_FULL.md domain stack).
//
// Grounded on vm.Vm_t's Userstr/Userreadn/Userwriten/K2user/User2k
// family for the shape of user-memory access, simplified from a
// page-table walk to a single range check: spec.md §6 gives this
// platform one flat user region with no MMU, so "is va mapped" is
// just "is va inside [Low, High)".
package syscall

import (
	"ko6/defs"
)

// / AddrSpace is one thread's user address region: a contiguous byte
// / range backed by a plain Go slice standing in for the simulated
// / user memory (there is no page table to walk).
type AddrSpace struct {
	Low  uintptr
	mem  []byte
}

// / NewAddrSpace creates a region of size bytes starting at low.
func NewAddrSpace(low uintptr, size int) *AddrSpace {
	return &AddrSpace{Low: low, mem: make([]byte, size)}
}

// / High returns the exclusive upper bound of the region.
func (a *AddrSpace) High() uintptr { return a.Low + uintptr(len(a.mem)) }

func (a *AddrSpace) offset(va uintptr, n int) (int, defs.Err_t) {
	if va < a.Low || n < 0 {
		return 0, -defs.EFAULT
	}
	off := int(va - a.Low)
	if off < 0 || off+n > len(a.mem) || off+n < off {
		return 0, -defs.EFAULT
	}
	return off, 0
}

// / CopyIn copies n bytes from user address va into dst.
func (a *AddrSpace) CopyIn(va uintptr, dst []byte) defs.Err_t {
	off, err := a.offset(va, len(dst))
	if err != 0 {
		return err
	}
	copy(dst, a.mem[off:off+len(dst)])
	return 0
}

// / CopyOut copies src into user address va.
func (a *AddrSpace) CopyOut(va uintptr, src []byte) defs.Err_t {
	off, err := a.offset(va, len(src))
	if err != 0 {
		return err
	}
	copy(a.mem[off:off+len(src)], src)
	return 0
}

// / Str reads a NUL-terminated string at va, at most maxlen bytes
// / (spec.md §4.10, grounded on Vm_t.Userstr).
func (a *AddrSpace) Str(va uintptr, maxlen int) (string, defs.Err_t) {
	off, err := a.offset(va, 0)
	if err != 0 {
		return "", err
	}
	end := off
	limit := len(a.mem)
	if off+maxlen < limit {
		limit = off + maxlen
	}
	for end < limit && a.mem[end] != 0 {
		end++
	}
	if end == limit && (end >= len(a.mem) || a.mem[end] != 0) {
		return "", -defs.ERANGE
	}
	return string(a.mem[off:end]), 0
}

// / Raw exposes the backing slice directly, for device drivers that
// / DMA straight into user memory (spec.md §4.4 DMA tag).
func (a *AddrSpace) Raw() []byte { return a.mem }
