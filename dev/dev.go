// Package dev implements the device registry (spec.md C4): a
// device-tree-populated list of typed device descriptors, each
// extended with a driver-specific payload that lives and dies with it.
//
// The registry is a container/list.List wrapped the same way the
// teacher wraps one for the block cache (fs/blk.go's BlkList_t); minor
// number assignment walks it in reverse exactly as kdev.h documents.
package dev

import (
	"container/list"
	"sync"

	"ko6/defs"
)

// / Descriptor is the generic device entry; Driver holds the
// / driver-specific structure registered alongside it (the Go
// / equivalent of the teacher's "allocated immediately after" trick,
// / since Go has no manual placement allocation to mimic exactly).
type Descriptor struct {
	Tag    defs.Tag
	Minor  int
	Driver any

	elem *list.Element
}

// / Registry is the doubly-linked device list, discovered at boot from
// / the flattened device tree (spec.md §4.4, §6).
type Registry struct {
	mu sync.Mutex
	l  *list.List
}

// / NewRegistry returns an empty device registry.
func NewRegistry() *Registry {
	return &Registry{l: list.New()}
}

// / NextMinor scans the registry in reverse and returns one past the
// / highest minor number currently registered for tag, or 0 if none
// / exists (spec.md §4.4).
func (r *Registry) NextMinor(tag defs.Tag) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextMinorLocked(tag)
}

func (r *Registry) nextMinorLocked(tag defs.Tag) int {
	for e := r.l.Back(); e != nil; e = e.Prev() {
		d := e.Value.(*Descriptor)
		if d.Tag == tag {
			return d.Minor + 1
		}
	}
	return 0
}

// / Alloc registers driver under tag, assigning it the next dense minor
// / number for that tag, and returns the generic descriptor.
func (r *Registry) Alloc(tag defs.Tag, driver any) *Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := &Descriptor{Tag: tag, Minor: r.nextMinorLocked(tag), Driver: driver}
	d.elem = r.l.PushBack(d)
	return d
}

// / Free unregisters d; its driver-specific payload is discarded with it.
func (r *Registry) Free(d *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.l.Remove(d.elem)
}

// / Get returns the descriptor registered under (tag, minor), if any.
func (r *Registry) Get(tag defs.Tag, minor int) (*Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for e := r.l.Front(); e != nil; e = e.Next() {
		d := e.Value.(*Descriptor)
		if d.Tag == tag && d.Minor == minor {
			return d, true
		}
	}
	return nil, false
}

// / Each calls f for every registered descriptor, front to back, i.e.
// / in registration order.
func (r *Registry) Each(f func(*Descriptor)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for e := r.l.Front(); e != nil; e = e.Next() {
		f(e.Value.(*Descriptor))
	}
}
