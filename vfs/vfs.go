// Package vfs implements the virtual filesystem layer of spec.md C9:
// a filesystem-type registry, a mount table, a refcounted inode cache
// with LRU eviction, and path resolution across mount boundaries.
//
// Grounded on the teacher's fd.Cwd_t (current-directory tracking) and
// hashtable.Hashtable_t (reused here, with only its ustr key case
// removed, as the inode cache's index — it is already a generic
// interface{}-keyed table and needs no domain-specific rewrite to
// serve this purpose). The per-fs
// superblock shape follows fs/super.go's field layout.
package vfs

import (
	"container/list"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/mod/semver"
	"golang.org/x/text/encoding/charmap"

	"ko6/defs"
	"ko6/hashtable"
)

// / KernelFSVersion is the newest on-disk filesystem format version this
// / kernel understands (spec.md §3 Superblock); Mount refuses an Ops
// / whose Version() reports anything newer, the same forward-compat
// / guard a real kernel's mount(2) applies to an on-disk fsvers field.
const KernelFSVersion = "v1.0.0"

// / Inum identifies an inode within one mounted filesystem.
type Inum uint64

// / Attr is the getattr/setattr payload (spec.md §4.9).
type Attr struct {
	Size  int64
	Mode  uint32
	IsDir bool
}

// / DirEnt is one entry returned by Readdir.
type DirEnt struct {
	Name string
	Ino  Inum
}

// / Ops is the filesystem-type interface; every operation an fs driver
// / does not implement returns ENOSYS by embedding BaseOps.
type Ops interface {
	Name() string
	Lookup(dir Inum, name string) (Inum, defs.Err_t)
	Read(ino Inum, buf []byte, off int64) (int, defs.Err_t)
	Write(ino Inum, buf []byte, off int64) (int, defs.Err_t)
	Create(dir Inum, name string, isDir bool) (Inum, defs.Err_t)
	Mkdir(dir Inum, name string) (Inum, defs.Err_t)
	Unlink(dir Inum, name string) defs.Err_t
	Readdir(ino Inum) ([]DirEnt, defs.Err_t)
	Getattr(ino Inum) (Attr, defs.Err_t)
	Setattr(ino Inum, a Attr) defs.Err_t
	Evict(ino Inum)
	Root() Inum
	// Version reports this filesystem driver's on-disk format version
	// as a semver string, checked against KernelFSVersion at Mount.
	Version() string
}

// / BaseOps gives every fs driver ENOSYS defaults so it only needs to
// / implement the operations it actually supports (spec.md §4.9).
type BaseOps struct{}

func (BaseOps) Write(Inum, []byte, int64) (int, defs.Err_t)     { return 0, -defs.ENOSYS }
func (BaseOps) Create(Inum, string, bool) (Inum, defs.Err_t)    { return 0, -defs.ENOSYS }
func (BaseOps) Mkdir(Inum, string) (Inum, defs.Err_t)           { return 0, -defs.ENOSYS }
func (BaseOps) Unlink(Inum, string) defs.Err_t                  { return -defs.ENOSYS }
func (BaseOps) Setattr(Inum, Attr) defs.Err_t                   { return -defs.ENOSYS }
func (BaseOps) Evict(Inum)                                      {}
func (BaseOps) Version() string                                 { return KernelFSVersion }

// / Registry is the filesystem-type registry; each name may be
// / registered at most once (spec.md §4.9).
type Registry struct {
	mu    sync.Mutex
	types map[string]func() Ops
}

// / NewRegistry returns an empty filesystem-type registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]func() Ops)}
}

// / Register installs a constructor for filesystem type name. EEXIST
// / if already registered.
func (r *Registry) Register(name string, ctor func() Ops) defs.Err_t {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[name]; ok {
		return -defs.EEXIST
	}
	r.types[name] = ctor
	return 0
}

// / New instantiates a fresh Ops for a registered filesystem type.
func (r *Registry) New(name string) (Ops, defs.Err_t) {
	r.mu.Lock()
	ctor, ok := r.types[name]
	r.mu.Unlock()
	if !ok {
		return nil, -defs.ENOENT
	}
	return ctor(), 0
}

// / mountEntry is one live mount, identified by the absolute path it
// / is mounted at.
type mountEntry struct {
	id   int
	path string
	ops  Ops
}

type inodeKey struct {
	mount int
	ino   Inum
}

// cacheKey renders an inodeKey as the string key hashtable.Hashtable_t
// understands — that package's hash()/equal() only switch over
// int/int32/string, so a composite struct key is flattened
// here rather than teaching it a new case.
func (k inodeKey) cacheKey() string {
	return fmt.Sprintf("%d:%d", k.mount, k.ino)
}

type cacheEntry struct {
	key      inodeKey
	ops      Ops
	refcount int
	elem     *list.Element
}

// / VFS is the whole virtual filesystem layer: mount table plus inode
// / cache, shared by every open file handle.
type VFS struct {
	mu     sync.Mutex
	mounts []*mountEntry
	nextID int

	cache   *hashtable.Hashtable_t
	lru     *list.List // front = least recently used
	maxSize int
}

// / New builds an empty VFS whose inode cache holds at most maxInodes
// / entries before it must evict (spec.md §4.9).
func New(maxInodes int) *VFS {
	return &VFS{
		cache:   hashtable.MkHash(64),
		lru:     list.New(),
		maxSize: maxInodes,
	}
}

// / Mount attaches ops at the given absolute path. Paths must be
// / distinct; mounting on top of an existing mount is permitted
// / (longest-prefix resolution handles the shadowing). Refuses ops
// / whose Version() is newer than KernelFSVersion (spec.md §3
// / Superblock forward-compat guard).
func (v *VFS) Mount(path string, ops Ops) (*mountEntry, defs.Err_t) {
	vers := ops.Version()
	if !semver.IsValid(vers) {
		return nil, -defs.EINVAL
	}
	if semver.Compare(vers, KernelFSVersion) > 0 {
		return nil, -defs.ENOSYS
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextID
	v.nextID++
	m := &mountEntry{id: id, path: normalizeMountPath(path), ops: ops}
	v.mounts = append(v.mounts, m)
	return m, 0
}

// / Unmount removes m from the mount table. EBUSY if inodes from it
// / are still cached with a nonzero refcount.
func (v *VFS) Unmount(m *mountEntry) defs.Err_t {
	v.mu.Lock()
	defer v.mu.Unlock()
	for e := v.lru.Front(); e != nil; e = e.Next() {
		ce := e.Value.(*cacheEntry)
		if ce.key.mount == m.id && ce.refcount > 0 {
			return -defs.EBUSY
		}
	}
	for i, mm := range v.mounts {
		if mm == m {
			v.mounts = append(v.mounts[:i], v.mounts[i+1:]...)
			break
		}
	}
	return 0
}

// resolveMount finds the mount with the longest path prefix matching
// p, returning the mount and the remainder of the path beneath it
// (spec.md §4.9 "mount/umount/resolve_mount longest-prefix match").
func (v *VFS) resolveMount(p string) (*mountEntry, string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var best *mountEntry
	for _, m := range v.mounts {
		if m.path == "/" || p == m.path || strings.HasPrefix(p, m.path+"/") {
			if best == nil || len(m.path) > len(best.path) {
				best = m
			}
		}
	}
	if best == nil {
		return nil, ""
	}
	rest := strings.TrimPrefix(p, best.path)
	rest = strings.TrimPrefix(rest, "/")
	return best, rest
}

func normalizeMountPath(p string) string {
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "/"
	}
	return p
}

// / Lookup resolves an absolute path to (mount, inode), walking one
// / path component at a time through the owning filesystem's Lookup,
// / remapping to a different mount after every step the way spec.md
// / §4.9 describes.
func (v *VFS) Lookup(path string) (*mountEntry, Inum, defs.Err_t) {
	m, rest := v.resolveMount(path)
	if m == nil {
		return nil, 0, -defs.ENOENT
	}
	cur := m.ops.Root()
	if rest == "" {
		return m, cur, 0
	}
	walked := m.path
	for _, comp := range strings.Split(rest, "/") {
		if comp == "" || comp == "." {
			continue
		}
		next, err := m.ops.Lookup(cur, comp)
		if err != 0 {
			return nil, 0, err
		}
		cur = next

		// After stepping, check whether the path up to here is itself
		// a deeper mount point (e.g. a bind mount on a subdirectory).
		if walked != "/" {
			walked += "/"
		}
		walked += comp
		subPath := walked
		if sub, subRest := v.resolveMount(subPath); sub != nil && sub != m {
			m = sub
			cur = m.ops.Root()
			if subRest != "" {
				sm, ino, err := v.Lookup(subPath + "/" + subRest)
				return sm, ino, err
			}
		}
	}
	return m, cur, 0
}

// / maxNameLen is the on-disk filename field width every fs1-shaped
// / filesystem in this kernel uses (spec.md §6 "name[24]").
const maxNameLen = 24

// / sanitizeName folds name through ISO-8859-1 the way a fixed-width
// / on-disk name field must: any rune that encoding cannot represent
// / is rejected outright rather than silently mangled, and the result
// / is truncated to the field width. Grounded on the domain stack's
// / charmap usage for byte-for-byte on-disk name fidelity.
func sanitizeName(name string) (string, defs.Err_t) {
	enc := charmap.ISO8859_1.NewEncoder()
	out, err := enc.String(name)
	if err != nil {
		return "", -defs.EINVAL
	}
	if len(out) > maxNameLen {
		out = out[:maxNameLen]
	}
	return out, 0
}

// / Create resolves path to its containing directory's mount and asks
// / that filesystem to create name there, after sanitizing name to the
// / on-disk name field's encoding and width (spec.md §4.9 create).
func (v *VFS) Create(path, name string, isDir bool) (*mountEntry, Inum, defs.Err_t) {
	clean, err := sanitizeName(name)
	if err != 0 {
		return nil, 0, err
	}
	m, dirIno, lerr := v.Lookup(path)
	if lerr != 0 {
		return nil, 0, lerr
	}
	ino, cerr := m.ops.Create(dirIno, clean, isDir)
	if cerr != 0 {
		return nil, 0, cerr
	}
	return m, ino, 0
}

// / Get pins the inode (mount, ino) in the cache, bumping its
// / refcount, evicting the least-recently-used entry if the cache is
// / full and nothing is evictable that fails fatally (spec.md §4.9:
// / "fatal on no victim").
func (v *VFS) Get(m *mountEntry, ino Inum) {
	v.mu.Lock()
	defer v.mu.Unlock()
	k := inodeKey{mount: m.id, ino: ino}
	if raw, ok := v.cache.Get(k.cacheKey()); ok {
		ce := raw.(*cacheEntry)
		ce.refcount++
		v.lru.MoveToBack(ce.elem)
		return
	}
	if v.lru.Len() >= v.maxSize {
		v.evictOneLocked()
	}
	ce := &cacheEntry{key: k, ops: m.ops, refcount: 1}
	ce.elem = v.lru.PushBack(ce)
	v.cache.Set(k.cacheKey(), ce)
}

// / Put drops a reference taken by Get; the entry stays cached
// / (refcount 0 is still evictable, not immediately freed) until LRU
// / pressure reclaims it. Releasing an already-zero-refcount inode is
// / an inode refcount underflow, fatal per spec.md §4.9/§7.
func (v *VFS) Put(m *mountEntry, ino Inum) {
	v.mu.Lock()
	defer v.mu.Unlock()
	k := inodeKey{mount: m.id, ino: ino}
	raw, ok := v.cache.Get(k.cacheKey())
	if !ok {
		panic("vfs: put of uncached inode")
	}
	ce := raw.(*cacheEntry)
	if ce.refcount == 0 {
		panic("vfs: inode refcount underflow")
	}
	ce.refcount--
}

// evictOneLocked evicts the least-recently-used unreferenced entry.
// Called with v.mu held. Panics if every cached entry is pinned —
// the cache has no victim to give up (spec.md §4.9 fatal condition).
func (v *VFS) evictOneLocked() {
	for e := v.lru.Front(); e != nil; e = e.Next() {
		ce := e.Value.(*cacheEntry)
		if ce.refcount == 0 {
			v.lru.Remove(e)
			v.cache.Del(ce.key.cacheKey())
			ce.ops.Evict(ce.key.ino)
			return
		}
	}
	panic("vfs: inode cache full, no evictable victim")
}

// / CacheLen reports the number of cached inodes, for tests.
func (v *VFS) CacheLen() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lru.Len()
}

// Seek whence values (spec.md §4.9 "SET/CUR/END").
const (
	SeekSet = iota
	SeekCur
	SeekEnd
)

// / File is an open file handle: a pinned inode plus a byte offset used
// / by Read and an entry index used by Readdir. Obtained from Open and
// / released by Close (spec.md §4.9 "Files").
type File struct {
	mount *mountEntry
	ino   Inum
	off   int64
}

// / Open resolves path (an absolute path; base is unused in this
// / version, as relative lookups are not implemented) and returns a
// / file handle with offset 0, holding one inode-cache reference taken
// / via Get.
func (v *VFS) Open(base *mountEntry, path string) (*File, defs.Err_t) {
	m, ino, err := v.Lookup(path)
	if err != 0 {
		return nil, err
	}
	v.Get(m, ino)
	return &File{mount: m, ino: ino}, 0
}

// / Close releases the inode reference Open took and invalidates f.
func (v *VFS) Close(f *File) {
	v.Put(f.mount, f.ino)
}

// / Read delegates to the owning filesystem's Read at f's current
// / offset, then advances the offset by the byte count returned.
func (v *VFS) Read(f *File, buf []byte) (int, defs.Err_t) {
	n, err := f.mount.ops.Read(f.ino, buf, f.off)
	if err != 0 {
		return 0, err
	}
	f.off += int64(n)
	return n, 0
}

// / Seek repositions f's offset per whence (SeekSet/SeekCur/SeekEnd),
// / such that Seek(f, 0, SeekSet) followed by Seek(f, n, SeekCur)
// / lands on the same offset as Seek(f, n, SeekSet) directly. EINVAL on
// / a negative resulting offset or an unknown whence.
func (v *VFS) Seek(f *File, off int64, whence int) (int64, defs.Err_t) {
	var base int64
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = f.off
	case SeekEnd:
		a, err := f.mount.ops.Getattr(f.ino)
		if err != 0 {
			return 0, err
		}
		base = a.Size
	default:
		return 0, -defs.EINVAL
	}
	n := base + off
	if n < 0 {
		return 0, -defs.EINVAL
	}
	f.off = n
	return n, 0
}

// / Readdir returns the single directory entry at f's current offset
// / and advances the offset, or ENOENT once the listing is exhausted.
func (v *VFS) Readdir(f *File) (DirEnt, defs.Err_t) {
	ents, err := f.mount.ops.Readdir(f.ino)
	if err != 0 {
		return DirEnt{}, err
	}
	if f.off < 0 || f.off >= int64(len(ents)) {
		return DirEnt{}, -defs.ENOENT
	}
	e := ents[f.off]
	f.off++
	return e, 0
}
