// Package fs1 implements the minimal read-only disk filesystem from
// spec.md §6: block 0 holds up to 128 fixed-size directory records
// ({name[24], first LBA, size}), slot 0 is a synthetic root directory,
// and every other slot is a file occupying a contiguous run of
// logical blocks.
//
// Translated from original_source/src/soft/fs/fs1/fs1.c, which this
// package follows closely: the on-disk layout, the flat single-level
// namespace, and the ENOSYS stub for every mutating operation (fs1 has
// no write, create, mkdir or unlink, and Readdir lists only the root
// directory — a deliberate minimalism the original's own comment calls
// out, kept here via vfs.BaseOps rather than ENOSYS stubs sprinkled
// through the type).
package fs1

import (
	"bytes"

	"ko6/blockio"
	"ko6/defs"
	"ko6/vfs"
)

const (
	maxFiles = 128
	nameLen  = 24
	// one directory record: name[24] + lba(uint32) + size(uint32)
	recordSize = nameLen + 4 + 4
)

// / entry is one parsed directory record.
type entry struct {
	name string
	lba  uint32
	size uint32
}

// / FS is one mounted fs1 volume.
type FS struct {
	vfs.BaseOps
	cache   *blockio.Cache
	minor   int
	entries [maxFiles]entry
}

// / Mount reads block 0 of minor through cache and parses the 128
// / directory records (spec.md §6). Root is always inode 0.
func Mount(cache *blockio.Cache, minor int) (*FS, defs.Err_t) {
	b, err := cache.Get(minor, 0)
	if err != 0 {
		return nil, err
	}
	defer cache.Release(b)
	b.Lock()
	defer b.Unlock()

	data := b.Page().Data()
	fs := &FS{cache: cache, minor: minor}
	for i := 0; i < maxFiles; i++ {
		off := i * recordSize
		rec := data[off : off+recordSize]
		name := rec[:nameLen]
		if z := bytes.IndexByte(name, 0); z >= 0 {
			name = name[:z]
		}
		lba := beUint32(rec[nameLen : nameLen+4])
		size := beUint32(rec[nameLen+4 : nameLen+8])
		fs.entries[i] = entry{name: string(name), lba: lba, size: size}
	}
	return fs, 0
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// / Name identifies the filesystem type, registered under this name in
// / vfs.Registry.
func (fs *FS) Name() string { return "fs1" }

// / Root is always inode 0, the synthetic directory.
func (fs *FS) Root() vfs.Inum { return 0 }

// / Lookup does a flat linear scan of the directory records for name;
// / only the root directory has children in this single-level
// / filesystem (spec.md §6).
func (fs *FS) Lookup(dir vfs.Inum, name string) (vfs.Inum, defs.Err_t) {
	if dir != 0 {
		return 0, -defs.ENOENT
	}
	for i := 1; i < maxFiles; i++ {
		if fs.entries[i].name == name {
			return vfs.Inum(i), 0
		}
	}
	return 0, -defs.ENOENT
}

// / Read copies size bytes of the file at ino starting at offset,
// / fetching each block it spans through the block cache exactly the
// / way the original walks start_lba..end_lba.
func (fs *FS) Read(ino vfs.Inum, buf []byte, offset int64) (int, defs.Err_t) {
	if ino == 0 || int(ino) >= maxFiles {
		return 0, -defs.EINVAL
	}
	ent := fs.entries[ino]
	if offset >= int64(ent.size) {
		return 0, 0
	}
	size := len(buf)
	if offset+int64(size) > int64(ent.size) {
		size = int(int64(ent.size) - offset)
	}

	startLBA := uint64(ent.lba) + uint64(offset)/blockio.BlockSize
	endLBA := uint64(ent.lba) + uint64(offset+int64(size)-1)/blockio.BlockSize
	lbaOffset := int(uint64(offset) % blockio.BlockSize)

	copied := 0
	for lba := startLBA; lba <= endLBA; lba++ {
		b, err := fs.cache.Get(fs.minor, lba)
		if err != 0 {
			if copied > 0 {
				return copied, 0
			}
			return 0, -defs.EIO
		}
		pageOff := 0
		if lba == startLBA {
			pageOff = lbaOffset
		}
		toCopy := blockio.BlockSize - pageOff
		if toCopy > size-copied {
			toCopy = size - copied
		}
		copy(buf[copied:copied+toCopy], b.Page().Data()[pageOff:pageOff+toCopy])
		copied += toCopy
		fs.cache.Release(b)
	}
	return copied, 0
}

// / Getattr reports size and mode; inode 0 is a directory, every other
// / live slot a regular file.
func (fs *FS) Getattr(ino vfs.Inum) (vfs.Attr, defs.Err_t) {
	if ino == 0 {
		return vfs.Attr{Size: int64(blockio.BlockSize), IsDir: true}, 0
	}
	if int(ino) >= maxFiles || fs.entries[ino].name == "" {
		return vfs.Attr{}, -defs.ENOENT
	}
	return vfs.Attr{Size: int64(fs.entries[ino].size)}, 0
}

// / Readdir lists every non-empty directory record; fs1 has no nested
// / directories so this is only meaningful for ino 0.
func (fs *FS) Readdir(ino vfs.Inum) ([]vfs.DirEnt, defs.Err_t) {
	if ino != 0 {
		return nil, -defs.ENOSYS
	}
	var out []vfs.DirEnt
	for i := 1; i < maxFiles; i++ {
		if fs.entries[i].name != "" {
			out = append(out, vfs.DirEnt{Name: fs.entries[i].name, Ino: vfs.Inum(i)})
		}
	}
	return out, 0
}
