// Command chentry rewrites the entry address of a MIPS32 ELF kernel
// image, the offline step between compiling the kernel and burning it
// into the boot image (spec.md §4.11's loader hands off to whatever
// address this tool last wrote).
//
// Adapted from the teacher's kernel/chentry.go, which patched x86-64
// images for biscuit; this platform's images are 32-bit big-endian
// MIPS (original_source's almo1-mips target), so the ELF class and
// machine checks are narrowed accordingly and the entry field is
// written 32 bits wide.
package main

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"strconv"
)

func usage(me string) {
	fmt.Printf("%s <filename> <addr>\n\nChange the ELF entry point of <filename> to <addr>\n", me)
	os.Exit(1)
}

// chkELF validates that f looks like a MIPS32 big-endian executable.
// elf.NewFile has already rejected a file without the ELF magic.
func chkELF(eh *elf.FileHeader) {
	if eh.Class != elf.ELFCLASS32 {
		log.Fatal("not a 32 bit elf")
	}
	if eh.Data != elf.ELFDATA2MSB {
		log.Fatal("not big-endian?")
	}
	if eh.Type != elf.ET_EXEC {
		log.Fatal("not an executable elf")
	}
	if eh.Machine != elf.EM_MIPS {
		log.Fatal("not a mips elf")
	}
}

func main() {
	if len(os.Args) != 3 {
		usage(os.Args[0])
	}
	fn := os.Args[1]
	addr, err := parseAddr(os.Args[2])
	if err != nil {
		log.Fatal(err)
	}
	if addr>>32 != 0 {
		log.Fatal("entry is wider than 32bit; mips bootloader will perish")
	}

	f, err := os.OpenFile(fn, os.O_RDWR, 0)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	ef, err := elf.NewFile(f)
	if err != nil {
		log.Fatal(err)
	}
	chkELF(&ef.FileHeader)

	fmt.Printf("using address 0x%x\n", addr)
	// e_entry is the 32-bit field at byte offset 24 of an ELF32 header.
	var entry [4]byte
	binary.BigEndian.PutUint32(entry[:], uint32(addr))
	if _, err := f.WriteAt(entry[:], 24); err != nil {
		log.Fatal(err)
	}
}

// parseAddr accepts decimal or 0x-prefixed hex, matching strtoul base 0.
func parseAddr(s string) (uint64, error) {
	a, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return a, nil
}
