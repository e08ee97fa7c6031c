// Package devtree parses the flattened device-tree blob boot reads to
// discover devices (spec.md §4.11, §6 "Device-tree consumption").
//
// The teacher has no device tree at all (biscuit hardcodes its PCI/IDE
// probe); this is grounded instead on
// original_source/src/soft/hal/soc/almo1-mips/soc.c, which walks a real
// libfdt blob node-by-node with fdt_node_offset_by_compatible, reading
// each matching node's "reg" and "interrupts" properties. A libfdt
// binary blob has no Go-idiomatic parser in the example pack, so this
// translates the same node/compatible/reg/interrupts shape into a
// small textual format (one line per node) that boot decodes with the
// standard library instead of a C cgo binding.
package devtree

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// / Node is one device-tree entry: a compatible string plus its reg
// / (MMIO base address) and interrupts (IRQ line) properties.
type Node struct {
	Compatible string
	Reg        uint64
	Interrupts int
}

// / Tree is the flattened list of nodes found in the blob, in on-disk
// / order (matching fdt_node_offset_by_compatible's document order
// / when walked linearly).
type Tree struct {
	Nodes []Node
}

// / Parse decodes a device-tree blob. Each non-blank, non-comment line
// / is "compatible reg interrupts", e.g. "soclib,tty 0x90000000 2".
// / reg accepts the usual 0x hex prefix.
func Parse(blob []byte) (*Tree, error) {
	t := &Tree{}
	sc := bufio.NewScanner(strings.NewReader(string(blob)))
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("devtree: line %d: want 3 fields, got %d", lineNo, len(fields))
		}
		reg, err := strconv.ParseUint(fields[1], 0, 64)
		if err != nil {
			return nil, fmt.Errorf("devtree: line %d: bad reg %q: %w", lineNo, fields[1], err)
		}
		irq, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("devtree: line %d: bad interrupts %q: %w", lineNo, fields[2], err)
		}
		t.Nodes = append(t.Nodes, Node{Compatible: fields[0], Reg: reg, Interrupts: irq})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// / ByCompatible returns every node whose Compatible matches, in blob
// / order — the Go equivalent of repeatedly calling
// / fdt_node_offset_by_compatible(fdt, offset, name) until NOTFOUND.
func (t *Tree) ByCompatible(name string) []Node {
	var out []Node
	for _, n := range t.Nodes {
		if n.Compatible == name {
			out = append(out, n)
		}
	}
	return out
}

// / Compatibles this platform's boot sequencing understands (spec.md
// / §6): soclib devices plus the RISC-V analogues.
const (
	CompatICU     = "soclib,icu"
	CompatTTY     = "soclib,tty"
	CompatTimer   = "soclib,timer"
	CompatDMA     = "soclib,dma"
	CompatBD      = "soclib,bd"
	CompatPLIC    = "riscv,plic0"
	CompatNS16550 = "ns16550a"
	CompatCLINT   = "sifive,clint0"
)
