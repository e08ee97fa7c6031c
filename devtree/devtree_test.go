package devtree

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"
)

// fixture is a tiny almo1-style platform: one ICU, two TTYs, one
// timer, one DMA engine and one block device, encoded as a one-file
// txtar archive holding the device-tree text; the expected decode is
// asserted by the tests below (SPEC_FULL.md domain stack: txtar).
const fixture = `
-- devtree.txt --
soclib,icu 0x10000000 0
soclib,tty 0x20000000 1
soclib,tty 0x20001000 2
soclib,timer 0x30000000 3
soclib,dma 0x40000000 4
soclib,bd 0x50000000 5
`

func loadFixture(t *testing.T) *Tree {
	t.Helper()
	ar := txtar.Parse([]byte(fixture))
	require.Len(t, ar.Files, 1)
	tree, err := Parse(ar.Files[0].Data)
	require.NoError(t, err)
	return tree
}

func TestParseOrdersNodesByBlobOrder(t *testing.T) {
	tree := loadFixture(t)
	require.Len(t, tree.Nodes, 6)
	require.Equal(t, CompatICU, tree.Nodes[0].Compatible)
	require.Equal(t, uint64(0x10000000), tree.Nodes[0].Reg)
}

func TestByCompatibleFiltersInOrder(t *testing.T) {
	tree := loadFixture(t)
	ttys := tree.ByCompatible(CompatTTY)
	require.Len(t, ttys, 2)
	require.Equal(t, uint64(0x20000000), ttys[0].Reg)
	require.Equal(t, 1, ttys[0].Interrupts)
	require.Equal(t, uint64(0x20001000), ttys[1].Reg)
	require.Equal(t, 2, ttys[1].Interrupts)
}

func TestByCompatibleMissingReturnsEmpty(t *testing.T) {
	tree := loadFixture(t)
	require.Empty(t, tree.ByCompatible(CompatPLIC))
}

func TestParseRejectsMalformedLine(t *testing.T) {
	_, err := Parse([]byte("soclib,icu 0x10000000\n"))
	require.Error(t, err)
}

func TestParseRejectsBadHex(t *testing.T) {
	_, err := Parse([]byte("soclib,icu notanumber 0\n"))
	require.Error(t, err)
}

func TestParseSkipsBlankAndCommentLines(t *testing.T) {
	tree, err := Parse([]byte("\n# comment\nsoclib,timer 0x30000000 3\n"))
	require.NoError(t, err)
	require.Len(t, tree.Nodes, 1)
}
