package blockio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetEventFiresOnReadAndWrite(t *testing.T) {
	path := makeDiskImage(t, 2)
	disk, err := OpenDisk(path)
	require.Equal(t, 0, int(err))
	defer disk.Close()

	fired := 0
	var gotCookie any
	disk.SetEvent(func(cookie any) {
		fired++
		gotCookie = cookie
	}, "cookie")

	buf := make([]byte, BlockSize)
	require.Equal(t, 0, int(disk.ReadAt(0, buf)))
	require.Equal(t, 0, int(disk.WriteAt(1, buf)))

	require.Equal(t, 2, fired)
	require.Equal(t, "cookie", gotCookie)
}

func TestNoEventCallbackIsANoop(t *testing.T) {
	path := makeDiskImage(t, 1)
	disk, err := OpenDisk(path)
	require.Equal(t, 0, int(err))
	defer disk.Close()

	buf := make([]byte, BlockSize)
	require.Equal(t, 0, int(disk.ReadAt(0, buf)))
}

func TestPhysicalBlocksPerLogicalDefaultsToOne(t *testing.T) {
	path := makeDiskImage(t, 1)
	disk, err := OpenDisk(path)
	require.Equal(t, 0, int(err))
	defer disk.Close()

	require.Equal(t, 1, disk.PhysicalBlocksPerLogical())
}
