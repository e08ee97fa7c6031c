package defs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMkdevRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		tag   Tag
		minor int
	}{
		{BLOCK, 0}, {CHAR, 7}, {TIMER, 255}, {ICU, 1}, {DMA, 42},
	} {
		d := Mkdev(tc.tag, tc.minor)
		tag, minor := Unmkdev(d)
		require.Equal(t, tc.tag, tag)
		require.Equal(t, tc.minor, minor)
	}
}

func TestMkdevRejectsOutOfRangeMinor(t *testing.T) {
	require.Panics(t, func() { Mkdev(BLOCK, -1) })
	require.Panics(t, func() { Mkdev(BLOCK, 256) })
}

func TestErrorMessagesAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, e := range []Err_t{EINVAL, ENOMEM, EEXIST, ENOENT, EBUSY, EDEADLK,
		EPERM, ESRCH, EINTR, ENOSYS, EIO, ENOSPC, ERANGE, ENAMETOOLONG, EFAULT, ENOHEAP} {
		msg := e.Error()
		require.False(t, seen[msg], "duplicate message %q", msg)
		seen[msg] = true
	}
}
