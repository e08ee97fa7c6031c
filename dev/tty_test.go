package dev

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadDrainsWhatWasWritten(t *testing.T) {
	tty := NewTTY(8)
	require.Equal(t, 2, tty.Write([]byte("hi")))

	buf := make([]byte, 8)
	n := tty.Read(buf)
	require.Equal(t, 2, n)
	require.Equal(t, "hi", string(buf[:n]))
}

func TestReadOnEmptyFIFOReturnsZeroWithoutNotify(t *testing.T) {
	tty := NewTTY(8)
	called := false
	tty.AddNotify(func() { called = true })

	buf := make([]byte, 8)
	require.Equal(t, 0, tty.Read(buf))
	require.False(t, called)
}

func TestWriteFiresEveryRegisteredNotify(t *testing.T) {
	tty := NewTTY(8)
	var calls []int
	tty.AddNotify(func() { calls = append(calls, 1) })
	tty.AddNotify(func() { calls = append(calls, 2) })

	tty.Write([]byte("x"))
	require.Equal(t, []int{1, 2}, calls)
}

func TestEmptyWriteDoesNotFireNotify(t *testing.T) {
	tty := NewTTY(0)
	called := false
	tty.AddNotify(func() { called = true })

	tty.Write([]byte("x"))
	require.False(t, called)
}
