package irq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeController struct {
	lines []int
}

func (f *fakeController) Pending() (int, bool) {
	if len(f.lines) == 0 {
		return 0, false
	}
	l := f.lines[0]
	f.lines = f.lines[1:]
	return l, true
}

func TestDispatchInvokesRegisteredISR(t *testing.T) {
	ctrl := &fakeController{lines: []int{2}}
	r := NewRouter(4, ctrl)

	var got any
	r.Register(2, func(cookie any) { got = cookie }, "disk0")
	r.Dispatch()

	require.Equal(t, "disk0", got)
}

func TestDispatchNoopWhenNothingPending(t *testing.T) {
	ctrl := &fakeController{}
	r := NewRouter(4, ctrl)
	require.NotPanics(t, func() { r.Dispatch() })
}

func TestDispatchPanicsOnUnregisteredLine(t *testing.T) {
	ctrl := &fakeController{lines: []int{3}}
	r := NewRouter(4, ctrl)
	require.Panics(t, func() { r.Dispatch() })
}
