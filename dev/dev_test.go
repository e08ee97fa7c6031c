package dev

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ko6/defs"
)

func TestMinorsAreDensePerTag(t *testing.T) {
	r := NewRegistry()
	b0 := r.Alloc(defs.BLOCK, "disk0")
	c0 := r.Alloc(defs.CHAR, "tty0")
	b1 := r.Alloc(defs.BLOCK, "disk1")

	require.Equal(t, 0, b0.Minor)
	require.Equal(t, 0, c0.Minor)
	require.Equal(t, 1, b1.Minor)
}

func TestFreeThenReallocDoesNotReuseGapMinor(t *testing.T) {
	r := NewRegistry()
	b0 := r.Alloc(defs.BLOCK, "disk0")
	r.Alloc(defs.BLOCK, "disk1")
	r.Free(b0)

	got, ok := r.Get(defs.BLOCK, 0)
	require.False(t, ok, "minor 0 freed, not findable until reallocated")

	b0again := r.Alloc(defs.BLOCK, "disk0-again")
	require.Equal(t, 2, b0again.Minor, "next minor is highest registered + 1, not reuse of gaps")

	_ = got
}

func TestGetAndEach(t *testing.T) {
	r := NewRegistry()
	r.Alloc(defs.ICU, "icu0")
	r.Alloc(defs.TIMER, "timer0")

	d, ok := r.Get(defs.TIMER, 0)
	require.True(t, ok)
	require.Equal(t, "timer0", d.Driver)

	var tags []defs.Tag
	r.Each(func(d *Descriptor) { tags = append(tags, d.Tag) })
	require.Equal(t, []defs.Tag{defs.ICU, defs.TIMER}, tags)
}

func TestDMAChannelPool(t *testing.T) {
	d := NewDMAChannels(2)
	ch0 := d.Alloc()
	ch1 := d.Alloc()
	require.NotEqual(t, ch0, ch1)
	require.Panics(t, func() { d.Alloc() })

	d.Free(ch0)
	require.Panics(t, func() { d.Free(ch0) }, "double free must be fatal")
}
