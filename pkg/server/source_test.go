package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvaccess-protocol/pva-go/pkg/pvdata"
)

func TestStaticSourceAddLookup(t *testing.T) {
	src := NewStaticSource()

	_, ok := src.Lookup("temp:water")
	assert.False(t, ok)

	pv := NewMailbox()
	src.AddPV("temp:water", pv)

	got, ok := src.Lookup("temp:water")
	require.True(t, ok)
	assert.Same(t, pv, got)

	// Re-registering a name replaces the entry.
	other := NewReadonly()
	src.AddPV("temp:water", other)
	got, ok = src.Lookup("temp:water")
	require.True(t, ok)
	assert.Same(t, other, got)
}

func TestStaticSourceRemoveIdempotent(t *testing.T) {
	src := NewStaticSource()
	src.AddPV("a", NewMailbox())

	src.RemovePV("a")
	_, ok := src.Lookup("a")
	assert.False(t, ok)

	// Removing again, or removing an unknown name, is a no-op.
	src.RemovePV("a")
	src.RemovePV("never:registered")
}

func TestStaticSourceNames(t *testing.T) {
	src := NewStaticSource()
	assert.Empty(t, src.Names())

	src.AddPV("zeta", NewMailbox())
	src.AddPV("alpha", NewMailbox())
	src.AddPV("mid", NewMailbox())

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, src.Names())
}

func TestStaticSourceClosePVs(t *testing.T) {
	src := NewStaticSource()

	a := NewMailbox()
	require.NoError(t, a.OpenDouble(1.0, pvdata.Metadata{}))
	b := NewMailbox()
	require.NoError(t, b.OpenInt32(2, pvdata.Metadata{}))
	unopened := NewMailbox()

	src.AddPV("a", a)
	src.AddPV("b", b)
	src.AddPV("c", unopened)

	src.ClosePVs()

	assert.False(t, a.IsOpen())
	assert.False(t, b.IsOpen())
	assert.False(t, unopened.IsOpen())

	// Entries stay registered for reopening.
	got, ok := src.Lookup("a")
	require.True(t, ok)
	assert.Same(t, a, got)
}
