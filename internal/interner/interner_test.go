package interner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtsi-hgi/treeserve/internal/interner"
)

func TestInternRoundTrip(t *testing.T) {
	n := interner.New()
	id := n.Intern("size$*$*$file")
	got, ok := n.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, "size$*$*$file", got)
}

func TestInternStable(t *testing.T) {
	n := interner.New()
	a := n.Intern("foo")
	b := n.Intern("bar")
	c := n.Intern("foo")
	assert.Equal(t, a, c)
	assert.NotEqual(t, a, b)
}

func TestInternMonotonic(t *testing.T) {
	n := interner.New()
	assert.Equal(t, uint64(0), n.Intern("a"))
	assert.Equal(t, uint64(1), n.Intern("b"))
	assert.Equal(t, uint64(0), n.Intern("a"))
	assert.Equal(t, 2, n.Len())
}

func TestLookupMissing(t *testing.T) {
	n := interner.New()
	_, ok := n.Lookup(42)
	assert.False(t, ok)
}
