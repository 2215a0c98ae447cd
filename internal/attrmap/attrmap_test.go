package attrmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtsi-hgi/treeserve/internal/attrmap"
	"github.com/wtsi-hgi/treeserve/internal/datum"
	"github.com/wtsi-hgi/treeserve/internal/interner"
)

func TestNewKeyValid(t *testing.T) {
	key, err := attrmap.NewKey("size", "*", "*", "file")
	require.NoError(t, err)
	assert.Equal(t, "size$*$*$file", key)
}

func TestNewKeyMalformed(t *testing.T) {
	// A component that itself contains "$" breaks the four-part invariant
	// ToJSONNested relies on.
	_, err := attrmap.NewKey("size$size", "hgi", "user", "other")
	require.ErrorIs(t, err, attrmap.ErrMalformedKey)
}

func TestNewKeyEmptyComponentsStillFourParts(t *testing.T) {
	key, err := attrmap.NewKey("size", "hgi", "user", "")
	require.NoError(t, err)
	assert.Equal(t, "size$hgi$user$", key)
}

func TestEmptySubtract(t *testing.T) {
	in := interner.New()
	m1 := attrmap.New(in)
	key, err := attrmap.NewKey("size", "*", "*", "*")
	require.NoError(t, err)
	m1.AddItem(key, datum.NewInt(42))

	m1.Subtract(m1)
	assert.True(t, m1.Empty())
}

func TestCombineSums(t *testing.T) {
	in := interner.New()
	a := attrmap.New(in)
	b := attrmap.New(in)
	key, _ := attrmap.NewKey("size", "*", "*", "file")
	a.AddItem(key, datum.NewInt(100))
	b.AddItem(key, datum.NewInt(200))
	a.Combine(b)

	got := a.ToJSONSingle(key)
	assert.Equal(t, uint64(300), got[key])
}

func TestToJSONNestedShape(t *testing.T) {
	in := interner.New()
	m := attrmap.New(in)
	key, _ := attrmap.NewKey("size", "grp", "usr", "file")
	m.AddItem(key, datum.NewInt(300))

	nested := m.ToJSONNested()
	byGroup := nested["size"].(map[string]any)
	byUser := byGroup["grp"].(map[string]any)
	byProperty := byUser["usr"].(map[string]any)
	assert.Equal(t, uint64(300), byProperty["file"])
}

func TestSubtractPrunesZero(t *testing.T) {
	in := interner.New()
	a := attrmap.New(in)
	b := attrmap.New(in)
	key, _ := attrmap.NewKey("cost", "*", "*", "*")
	a.AddItem(key, datum.NewFloat(1.0))
	b.AddItem(key, datum.NewFloat(1.0+1e-14))
	a.Subtract(b)
	assert.True(t, a.Empty())
}

func TestSubtractLeavesNonzero(t *testing.T) {
	in := interner.New()
	a := attrmap.New(in)
	b := attrmap.New(in)
	key, _ := attrmap.NewKey("size", "*", "*", "*")
	a.AddItem(key, datum.NewInt(100))
	b.AddItem(key, datum.NewInt(40))
	a.Subtract(b)
	assert.Equal(t, uint64(60), a.ToJSONSingle(key)[key])
}

func TestCloneIsIndependent(t *testing.T) {
	in := interner.New()
	a := attrmap.New(in)
	key, _ := attrmap.NewKey("size", "*", "*", "*")
	a.AddItem(key, datum.NewInt(10))
	b := a.Clone()
	b.AddItem(key, datum.NewInt(5))
	assert.Equal(t, uint64(10), a.ToJSONSingle(key)[key])
	assert.Equal(t, uint64(15), b.ToJSONSingle(key)[key])
}
