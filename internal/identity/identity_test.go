package identity_test

import (
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wtsi-hgi/treeserve/internal/identity"
)

func TestOwnerCachesRepeatLookups(t *testing.T) {
	r := identity.NewResolver()
	uid := uint32(os.Getuid())
	first := r.Owner(uid)
	second := r.Owner(uid)
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestOwnerFallsBackToNumericID(t *testing.T) {
	r := identity.NewResolver()
	const bogus = uint32(4294000000)
	got := r.Owner(bogus)
	assert.Equal(t, strconv.FormatUint(uint64(bogus), 10), got)
}

func TestGroupFallsBackToNumericID(t *testing.T) {
	r := identity.NewResolver()
	const bogus = uint32(4294000001)
	got := r.Group(bogus)
	assert.Equal(t, strconv.FormatUint(uint64(bogus), 10), got)
}
