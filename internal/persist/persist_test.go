package persist_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtsi-hgi/treeserve/internal/attrmap"
	"github.com/wtsi-hgi/treeserve/internal/datum"
	"github.com/wtsi-hgi/treeserve/internal/interner"
	"github.com/wtsi-hgi/treeserve/internal/persist"
	"github.com/wtsi-hgi/treeserve/internal/tree"
)

func TestDumpWritesOneRowPerNode(t *testing.T) {
	in := interner.New()
	tr := tree.New(in)
	im := attrmap.New(in)
	key, _ := attrmap.NewKey("size", "*", "*", "*")
	im.AddItem(key, datum.NewInt(7))
	tr.AddNode("/a/b", im)
	tr.Finalize()

	dbPath := filepath.Join(t.TempDir(), "dump.sqlite")
	require.NoError(t, persist.Dump(tr, dbPath))

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM nodes`).Scan(&count))
	assert.GreaterOrEqual(t, count, 2) // at least /a and /a/b

	var data string
	require.NoError(t, db.QueryRow(`SELECT data FROM nodes WHERE path = ?`, "/a/b").Scan(&data))
	assert.Contains(t, data, "size")
}

func TestLoadIsNotImplemented(t *testing.T) {
	_, err := persist.Load("whatever.sqlite")
	assert.ErrorIs(t, err, persist.ErrNotImplemented)
}
