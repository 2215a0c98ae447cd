// Package persist implements the optional --dump tree snapshot: one row
// per node, written to a SQLite database via modernc.org/sqlite, which
// plays the role a key/value store would without needing cgo.
package persist

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ohler55/ojg/oj"
	_ "modernc.org/sqlite"

	"github.com/wtsi-hgi/treeserve/internal/tree"
)

// ErrNotImplemented is returned by Load: reloading a tree from a prior
// dump (the --serial flag) is deliberately deferred.
var ErrNotImplemented = errors.New("persist: loading a tree from a dump is not implemented")

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	path TEXT PRIMARY KEY,
	depth INTEGER NOT NULL,
	data TEXT NOT NULL
);
`

// Dump writes one row per node in t to a fresh SQLite database at path,
// each row holding the node's canonical path, its depth, and the JSON
// record Tree.ToJSON returns for that node with depth 0 (name, path and
// nested data, without child_dirs).
func Dump(t *tree.Tree, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open dump database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO nodes (path, depth, data) VALUES (?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	if t.Root() != tree.NoRef {
		if err := dumpNode(t, t.Root(), stmt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func dumpNode(t *tree.Tree, ref tree.Ref, stmt *sql.Stmt) error {
	path := t.GetPath(ref)
	depthZero := uint64(0)
	body, err := oj.Marshal(t.ToJSON(path, &depthZero))
	if err != nil {
		return fmt.Errorf("marshal node %s: %w", path, err)
	}
	if _, err := stmt.Exec(path, t.Depth(ref), string(body)); err != nil {
		return fmt.Errorf("insert node %s: %w", path, err)
	}

	for _, child := range t.ChildRefs(ref) {
		if err := dumpNode(t, child, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Load is unimplemented; see ErrNotImplemented.
func Load(path string) (*tree.Tree, error) {
	return nil, ErrNotImplemented
}
