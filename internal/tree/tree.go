// Package tree implements the path-indexed aggregation tree that mirrors
// a scanned directory hierarchy, with rolled-up statistics at every
// node. Rather than individually heap-allocated nodes linked by parent
// pointers, which need either a weak back-reference or a separate arena
// to avoid cyclic ownership, nodes live in a single growable slice owned
// by the Tree, and a node reference is simply an index into it. This
// keeps tens of millions of nodes cache-friendly and compact, and removes
// the cyclic-ownership problem entirely.
package tree

import (
	"strings"
	"sync/atomic"

	"github.com/wtsi-hgi/treeserve/internal/attrmap"
	"github.com/wtsi-hgi/treeserve/internal/interner"
)

// globalNodeCount is process-wide and exists purely for observability.
var globalNodeCount atomic.Uint64

// NodeCount returns the number of TreeNodes allocated across every Tree in
// this process so far.
func NodeCount() uint64 {
	return globalNodeCount.Load()
}

// Ref identifies a node within a Tree's arena. The zero value is not a
// valid Ref; use NoRef for "no node".
type Ref int32

// NoRef is the sentinel for "absent" — the root's parent, or a failed lookup.
const NoRef Ref = -1

type node struct {
	name     string
	parent   Ref
	depth    uint64
	data     *attrmap.Map
	children map[string]Ref
}

// Tree owns a single optional root node and every node reachable from it,
// stored in one growable arena. The zero value is not usable; use New.
type Tree struct {
	interner *interner.Interner
	arena    []node
	root     Ref
}

// New returns an empty Tree sharing the given Interner for its attribute
// maps' keys. The root is built lazily on the first AddNode call.
func New(in *interner.Interner) *Tree {
	return &Tree{interner: in, root: NoRef}
}

// Interner returns the Tree's shared string interner.
func (t *Tree) Interner() *interner.Interner {
	return t.interner
}

// Root returns the tree's root node reference, or NoRef if nothing has
// been inserted yet.
func (t *Tree) Root() Ref {
	return t.root
}

// splitPath trims leading/trailing "/" and splits the remainder on "/".
func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func (t *Tree) allocNode(name string, parent Ref) Ref {
	depth := uint64(0)
	if parent != NoRef {
		depth = t.arena[parent].depth + 1
	}
	ref := Ref(len(t.arena))
	t.arena = append(t.arena, node{
		name:     name,
		parent:   parent,
		depth:    depth,
		data:     attrmap.New(t.interner),
		children: make(map[string]Ref),
	})
	globalNodeCount.Add(1)
	return ref
}

// AddNode inserts im at path, combining it into every node along the
// canonical path from root to the leaf, creating any missing
// intermediate directory nodes along the way.
func (t *Tree) AddNode(path string, im *attrmap.Map) {
	names := splitPath(path)
	if len(names) == 0 {
		return
	}

	if t.root == NoRef {
		t.root = t.allocNode(names[0], NoRef)
	}

	cur := t.root
	for _, name := range names[1:] {
		t.arena[cur].data.Combine(im)
		child, ok := t.arena[cur].children[name]
		if !ok {
			child = t.allocNode(name, cur)
			t.arena[cur].children[name] = child
		}
		cur = child
	}
	t.arena[cur].data.Combine(im)
}

// GetNodeAt walks path from the root, returning NoRef if any segment is
// missing (or the tree is empty).
func (t *Tree) GetNodeAt(path string) Ref {
	names := splitPath(path)
	if t.root == NoRef || len(names) == 0 {
		return t.root
	}
	if t.arena[t.root].name != names[0] {
		return NoRef
	}
	cur := t.root
	for _, name := range names[1:] {
		child, ok := t.arena[cur].children[name]
		if !ok {
			return NoRef
		}
		cur = child
	}
	return cur
}

// Finalize performs a post-order pass over the tree: for every node,
// after its children have finalized, the portion of its own payload not
// accounted for by any child is rolled into a synthetic "*.*" child
// representing files/symlinks directly contained in that directory.
func (t *Tree) Finalize() {
	if t.root != NoRef {
		t.finalizeNode(t.root)
	}
}

func (t *Tree) finalizeNode(ref Ref) {
	remainder := t.arena[ref].data.Clone()
	// Snapshot child refs: finalizeNode may append new nodes to t.arena
	// (reallocating the backing array), so we must not hold a live slice
	// header into t.arena[ref].children's values across the recursive call.
	children := make([]Ref, 0, len(t.arena[ref].children))
	for _, c := range t.arena[ref].children {
		children = append(children, c)
	}
	for _, c := range children {
		t.finalizeNode(c)
		remainder.Subtract(t.arena[c].data)
	}
	if remainder.Empty() {
		return
	}
	synthetic := t.allocNode("*.*", ref)
	t.arena[synthetic].data.Combine(remainder)
	t.arena[ref].children["*.*"] = synthetic
}

// GetPath reconstructs the "/"-rooted path for ref by walking parent
// links onto a stack and popping them off in root-to-leaf order.
func (t *Tree) GetPath(ref Ref) string {
	var stack []string
	for cur := ref; cur != NoRef; cur = t.arena[cur].parent {
		stack = append(stack, t.arena[cur].name)
	}
	var b strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(stack[i])
	}
	return b.String()
}

// Name returns ref's own path segment.
func (t *Tree) Name(ref Ref) string {
	return t.arena[ref].name
}

// Data returns ref's attribute payload map.
func (t *Tree) Data(ref Ref) *attrmap.Map {
	return t.arena[ref].data
}

// Depth returns ref's distance from the root (root is 0).
func (t *Tree) Depth(ref Ref) uint64 {
	return t.arena[ref].depth
}

// ChildRefs returns a snapshot of ref's direct children, in no particular
// order. Used by callers that need to walk the tree structurally (persist
// dumps, tests) rather than through ToJSON's depth-bounded view.
func (t *Tree) ChildRefs(ref Ref) []Ref {
	children := t.arena[ref].children
	refs := make([]Ref, 0, len(children))
	for _, c := range children {
		refs = append(refs, c)
	}
	return refs
}

// unboundedDepth is used by ToJSON when the caller passes a nil depth,
// meaning unbounded.
const unboundedDepth = ^uint64(0)

// ToJSON locates the node at path (root if path is "") and returns its
// JSON representation bounded to depth levels of children, or the empty
// object if no such node exists. A nil depth means unbounded.
//
// depth is passed straight through to the node's own JSON builder as
// depth_remaining with no renormalization: depth==0 yields a childless
// record, depth==1 yields one level of children each without their own
// child_dirs. Callers that want "depth 0 still shows one level of
// children" are responsible for adding 1 before calling this.
func (t *Tree) ToJSON(path string, depth *uint64) map[string]any {
	ref := t.GetNodeAt(path)
	if ref == NoRef {
		return map[string]any{}
	}
	d := unboundedDepth
	if depth != nil {
		d = *depth
	}
	return t.nodeToJSON(ref, d)
}

func (t *Tree) nodeToJSON(ref Ref, depthRemaining uint64) map[string]any {
	n := &t.arena[ref]
	obj := map[string]any{
		"name": n.name,
		"path": t.GetPath(ref),
		"data": n.data.ToJSONNested(),
	}
	if depthRemaining == 0 || len(n.children) == 0 {
		return obj
	}
	childDirs := make([]map[string]any, 0, len(n.children))
	for _, c := range n.children {
		childDirs = append(childDirs, t.nodeToJSON(c, depthRemaining-1))
	}
	obj["child_dirs"] = childDirs
	return obj
}
