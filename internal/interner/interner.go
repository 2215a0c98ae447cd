// Package interner implements the process-wide, append-only bidirectional
// string↔id table shared by every IndexedMap in the aggregation tree.
// Attribute keys such as "size$group$user$property" recur millions of
// times across the tree; interning means each distinct string occupies one
// backing allocation, and every map entry that uses it stores an 8-byte id
// instead of a copy of the string.
package interner

import "sync"

// Interner is written only during the single-threaded Ingest phase (via
// Intern). Once the tree has been finalized and published, callers only
// ever call Lookup, which needs no further synchronization beyond the
// one-time publish handshake performed by internal/tree.Handle — so the
// mutex below exists purely to make concurrent use safe if a caller
// chooses to share one across ingest goroutines; it is never contended in
// the documented single-writer usage.
type Interner struct {
	mu     sync.RWMutex
	idOf   map[string]uint64
	strOf  []string
	nextID uint64
}

// New returns an empty Interner ready to accept Intern calls.
func New() *Interner {
	return &Interner{
		idOf: make(map[string]uint64),
	}
}

// Intern returns the id for s, allocating a new one the first time s is
// seen. Ids are assigned monotonically starting at 0 and are stable for
// the Interner's lifetime.
func (n *Interner) Intern(s string) uint64 {
	n.mu.RLock()
	id, ok := n.idOf[s]
	n.mu.RUnlock()
	if ok {
		return id
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	// Re-check: another goroutine may have interned s while we waited for
	// the write lock.
	if id, ok := n.idOf[s]; ok {
		return id
	}
	id = n.nextID
	n.nextID++
	n.idOf[s] = id
	n.strOf = append(n.strOf, s)
	return id
}

// Lookup returns the string for id and whether id has been assigned.
func (n *Interner) Lookup(id uint64) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if id >= uint64(len(n.strOf)) {
		return "", false
	}
	return n.strOf[id], true
}

// Len reports how many distinct strings have been interned.
func (n *Interner) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.strOf)
}
