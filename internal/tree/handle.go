package tree

import "sync/atomic"

// Handle publishes a finalized Tree to concurrent HTTP readers with a
// release-acquire handshake: Publish does one atomic store after ingest
// and Finalize have completed; Load does one atomic load, and either sees
// nil (serving hasn't started) or the fully-built, subsequently-immutable
// tree — never a partially-built one.
//
// The tree is only ever swapped once in this process's lifetime (ingest
// completes, then serving begins and the tree never changes again), so a
// lock-free atomic pointer is enough; there is no need for a mutex-guarded
// swappable reference that supports repeated hot-swaps.
type Handle struct {
	ptr atomic.Pointer[Tree]
}

// NewHandle returns an unpublished Handle; Load returns (nil, false)
// until Publish is called.
func NewHandle() *Handle {
	return &Handle{}
}

// Publish makes t visible to subsequent Load calls. Calling Publish more
// than once on the same Handle is a programming error — ingest only ever
// runs once per process — but is not itself guarded against, since only
// the single ingest goroutine ever calls it.
func (h *Handle) Publish(t *Tree) {
	h.ptr.Store(t)
}

// Load returns the published Tree and true, or (nil, false) if Publish
// has not yet been called.
func (h *Handle) Load() (*Tree, bool) {
	t := h.ptr.Load()
	return t, t != nil
}
