// Package httpapi serves the finalized tree over HTTP: a single JSON
// query endpoint, implemented against net/http directly rather than a
// router framework, since the route table is one path and doesn't
// justify pulling in a mux. JSON bodies are built with ojg, which
// handles the dynamically-shaped, deeply nested map the tree produces
// without a matching Go struct to decode into.
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/ohler55/ojg/oj"
	"github.com/sirupsen/logrus"

	"github.com/wtsi-hgi/treeserve/internal/tree"
)

// invalidRequestBody is the literal response body for any route other
// than the query endpoint.
const invalidRequestBody = "invalid request string"

// Server answers /api queries against whatever Tree is currently
// published on its Handle. It holds no other state: every query reads
// straight through to the published tree, so concurrent requests never
// block each other or ingest.
type Server struct {
	handle *tree.Handle
	log    *logrus.Logger
}

// New returns a Server that serves from handle. handle may not have a
// tree published yet when serving starts; queries made before the first
// Publish see the same "missing path" empty object a query for an
// unknown path would.
func New(handle *tree.Handle, log *logrus.Logger) *Server {
	return &Server{handle: handle, log: log}
}

// ServeHTTP implements http.Handler, dispatching every route but the
// query endpoint to the fixed invalid-request response.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api" {
		s.writeInvalid(w)
		return
	}
	s.handleQuery(w, r)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	depth := parseDepth(r.URL.Query().Get("depth"))

	t, ok := s.handle.Load()
	if !ok {
		writeJSON(w, map[string]any{})
		return
	}

	// The HTTP layer queries one level deeper than the caller asked for,
	// since ToJSON's depth=0 already means "this node, no children": the
	// +1 here is what lets a caller's depth=0 still see one level of the
	// named node's children.
	queried := depth + 1
	result := t.ToJSON(path, &queried)

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, result)
}

func parseDepth(raw string) uint64 {
	if raw == "" {
		return 0
	}
	d, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return d
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := oj.Write(w, v); err != nil {
		http.Error(w, invalidRequestBody, http.StatusInternalServerError)
	}
}

func (s *Server) writeInvalid(w http.ResponseWriter) {
	http.Error(w, invalidRequestBody, http.StatusInternalServerError)
}
