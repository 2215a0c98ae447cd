package httpapi_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtsi-hgi/treeserve/internal/attrmap"
	"github.com/wtsi-hgi/treeserve/internal/datum"
	"github.com/wtsi-hgi/treeserve/internal/httpapi"
	"github.com/wtsi-hgi/treeserve/internal/interner"
	"github.com/wtsi-hgi/treeserve/internal/tree"
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func buildTestTree() *tree.Tree {
	in := interner.New()
	tr := tree.New(in)
	im := attrmap.New(in)
	key, _ := attrmap.NewKey("size", "*", "*", "*")
	im.AddItem(key, datum.NewInt(42))
	tr.AddNode("/a/b", im)
	tr.Finalize()
	return tr
}

func TestQueryUnpublishedTreeReturnsEmptyObject(t *testing.T) {
	h := tree.NewHandle()
	srv := httpapi.New(h, newLogger())

	req := httptest.NewRequest(http.MethodGet, "/api?path=/a&depth=1", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body)
}

func TestQueryKnownPath(t *testing.T) {
	h := tree.NewHandle()
	h.Publish(buildTestTree())
	srv := httpapi.New(h, newLogger())

	req := httptest.NewRequest(http.MethodGet, "/api?path=/a&depth=0", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age=3600")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "a", body["name"])
	// depth=0 from the caller still resolves one level, since the HTTP
	// layer queries depth+1.
	_, hasChildren := body["child_dirs"]
	assert.True(t, hasChildren)
}

func TestUnknownRouteIsInvalidRequest(t *testing.T) {
	h := tree.NewHandle()
	srv := httpapi.New(h, newLogger())

	req := httptest.NewRequest(http.MethodGet, "/nonsense", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request string")
}

func TestMissingDepthDefaultsToZero(t *testing.T) {
	h := tree.NewHandle()
	h.Publish(buildTestTree())
	srv := httpapi.New(h, newLogger())

	req := httptest.NewRequest(http.MethodGet, "/api?path=/a", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	childDirs, ok := body["child_dirs"].([]any)
	require.True(t, ok)
	for _, raw := range childDirs {
		child := raw.(map[string]any)
		_, has := child["child_dirs"]
		assert.False(t, has)
	}
}
