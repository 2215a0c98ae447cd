// Package attrmap implements IndexedMap: the per-node payload of the
// aggregation tree, mapping interned attribute-key ids to Datum
// accumulators. Storing interned ids rather than strings is what keeps the
// millions of per-node maps held throughout the tree affordable: each
// entry is an 8-byte key id plus a Datum value, never a copy of a key
// string such as "size$group$user$property". A Datum holds its kind tag
// and separate uint64 and float64 fields; it is not packed into a 9-byte
// tag-plus-payload union.
package attrmap

import (
	"errors"
	"strings"

	"github.com/wtsi-hgi/treeserve/internal/datum"
	"github.com/wtsi-hgi/treeserve/internal/interner"
)

// ErrMalformedKey is returned by NewKey when a composite attribute key does
// not decompose into exactly four "$"-separated components. Rejecting at
// construction, rather than panicking or silently falling back at JSON
// emit time, means a key is validated once, at the single call site that
// builds it.
var ErrMalformedKey = errors.New("attrmap: key must have exactly four $-separated components")

// NewKey builds the composite attribute key "metric$group$user$property"
// used throughout the tree, validating that it has the shape
// ToJSONNested depends on.
func NewKey(metric, group, user, property string) (string, error) {
	key := metric + "$" + group + "$" + user + "$" + property
	if strings.Count(key, "$") != 3 {
		return "", ErrMalformedKey
	}
	return key, nil
}

// Map is IndexedMap: KeyId -> Datum. The zero value is not usable; use New.
type Map struct {
	interner *interner.Interner
	entries  map[uint64]datum.Datum
}

// New returns an empty Map backed by the given shared Interner.
func New(in *interner.Interner) *Map {
	return &Map{interner: in, entries: make(map[uint64]datum.Datum)}
}

// AddItem interns key and adds val to the Datum stored there, creating the
// entry if key has not been seen in this map before.
func (m *Map) AddItem(key string, val datum.Datum) {
	m.AddItemByID(m.interner.Intern(key), val)
}

// AddItemByID adds val to the Datum stored at id, creating the entry if
// absent, without interning.
func (m *Map) AddItemByID(id uint64, val datum.Datum) {
	if existing, ok := m.entries[id]; ok {
		existing.Add(val)
		m.entries[id] = existing
		return
	}
	m.entries[id] = val
}

// Combine adds every entry of other into m: entries absent from m are
// deep-copied in, entries present in both are summed.
func (m *Map) Combine(other *Map) {
	for id, d := range other.entries {
		m.AddItemByID(id, d)
	}
}

// Subtract removes every entry of other from the matching entry in m. An
// entry that becomes zero after subtraction is pruned — this is the only
// mechanism that keeps a finalize-derived payload's cardinality small
// despite floating-point rounding in accumulated costs. Entries present
// only in other (never in m) are left untouched; this also means
// m.Subtract(m) empties m, since every key in the snapshot is also present
// under the same id in m itself.
func (m *Map) Subtract(other *Map) {
	for id := range snapshot(m.entries) {
		od, ok := other.entries[id]
		if !ok {
			continue
		}
		d := m.entries[id]
		d.Sub(od)
		if d.IsZero() {
			delete(m.entries, id)
			continue
		}
		m.entries[id] = d
	}
}

// snapshot copies the key set of entries so Subtract can safely delete
// from the live map while iterating a stable view of it.
func snapshot(entries map[uint64]datum.Datum) map[uint64]struct{} {
	keys := make(map[uint64]struct{}, len(entries))
	for id := range entries {
		keys[id] = struct{}{}
	}
	return keys
}

// Empty reports whether the map holds no entries.
func (m *Map) Empty() bool {
	return len(m.entries) == 0
}

// Clone returns a deep copy of m sharing the same Interner.
func (m *Map) Clone() *Map {
	out := New(m.interner)
	for id, d := range m.entries {
		out.entries[id] = d
	}
	return out
}

// fourParts splits a key into exactly four "$"-separated components, or
// reports ok=false.
func fourParts(key string) (dataType, group, user, property string, ok bool) {
	parts := strings.Split(key, "$")
	if len(parts) != 4 {
		return "", "", "", "", false
	}
	return parts[0], parts[1], parts[2], parts[3], true
}

// ToJSONNested decodes every stored key back to its string, splits it into
// dataType/group/user/property, and builds the nested
// {dataType: {group: {user: {property: value}}}} tree the HTTP API emits.
// Every key reaching this map was validated by NewKey at construction, so
// a malformed key here indicates a programming error; it is skipped
// rather than panicking, keeping ToJSONNested itself infallible.
func (m *Map) ToJSONNested() map[string]any {
	out := make(map[string]any)
	for id, d := range m.entries {
		key, ok := m.interner.Lookup(id)
		if !ok {
			continue
		}
		dataType, group, user, property, ok := fourParts(key)
		if !ok {
			continue
		}
		byGroup, _ := out[dataType].(map[string]any)
		if byGroup == nil {
			byGroup = make(map[string]any)
			out[dataType] = byGroup
		}
		byUser, _ := byGroup[group].(map[string]any)
		if byUser == nil {
			byUser = make(map[string]any)
			byGroup[group] = byUser
		}
		byProperty, _ := byUser[user].(map[string]any)
		if byProperty == nil {
			byProperty = make(map[string]any)
			byUser[user] = byProperty
		}
		byProperty[property] = d.ToJSONValue()
	}
	return out
}

// ToJSONSingle emits a flat {key: value} for the single named key, used
// when a key does not have the canonical four-component shape (or a
// caller wants one entry in isolation rather than the nested tree).
func (m *Map) ToJSONSingle(key string) map[string]any {
	id := m.interner.Intern(key)
	d, ok := m.entries[id]
	if !ok {
		return map[string]any{}
	}
	return map[string]any{key: d.ToJSONValue()}
}

// Len reports the number of entries currently stored.
func (m *Map) Len() int {
	return len(m.entries)
}
