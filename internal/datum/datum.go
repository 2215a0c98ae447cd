// Package datum implements the tagged scalar accumulator held at every
// attribute-map entry in the aggregation tree: either an integer count/size
// or a floating-point cost, with additive semantics within a tag.
package datum

import "math"

// floatZeroEpsilon is the threshold below which an accumulated float cost is
// treated as noise. It exists so that IndexedMap.Subtract can drive a
// finalize-derived entry to exactly zero (and therefore prune it) despite
// floating-point rounding in the cost arithmetic.
const floatZeroEpsilon = 1e-13

// Kind discriminates the payload a Datum carries.
type Kind uint8

const (
	// KindInt marks a Datum whose payload is a uint64 (counts, byte sizes).
	KindInt Kind = iota
	// KindFloat marks a Datum whose payload is a float64 (time-weighted cost).
	KindFloat
)

// Datum is a single numeric accumulator. The Kind is fixed at construction
// and never changes; Add/Sub assume both operands share a Kind — the
// builder never mixes them, so no runtime check is made.
type Datum struct {
	kind Kind
	i    uint64
	f    float64
}

// NewInt constructs an integer-tagged Datum.
func NewInt(v uint64) Datum {
	return Datum{kind: KindInt, i: v}
}

// NewFloat constructs a float-tagged Datum.
func NewFloat(v float64) Datum {
	return Datum{kind: KindFloat, f: v}
}

// Kind reports which payload this Datum carries.
func (d Datum) Kind() Kind {
	return d.kind
}

// Add accumulates other into d. Behavior is unspecified if the kinds differ.
func (d *Datum) Add(other Datum) {
	if d.kind == KindFloat {
		d.f += other.f
		return
	}
	d.i += other.i
}

// Sub removes other's value from d. Behavior is unspecified if the kinds differ.
func (d *Datum) Sub(other Datum) {
	if d.kind == KindFloat {
		d.f -= other.f
		return
	}
	d.i -= other.i
}

// IsZero reports whether the Datum's value is negligible: exactly 0 for
// integers, or within floatZeroEpsilon of 0 for floats.
func (d Datum) IsZero() bool {
	if d.kind == KindFloat {
		return math.Abs(d.f) < floatZeroEpsilon
	}
	return d.i == 0
}

// ToJSONValue returns the Datum's value as the concrete type encoding/json
// (or any JSON encoder) should emit a bare number for.
func (d Datum) ToJSONValue() any {
	if d.kind == KindFloat {
		return d.f
	}
	return d.i
}
