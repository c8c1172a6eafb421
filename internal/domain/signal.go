// Package domain contains the pure decision core: input normalization,
// soft-mean aggregation, threshold discretization, the hysteretic reducer,
// and the presentation mapping. Nothing in this package performs I/O.
package domain

import (
	"encoding/json"
	"math"
)

// DefaultWeight is the weight given to an input that carries none.
const DefaultWeight = 1.0

// Input is a raw observation fed to the core. It is a closed set of
// variants: Number, Weighted and Malformed. Callers at the edge of the
// system convert decoded data with InputFrom.
type Input interface {
	isInput()
}

// Number is a bare numeric observation.
type Number float64

// Weighted is an observation that carries its own value and, optionally,
// its own weight. A nil Weight means the caller's default applies.
type Weighted struct {
	Value  float64  `json:"v"`
	Weight *float64 `json:"w,omitempty"`
}

// Malformed wraps anything that could not be read as a number. It always
// normalizes to a zero-weight signal.
type Malformed struct {
	Raw any `json:"raw,omitempty"`
}

func (Number) isInput()    {}
func (Weighted) isInput()  {}
func (Malformed) isInput() {}

// W returns a pointer to w, for building Weighted literals.
func W(w float64) *float64 { return &w }

// Signal is a normalized observation. Value is always in [-1, 1] and Weight
// is never negative.
type Signal struct {
	Value  float64 `json:"v"`
	Weight float64 `json:"w"`
}

// Normalize converts one input into a Signal. Non-finite or malformed
// inputs become the zero signal {0, 0}, which contributes nothing to
// aggregation.
func Normalize(in Input, defaultWeight float64) Signal {
	switch v := in.(type) {
	case Number:
		x := float64(v)
		if !isFinite(x) {
			return Signal{}
		}
		return Signal{Value: Clamp(x), Weight: sanitizeWeight(defaultWeight)}
	case Weighted:
		if !isFinite(v.Value) {
			return Signal{}
		}
		w := defaultWeight
		if v.Weight != nil && isFinite(*v.Weight) {
			w = *v.Weight
		}
		return Signal{Value: Clamp(v.Value), Weight: sanitizeWeight(w)}
	default:
		return Signal{}
	}
}

// InputFrom converts a decoded JSON or YAML value into an Input. Numbers
// become Number; objects with a numeric "v" or "value" become Weighted,
// taking "w" or "weight" when numeric. Everything else is Malformed.
func InputFrom(raw any) Input {
	if x, ok := toFloat(raw); ok {
		return Number(x)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return Malformed{Raw: raw}
	}
	value, ok := lookupFloat(obj, "v", "value")
	if !ok {
		return Malformed{Raw: raw}
	}
	in := Weighted{Value: value}
	if w, ok := lookupFloat(obj, "w", "weight"); ok {
		in.Weight = W(w)
	}
	return in
}

// InputsFrom applies InputFrom to every element of raw.
func InputsFrom(raw []any) []Input {
	out := make([]Input, len(raw))
	for i, r := range raw {
		out[i] = InputFrom(r)
	}
	return out
}

// Numbers wraps plain floats as inputs.
func Numbers(xs ...float64) []Input {
	out := make([]Input, len(xs))
	for i, x := range xs {
		out[i] = Number(x)
	}
	return out
}

// Clamp limits x to [-1, 1]. NaN maps to 0.
func Clamp(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return 0
	case x < -1:
		return -1
	case x > 1:
		return 1
	default:
		return x
	}
}

// UnitScalar clamps a pre-computed scalar to [-1, 1]. A non-finite scalar
// carries no information and becomes 0.
func UnitScalar(x float64) float64 {
	if !isFinite(x) {
		return 0
	}
	return Clamp(x)
}

func sanitizeWeight(w float64) float64 {
	if !isFinite(w) || w < 0 {
		return 0
	}
	return w
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func lookupFloat(obj map[string]any, names ...string) (float64, bool) {
	for _, name := range names {
		if raw, ok := obj[name]; ok {
			return toFloat(raw)
		}
	}
	return 0, false
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
