package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Default reducer tuning.
const (
	DefaultAlpha   = 0.25
	DefaultInertia = 0.6
)

// ReducerState is the rolling scalar and the committed decision.
type ReducerState struct {
	Scalar   float64  `json:"scalar"`
	Decision Decision `json:"decision"`
}

// ReducerOptions tune one reducer step.
type ReducerOptions struct {
	// Alpha is the EWMA weight given to the new signal, in [0, 1].
	Alpha float64 `json:"alpha" yaml:"alpha"`
	// Inertia scales the release bounds toward zero, in [0, 1]. Higher
	// inertia holds a committed decision longer.
	Inertia           float64 `json:"inertia" yaml:"inertia"`
	NegativeThreshold float64 `json:"negative_threshold" yaml:"negative_threshold"`
	PositiveThreshold float64 `json:"positive_threshold" yaml:"positive_threshold"`
}

// DefaultReducerOptions returns alpha 0.25, inertia 0.6 and thresholds
// -0.25/+0.25.
func DefaultReducerOptions() ReducerOptions {
	return ReducerOptions{
		Alpha:             DefaultAlpha,
		Inertia:           DefaultInertia,
		NegativeThreshold: DefaultNegativeThreshold,
		PositiveThreshold: DefaultPositiveThreshold,
	}
}

// Thresholds returns the entry thresholds of the options.
func (o ReducerOptions) Thresholds() Thresholds {
	return Thresholds{Negative: o.NegativeThreshold, Positive: o.PositiveThreshold}
}

// Validate rejects non-finite values and alpha or inertia outside [0, 1].
func (o ReducerOptions) Validate() error {
	verr := NewValidationError("reducer options")
	check := func(name string, v float64, unit bool) {
		switch {
		case !isFinite(v):
			verr.AddError(fmt.Sprintf("%s must be finite, got %v", name, v))
		case unit && (v < 0 || v > 1):
			verr.AddError(fmt.Sprintf("%s must be within [0, 1], got %v", name, v))
		}
	}
	check(OptionAlpha, o.Alpha, true)
	check(OptionInertia, o.Inertia, true)
	check(OptionNegativeThreshold, o.NegativeThreshold, false)
	check(OptionPositiveThreshold, o.PositiveThreshold, false)
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// Recognized raw option names.
const (
	OptionAlpha             = "alpha"
	OptionInertia           = "inertia"
	OptionNegativeThreshold = "negative_threshold"
	OptionPositiveThreshold = "positive_threshold"
)

// ParseReducerOptions merges raw options over the defaults. Unknown option
// names are ignored. A recognized option holding a non-numeric value is a
// *ConfigError. The merged options are validated.
func ParseReducerOptions(raw map[string]any) (ReducerOptions, error) {
	opts := DefaultReducerOptions()
	fields := map[string]*float64{
		OptionAlpha:             &opts.Alpha,
		OptionInertia:           &opts.Inertia,
		OptionNegativeThreshold: &opts.NegativeThreshold,
		OptionPositiveThreshold: &opts.PositiveThreshold,
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dst, ok := fields[name]
		if !ok {
			continue
		}
		v, ok := toFloat(raw[name])
		if !ok {
			return ReducerOptions{}, NewConfigError(name, raw[name], ErrInvalidOption)
		}
		*dst = v
	}

	if err := opts.Validate(); err != nil {
		return ReducerOptions{}, err
	}
	return opts, nil
}

// UnmarshalJSON decodes a partial options object over the defaults.
func (o *ReducerOptions) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseReducerOptions(raw)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Transition computes the next state from prev and one resolved signal x.
// It assumes opts are valid. From Neutral the scalar must reach a
// threshold to commit; a committed decision releases to Neutral only once
// the scalar crosses the threshold scaled by (1 - inertia). Negative and
// Positive never follow each other directly.
//
// Entry uses the closed comparisons directly, negative first, and does not
// share Decide's inverted-threshold guard: with negative 0.3 and positive
// -0.3 a scalar of 0 commits to Negative.
func Transition(prev ReducerState, x float64, opts ReducerOptions) ReducerState {
	s := Clamp((1-opts.Alpha)*prev.Scalar + opts.Alpha*UnitScalar(x))
	d := prev.Decision

	switch prev.Decision {
	case Negative:
		if s >= opts.NegativeThreshold*(1-opts.Inertia) {
			d = Neutral
		}
	case Positive:
		if s <= opts.PositiveThreshold*(1-opts.Inertia) {
			d = Neutral
		}
	default:
		switch {
		case s <= opts.NegativeThreshold:
			d = Negative
		case s >= opts.PositiveThreshold:
			d = Positive
		default:
			d = Neutral
		}
	}
	return ReducerState{Scalar: s, Decision: d}
}

// Reducer owns one ReducerState and advances it one observation at a
// time. A Reducer is meant for a single sequential stream and is not safe
// for concurrent use; independent reducers share nothing.
type Reducer struct {
	state ReducerState
	steps uint64
}

// NewReducer returns a reducer at {0, Neutral}.
func NewReducer() *Reducer {
	return &Reducer{}
}

// Step folds a scalar observation into the state and returns the new
// state. Invalid options leave the state untouched.
func (r *Reducer) Step(x float64, opts ReducerOptions) (ReducerState, error) {
	if err := opts.Validate(); err != nil {
		return r.state, err
	}
	r.state = Transition(r.state, x, opts)
	r.steps++
	return r.state, nil
}

// StepInputs scores inputs and folds the result into the state.
func (r *Reducer) StepInputs(inputs []Input, weights []float64, opts ReducerOptions) (ReducerState, error) {
	return r.Step(Score(inputs, weights), opts)
}

// State returns the current state.
func (r *Reducer) State() ReducerState { return r.state }

// Steps returns the number of successful steps taken.
func (r *Reducer) Steps() uint64 { return r.steps }

// Reset returns the reducer to {0, Neutral}.
func (r *Reducer) Reset() {
	r.state = ReducerState{}
	r.steps = 0
}
