package domain

// Default discretization thresholds.
const (
	DefaultNegativeThreshold = -0.25
	DefaultPositiveThreshold = 0.25
)

// Thresholds are the closed cut points used by Decide. Ordering is not
// validated; an inverted pair (Negative > Positive) discretizes every
// scalar to Neutral.
type Thresholds struct {
	Negative float64 `json:"negative_threshold" yaml:"negative_threshold"`
	Positive float64 `json:"positive_threshold" yaml:"positive_threshold"`
}

// DefaultThresholds returns {-0.25, +0.25}.
func DefaultThresholds() Thresholds {
	return Thresholds{Negative: DefaultNegativeThreshold, Positive: DefaultPositiveThreshold}
}

// ThresholdOverrides is a partial Thresholds. Nil fields keep the default.
type ThresholdOverrides struct {
	Negative *float64 `json:"negative_threshold,omitempty" yaml:"negative_threshold,omitempty"`
	Positive *float64 `json:"positive_threshold,omitempty" yaml:"positive_threshold,omitempty"`
}

// Resolve merges the overrides field by field over the defaults.
func (o ThresholdOverrides) Resolve() Thresholds {
	th := DefaultThresholds()
	if o.Negative != nil {
		th.Negative = *o.Negative
	}
	if o.Positive != nil {
		th.Positive = *o.Positive
	}
	return th
}

// Inverted reports whether Negative lies above Positive.
func (th Thresholds) Inverted() bool { return th.Negative > th.Positive }

// Decide discretizes a scalar. Both thresholds are inclusive. A
// non-finite scalar carries no information and is read as 0.
func Decide(scalar float64, th Thresholds) Decision {
	s := UnitScalar(scalar)
	switch {
	case th.Inverted():
		return Neutral
	case s <= th.Negative:
		return Negative
	case s >= th.Positive:
		return Positive
	default:
		return Neutral
	}
}

// DecideInputs scores inputs and discretizes the result.
func DecideInputs(inputs []Input, weights []float64, th Thresholds) Decision {
	return Decide(Score(inputs, weights), th)
}
