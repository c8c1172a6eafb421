package domain

import "math"

// Curvature is the soft nonlinearity applied to the weighted mean.
const Curvature = 1.25

// Aggregator combines normalized signals into one scalar in [-1, 1].
type Aggregator interface {
	Aggregate(signals []Signal) float64
}

// SoftMean is the weighted mean squashed through tanh(k*m). A zero total
// weight yields 0.
type SoftMean struct {
	Curvature float64
}

var _ Aggregator = SoftMean{}

// Aggregate implements Aggregator.
func (a SoftMean) Aggregate(signals []Signal) float64 {
	var sum, wsum float64
	for _, s := range signals {
		sum += s.Weight * s.Value
		wsum += s.Weight
	}
	if wsum == 0 {
		return 0
	}
	return UnitScalar(math.Tanh(a.Curvature * (sum / wsum)))
}

// NormalizeAll normalizes inputs, using weights[i] as the default weight
// for inputs[i]. Positions past the end of weights use DefaultWeight.
//
// A positional weight never overrides an explicit one: a Weighted input
// with its own weight keeps it whatever weights[i] says, and weights[i]
// applies only to inputs that carry no weight of their own.
func NormalizeAll(inputs []Input, weights []float64) []Signal {
	out := make([]Signal, len(inputs))
	for i, in := range inputs {
		w := DefaultWeight
		if i < len(weights) {
			w = weights[i]
		}
		out[i] = Normalize(in, w)
	}
	return out
}

// Score aggregates inputs with the default SoftMean. An empty input set
// scores 0. Weights follow NormalizeAll, so weights[i] is a fallback for
// inputs[i] and cannot zero out or rescale a Weighted input's own weight.
func Score(inputs []Input, weights []float64) float64 {
	return ScoreWith(SoftMean{Curvature: Curvature}, inputs, weights)
}

// ScoreWith aggregates inputs with agg.
func ScoreWith(agg Aggregator, inputs []Input, weights []float64) float64 {
	if len(inputs) == 0 {
		return 0
	}
	return agg.Aggregate(NormalizeAll(inputs, weights))
}
