package domain

// Rationale is the audit record of one stateless evaluation.
type Rationale struct {
	NormalizedInputs []Signal        `json:"inputs"`
	Scalar           float64         `json:"scalar"`
	Decision         Decision        `json:"decision"`
	Tag              PresentationTag `json:"flag"`
	Thresholds       Thresholds      `json:"thresholds"`
}

// Explain normalizes, scores and discretizes inputs and records every
// intermediate. Its Decision always equals Decide(Scalar, Thresholds).
func Explain(inputs []Input, weights []float64, overrides ThresholdOverrides) Rationale {
	return ExplainWith(SoftMean{Curvature: Curvature}, inputs, weights, overrides.Resolve())
}

// ExplainWith is Explain with a caller-chosen aggregator and resolved
// thresholds.
func ExplainWith(agg Aggregator, inputs []Input, weights []float64, th Thresholds) Rationale {
	signals := NormalizeAll(inputs, weights)
	var scalar float64
	if len(signals) > 0 {
		scalar = agg.Aggregate(signals)
	}
	d := Decide(scalar, th)
	return Rationale{
		NormalizedInputs: signals,
		Scalar:           scalar,
		Decision:         d,
		Tag:              Flag(d),
		Thresholds:       th,
	}
}
