package domain

// PresentationTag is the display view of a decision.
type PresentationTag struct {
	Symbol string `json:"symbol"`
	Color  string `json:"color"`
	Label  string `json:"label"`
}

// Display cut points used by FlagScalar. They are fixed and independent
// of the configurable Thresholds.
const (
	FlagNegativeCut = -0.5
	FlagPositiveCut = 0.5
)

var tags = map[Decision]PresentationTag{
	Negative: {Symbol: "\U0001F7DC", Color: "#7f1d1d", Label: "reject"},
	Neutral:  {Symbol: "\U0001F7EB", Color: "#7c6f64", Label: "tend"},
	Positive: {Symbol: "⬛", Color: "#0f172a", Label: "affirm"},
}

// Flag returns the tag for d. Values outside the three decisions get the
// Neutral tag.
func Flag(d Decision) PresentationTag {
	if t, ok := tags[d]; ok {
		return t
	}
	return tags[Neutral]
}

// FlagScalar discretizes with the strict display cut points and returns
// the tag. Non-finite scalars are Neutral.
func FlagScalar(scalar float64) PresentationTag {
	return Flag(DisplayDecision(scalar))
}

// DisplayDecision applies the display cut points: below -0.5 is Negative,
// above 0.5 is Positive.
func DisplayDecision(scalar float64) Decision {
	s := UnitScalar(scalar)
	switch {
	case s < FlagNegativeCut:
		return Negative
	case s > FlagPositiveCut:
		return Positive
	default:
		return Neutral
	}
}

// Tags returns a copy of the full table.
func Tags() map[Decision]PresentationTag {
	out := make(map[Decision]PresentationTag, len(tags))
	for d, t := range tags {
		out[d] = t
	}
	return out
}
