package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Decision is the discretized ternary outcome. Its integer value is the
// wire encoding.
type Decision int8

// The three decisions, ordered Negative < Neutral < Positive.
const (
	Negative Decision = -1
	Neutral  Decision = 0
	Positive Decision = 1
)

// Valid reports whether d is one of the three decisions.
func (d Decision) Valid() bool { return d >= Negative && d <= Positive }

func (d Decision) String() string {
	switch d {
	case Negative:
		return "NEGATIVE"
	case Neutral:
		return "NEUTRAL"
	case Positive:
		return "POSITIVE"
	default:
		return fmt.Sprintf("Decision(%d)", int8(d))
	}
}

// ParseDecision accepts the integer literals and the symbolic or label
// names, case-insensitively.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "-1", "negative", "reject":
		return Negative, nil
	case "0", "neutral", "tend":
		return Neutral, nil
	case "1", "+1", "positive", "affirm":
		return Positive, nil
	}
	return Neutral, fmt.Errorf("%w: decision %q", ErrInvalidValue, s)
}

// MarshalJSON encodes the decision as -1, 0 or 1.
func (d Decision) MarshalJSON() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidValue, d)
	}
	return json.Marshal(int8(d))
}

// UnmarshalJSON accepts either the integer literal or a name understood
// by ParseDecision.
func (d *Decision) UnmarshalJSON(data []byte) error {
	var n int8
	if err := json.Unmarshal(data, &n); err == nil {
		if !Decision(n).Valid() {
			return fmt.Errorf("%w: decision %d", ErrInvalidValue, n)
		}
		*d = Decision(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: decision %s", ErrInvalidValue, data)
	}
	parsed, err := ParseDecision(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Three-valued algebra over decisions, with Negative as false, Neutral as
// unknown and Positive as true.

// Meet is the conjunction (minimum).
func Meet(a, b Decision) Decision { return min(a, b) }

// Join is the disjunction (maximum).
func Join(a, b Decision) Decision { return max(a, b) }

// Not negates a decision. Neutral is its own negation.
func Not(a Decision) Decision { return -a }

// Implies is the Gödel implication: Positive when a <= b, otherwise b.
func Implies(a, b Decision) Decision {
	if a <= b {
		return Positive
	}
	return b
}

// Equiv holds when both directions of Implies hold.
func Equiv(a, b Decision) Decision { return Meet(Implies(a, b), Implies(b, a)) }

// XorStar is Neutral for equal operands, passes the other operand through
// when one side is Neutral, and is Negative for opposing commitments.
func XorStar(a, b Decision) Decision {
	switch {
	case a == b:
		return Neutral
	case a == Neutral:
		return b
	case b == Neutral:
		return a
	default:
		return Negative
	}
}

// Nand is the negated Meet.
func Nand(a, b Decision) Decision { return Not(Meet(a, b)) }

// Consensus folds decisions with Meet. An empty set is Neutral.
func Consensus(ds ...Decision) Decision {
	if len(ds) == 0 {
		return Neutral
	}
	out := ds[0]
	for _, d := range ds[1:] {
		out = Meet(out, d)
	}
	return out
}
