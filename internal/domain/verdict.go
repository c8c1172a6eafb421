package domain

import (
	"time"

	"github.com/google/uuid"
)

// Vote is a textual opinion from a named voter, read by label voting.
type Vote struct {
	Voter  string   `json:"voter,omitempty" yaml:"voter,omitempty"`
	Label  string   `json:"label" yaml:"label"`
	Weight *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// Verdict is emitted once per processed observation. Rationale describes
// the stateless view of the observation and State the reducer afterwards;
// either may be nil when the pipeline did not produce it.
type Verdict struct {
	// ID uniquely identifies this verdict.
	ID        string          `json:"id"`
	StreamID  string          `json:"stream"`
	Sequence  uint64          `json:"seq"`
	Decision  Decision        `json:"decision"`
	Tag       PresentationTag `json:"flag"`
	Rationale *Rationale      `json:"rationale,omitempty"`
	State     *ReducerState   `json:"state,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewVerdict builds a verdict with a fresh ID. The reported decision is the
// reducer's when a state is present, otherwise the rationale's.
func NewVerdict(stream string, seq uint64, r *Rationale, st *ReducerState) *Verdict {
	v := &Verdict{
		ID:        uuid.NewString(),
		StreamID:  stream,
		Sequence:  seq,
		Decision:  Neutral,
		Rationale: r,
		State:     st,
		CreatedAt: time.Now().UTC(),
	}
	switch {
	case st != nil:
		v.Decision = st.Decision
	case r != nil:
		v.Decision = r.Decision
	}
	v.Tag = Flag(v.Decision)
	return v
}
