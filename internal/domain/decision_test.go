package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allDecisions = []Decision{Negative, Neutral, Positive}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "NEGATIVE", Negative.String())
	assert.Equal(t, "NEUTRAL", Neutral.String())
	assert.Equal(t, "POSITIVE", Positive.String())
	assert.Equal(t, "Decision(4)", Decision(4).String())
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in      string
		want    Decision
		wantErr bool
	}{
		{in: "-1", want: Negative},
		{in: "reject", want: Negative},
		{in: " Neutral ", want: Neutral},
		{in: "+1", want: Positive},
		{in: "AFFIRM", want: Positive},
		{in: "maybe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDecision(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidValue)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecision_JSON(t *testing.T) {
	data, err := json.Marshal(ReducerState{Scalar: 0.5, Decision: Positive})
	require.NoError(t, err)
	assert.JSONEq(t, `{"scalar":0.5,"decision":1}`, string(data))

	var d Decision
	require.NoError(t, json.Unmarshal([]byte(`-1`), &d))
	assert.Equal(t, Negative, d)
	require.NoError(t, json.Unmarshal([]byte(`"affirm"`), &d))
	assert.Equal(t, Positive, d)
	assert.Error(t, json.Unmarshal([]byte(`2`), &d))

	_, err = json.Marshal(Decision(3))
	assert.Error(t, err)
}

// TestAlgebra checks the three-valued connectives against their truth
// tables.
func TestAlgebra(t *testing.T) {
	t.Run("meet and join", func(t *testing.T) {
		assert.Equal(t, Negative, Meet(Positive, Negative))
		assert.Equal(t, Neutral, Meet(Positive, Neutral))
		assert.Equal(t, Positive, Join(Negative, Positive))
		assert.Equal(t, Neutral, Join(Negative, Neutral))
	})

	t.Run("not is an involution", func(t *testing.T) {
		for _, d := range allDecisions {
			assert.Equal(t, d, Not(Not(d)))
		}
		assert.Equal(t, Neutral, Not(Neutral))
	})

	t.Run("godel implication", func(t *testing.T) {
		assert.Equal(t, Positive, Implies(Negative, Negative))
		assert.Equal(t, Positive, Implies(Neutral, Positive))
		assert.Equal(t, Neutral, Implies(Positive, Neutral))
		assert.Equal(t, Negative, Implies(Neutral, Negative))
	})

	t.Run("equivalence", func(t *testing.T) {
		for _, d := range allDecisions {
			assert.Equal(t, Positive, Equiv(d, d))
		}
		assert.Equal(t, Negative, Equiv(Positive, Negative))
		assert.Equal(t, Neutral, Equiv(Positive, Neutral))
	})

	t.Run("xor star", func(t *testing.T) {
		for _, d := range allDecisions {
			assert.Equal(t, Neutral, XorStar(d, d))
		}
		assert.Equal(t, Positive, XorStar(Neutral, Positive))
		assert.Equal(t, Negative, XorStar(Negative, Neutral))
		assert.Equal(t, Negative, XorStar(Positive, Negative))
	})

	t.Run("nand", func(t *testing.T) {
		assert.Equal(t, Negative, Nand(Positive, Positive))
		assert.Equal(t, Positive, Nand(Negative, Positive))
		assert.Equal(t, Neutral, Nand(Neutral, Positive))
	})

	t.Run("de morgan", func(t *testing.T) {
		for _, a := range allDecisions {
			for _, b := range allDecisions {
				assert.Equal(t, Not(Meet(a, b)), Join(Not(a), Not(b)))
			}
		}
	})

	t.Run("consensus", func(t *testing.T) {
		assert.Equal(t, Neutral, Consensus())
		assert.Equal(t, Positive, Consensus(Positive, Positive))
		assert.Equal(t, Negative, Consensus(Positive, Negative, Neutral))
	})
}
