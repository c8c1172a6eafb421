package application

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ternary/internal/domain"
)

func TestObservation_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Observation
		wantErr bool
	}{
		{
			name:  "bare number",
			input: `0.4`,
			want:  Observation{Stream: DefaultStream, Scalar: domain.W(0.4)},
		},
		{
			name:  "array of inputs",
			input: `[1, {"v": -1, "w": 2}, "bogus"]`,
			want: Observation{Stream: DefaultStream, Inputs: []domain.Input{
				domain.Number(1),
				domain.Weighted{Value: -1, Weight: domain.W(2)},
				domain.Malformed{Raw: "bogus"},
			}},
		},
		{
			name:  "object",
			input: `{"stream": "orders", "inputs": [0.5], "weights": [3], "votes": [{"label": "yes"}], "subject": "x"}`,
			want: Observation{
				Stream:  "orders",
				Inputs:  domain.Numbers(0.5),
				Weights: []float64{3},
				Votes:   []domain.Vote{{Label: "yes"}},
				Subject: "x",
			},
		},
		{
			name:  "object without stream",
			input: `{"scalar": -0.2}`,
			want:  Observation{Stream: DefaultStream, Scalar: domain.W(-0.2), Inputs: []domain.Input{}},
		},
		{name: "string", input: `"hello"`, wantErr: true},
		{name: "broken", input: `{"stream":`, wantErr: true},
		{name: "mistyped field", input: `{"weights": "heavy"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Observation
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Observation mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestObservation_StartState(t *testing.T) {
	o := Observation{
		Stream:  "orders",
		Inputs:  domain.Numbers(1),
		Weights: []float64{2},
		Scalar:  domain.W(0.3),
		Subject: "ship",
	}
	s := o.StartState(4)

	stream, _ := domain.Get(s, domain.KeyStreamID)
	seq, _ := domain.Get(s, domain.KeySequence)
	weights, _ := domain.Get(s, domain.KeyWeights)
	scalar, _ := domain.Get(s, domain.KeyScalar)
	subject, _ := domain.Get(s, domain.KeySubject)
	assert.Equal(t, "orders", stream)
	assert.Equal(t, uint64(4), seq)
	assert.Equal(t, []float64{2}, weights)
	assert.Equal(t, 0.3, scalar)
	assert.Equal(t, "ship", subject)
	assert.False(t, domain.Has(s, domain.KeyVotes))

	empty := Observation{}.StartState(1)
	stream, _ = domain.Get(empty, domain.KeyStreamID)
	assert.Equal(t, DefaultStream, stream)
	assert.False(t, domain.Has(empty, domain.KeyScalar))
}

func TestReadObservations(t *testing.T) {
	input := strings.Join([]string{
		`{"stream": "a", "inputs": [1]}`,
		``,
		`0.5`,
		`  [-1]  `,
	}, "\n")

	obs, err := ReadObservations(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, obs, 3)
	assert.Equal(t, "a", obs[0].Stream)
	assert.Equal(t, DefaultStream, obs[1].Stream)
	assert.Equal(t, domain.Numbers(-1), obs[2].Inputs)

	_, err = ReadObservations(strings.NewReader("1\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
