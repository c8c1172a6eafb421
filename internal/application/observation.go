package application

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ahrav/go-ternary/internal/domain"
)

// DefaultStream is used for observations that do not name a stream.
const DefaultStream = "default"

// Observation is one event of one stream.
type Observation struct {
	Stream  string         `json:"stream"`
	Inputs  []domain.Input `json:"inputs,omitempty"`
	Weights []float64      `json:"weights,omitempty"`

	// Scalar, when set, is stepped directly instead of scoring Inputs.
	Scalar *float64 `json:"scalar,omitempty"`

	Votes   []domain.Vote `json:"votes,omitempty"`
	Subject string        `json:"subject,omitempty"`
}

type observationJSON struct {
	Stream  string        `json:"stream"`
	Inputs  []any         `json:"inputs"`
	Weights []float64     `json:"weights"`
	Scalar  *float64      `json:"scalar"`
	Votes   []domain.Vote `json:"votes"`
	Subject string        `json:"subject"`
}

// UnmarshalJSON accepts an observation object, a bare number (a scalar
// on the default stream) or an array of inputs. Inputs follow
// domain.InputFrom, so malformed entries are kept as malformed inputs.
func (o *Observation) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("invalid observation: %w", err)
	}

	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return fmt.Errorf("invalid observation scalar %q: %w", v, err)
		}
		*o = Observation{Stream: DefaultStream, Scalar: &f}
		return nil
	case []any:
		*o = Observation{Stream: DefaultStream, Inputs: domain.InputsFrom(v)}
		return nil
	case map[string]any:
	default:
		return fmt.Errorf("invalid observation: expected object, number or array, got %s", bytes.TrimSpace(data))
	}

	var aux observationJSON
	dec = json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&aux); err != nil {
		return fmt.Errorf("invalid observation: %w", err)
	}
	*o = Observation{
		Stream:  aux.Stream,
		Inputs:  domain.InputsFrom(aux.Inputs),
		Weights: aux.Weights,
		Scalar:  aux.Scalar,
		Votes:   aux.Votes,
		Subject: aux.Subject,
	}
	if o.Stream == "" {
		o.Stream = DefaultStream
	}
	return nil
}

// StartState returns the pipeline state for this observation at seq.
func (o Observation) StartState(seq uint64) domain.State {
	stream := o.Stream
	if stream == "" {
		stream = DefaultStream
	}
	state := domain.StartState(stream, seq, o.Inputs)

	updates := make(map[string]any)
	if o.Weights != nil {
		updates[domain.KeyWeights.Name()] = o.Weights
	}
	if o.Scalar != nil {
		updates[domain.KeyScalar.Name()] = *o.Scalar
	}
	if o.Votes != nil {
		updates[domain.KeyVotes.Name()] = o.Votes
	}
	if o.Subject != "" {
		updates[domain.KeySubject.Name()] = o.Subject
	}
	if len(updates) == 0 {
		return state
	}
	return state.WithMultiple(updates)
}

// MaxObservationLine bounds a single JSONL line.
const MaxObservationLine = 1 << 20

// ReadObservations decodes one observation per non-blank line.
func ReadObservations(r io.Reader) ([]Observation, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxObservationLine)

	var out []Observation
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var o Observation
		if err := json.Unmarshal(text, &o); err != nil {
			return out, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, o)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("reading observations: %w", err)
	}
	return out, nil
}
