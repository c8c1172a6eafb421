// Package units provides the pipeline steps of a decision profile. Each
// unit implements ports.Unit and is built by a CreateXUnit factory from the
// profile's raw parameters.
package units

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-ternary/internal/ports"
)

// Dependency keys injected into unit parameters by the registry.
const (
	ParamLLMClient = "llm_client"
	ParamObserver  = "observer"
)

// Common errors returned by units.
var (
	// ErrEmptyUnitName is returned when attempting to create a unit with an empty name.
	ErrEmptyUnitName = errors.New("unit name cannot be empty")

	// ErrNilLLMClient is returned when an LLM-backed unit has no client.
	ErrNilLLMClient = errors.New("LLM client cannot be nil")

	// ErrMissingSubject is returned when an LLM voter finds no subject in state.
	ErrMissingSubject = errors.New("subject not found in state")

	// ErrUnparsableVote is returned in strict mode for an answer that is
	// not a vote.
	ErrUnparsableVote = fmt.Errorf("%w: response is not a valid vote", ports.ErrInvalidResponse)
)

// Package-level validator instance for configuration validation.
var validate = validator.New()

// decodeParams strictly decodes raw profile parameters into dst by a YAML
// round trip, so unknown keys and mistyped values are rejected. Dependency
// keys must be removed before calling.
func decodeParams(params map[string]any, dst any) error {
	if len(params) == 0 {
		return nil
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	if err := encoder.Encode(params); err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to close YAML encoder: %w", err)
	}

	decoder := yaml.NewDecoder(&buf)
	decoder.KnownFields(true)
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("failed to decode parameters (check for typos): %w", err)
	}
	return nil
}

// withoutDeps returns params minus the injected dependency keys.
func withoutDeps(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if k == ParamLLMClient || k == ParamObserver {
			continue
		}
		out[k] = v
	}
	return out
}
