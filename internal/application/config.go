package application

import (
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-ternary/internal/domain"
)

// ProfileConfig is the YAML definition of a decision profile: the units a
// stream's observations flow through and the stages that order them.
type ProfileConfig struct {
	// Version is the profile schema version, X.Y.Z.
	Version string `yaml:"version" validate:"required,semver"`

	Metadata Metadata `yaml:"metadata" validate:"required"`

	// Thresholds are partial overrides of the default thresholds. They seed
	// every observation's state so decide and explain units agree.
	Thresholds domain.ThresholdOverrides `yaml:"thresholds,omitempty"`

	// Reducer holds raw reducer options applied as defaults to every
	// reduce unit. A unit's own params take precedence.
	Reducer map[string]any `yaml:"reducer,omitempty"`

	Units []UnitConfig `yaml:"units" validate:"required,min=1,dive"`

	// Stages run in order. A stage with several units runs them as a
	// parallel layer.
	Stages []StageConfig `yaml:"stages" validate:"required,min=1,dive"`
}

// Metadata describes a profile.
type Metadata struct {
	Name        string            `yaml:"name" validate:"required,min=1,max=255"`
	Description string            `yaml:"description,omitempty" validate:"max=1000"`
	Labels      map[string]string `yaml:"labels,omitempty" validate:"max=50"`
}

// UnitConfig declares one unit instance.
type UnitConfig struct {
	// ID is unique within the profile and referenced by stages.
	ID string `yaml:"id" validate:"required,unitid"`

	// Type selects the factory in the unit registry.
	Type string `yaml:"type" validate:"required,min=1,max=64"`

	// Model overrides the LLM model for llm_vote units, as provider/model.
	Model string `yaml:"model,omitempty" validate:"omitempty,modelformat"`

	// Params are decoded by the unit's factory. Most factories reject
	// unknown keys; reduce ignores names it does not recognize.
	Params yaml.Node `yaml:"params,omitempty"`
}

// StageConfig groups units that run at the same position in the pipeline.
type StageConfig struct {
	ID    string   `yaml:"id" validate:"required,unitid"`
	Units []string `yaml:"units" validate:"required,min=1,dive,unitid"`
}

// ResolvedThresholds merges the profile overrides over the defaults.
func (c *ProfileConfig) ResolvedThresholds() domain.Thresholds {
	return c.Thresholds.Resolve()
}
