package units

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-ternary/internal/domain"
	"github.com/ahrav/go-ternary/internal/ports"
)

var _ ports.Unit = (*ScoreUnit)(nil)

// ScoreConfig configures the aggregation step.
type ScoreConfig struct {
	// Curvature is k in tanh(k*m).
	Curvature float64 `yaml:"curvature" json:"curvature" validate:"gt=0,lte=10"`

	// Weights are positional default weights. Weights found in state take
	// precedence.
	Weights []float64 `yaml:"weights,omitempty" json:"weights,omitempty" validate:"dive,gte=0"`
}

// DefaultScoreConfig returns curvature 1.25 and no weights.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{Curvature: domain.Curvature}
}

// ScoreUnit aggregates the observation's inputs into KeyScalar. When the
// observation has no inputs but already carries a scalar, the scalar is
// clamped and kept.
type ScoreUnit struct {
	name   string
	config ScoreConfig
	agg    domain.Aggregator
	tracer trace.Tracer
}

// NewScoreUnit creates a ScoreUnit.
func NewScoreUnit(name string, config ScoreConfig) (*ScoreUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &ScoreUnit{
		name:   name,
		config: config,
		agg:    domain.SoftMean{Curvature: config.Curvature},
		tracer: otel.Tracer("score-unit"),
	}, nil
}

// Name returns the unit id.
func (u *ScoreUnit) Name() string { return u.name }

// Execute writes the aggregated scalar.
func (u *ScoreUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := u.tracer.Start(ctx, "ScoreUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "score"),
			attribute.String("unit.id", u.name),
			attribute.Float64("config.curvature", u.config.Curvature),
		),
	)
	defer span.End()

	scalar := resolveScalar(state, u.agg, u.config.Weights)

	span.SetAttributes(attribute.Float64("eval.scalar", scalar))
	return domain.With(state, domain.KeyScalar, scalar), nil
}

// Validate checks the configuration.
func (u *ScoreUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("unit %s: configuration validation failed: %w", u.name, err)
	}
	return nil
}

// CreateScoreUnit builds a ScoreUnit from profile parameters.
func CreateScoreUnit(id string, params map[string]any) (*ScoreUnit, error) {
	config := DefaultScoreConfig()
	if err := decodeParams(withoutDeps(params), &config); err != nil {
		return nil, err
	}
	return NewScoreUnit(id, config)
}

// resolveScalar scores the inputs in state. With no inputs it falls back
// to a scalar already in state, then to 0.
func resolveScalar(state domain.State, agg domain.Aggregator, defaultWeights []float64) float64 {
	inputs, _ := domain.Get(state, domain.KeyInputs)
	if len(inputs) == 0 {
		if s, ok := domain.Get(state, domain.KeyScalar); ok {
			return domain.UnitScalar(s)
		}
		return 0
	}
	weights, ok := domain.Get(state, domain.KeyWeights)
	if !ok {
		weights = defaultWeights
	}
	return domain.ScoreWith(agg, inputs, weights)
}
