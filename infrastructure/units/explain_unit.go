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

var _ ports.Unit = (*ExplainUnit)(nil)

// ExplainConfig configures the rationale step.
type ExplainConfig struct {
	Curvature         float64  `yaml:"curvature" json:"curvature" validate:"gt=0,lte=10"`
	NegativeThreshold *float64 `yaml:"negative_threshold,omitempty" json:"negative_threshold,omitempty" validate:"omitempty,gte=-1,lte=1"`
	PositiveThreshold *float64 `yaml:"positive_threshold,omitempty" json:"positive_threshold,omitempty" validate:"omitempty,gte=-1,lte=1"`
}

// DefaultExplainConfig returns curvature 1.25 and no overrides.
func DefaultExplainConfig() ExplainConfig {
	return ExplainConfig{Curvature: domain.Curvature}
}

// ExplainUnit records the stateless rationale of the observation and
// emits the observation's Verdict, which also carries the reducer state
// when an earlier stage produced one.
type ExplainUnit struct {
	name   string
	config ExplainConfig
	agg    domain.Aggregator
	tracer trace.Tracer
}

// NewExplainUnit creates an ExplainUnit.
func NewExplainUnit(name string, config ExplainConfig) (*ExplainUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &ExplainUnit{
		name:   name,
		config: config,
		agg:    domain.SoftMean{Curvature: config.Curvature},
		tracer: otel.Tracer("explain-unit"),
	}, nil
}

// Name returns the unit id.
func (u *ExplainUnit) Name() string { return u.name }

// Execute writes KeyRationale and KeyVerdict.
func (u *ExplainUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := u.tracer.Start(ctx, "ExplainUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "explain"),
			attribute.String("unit.id", u.name),
		),
	)
	defer span.End()

	th, ok := domain.Get(state, domain.KeyThresholds)
	if !ok {
		th = domain.DefaultThresholds()
	}
	if u.config.NegativeThreshold != nil {
		th.Negative = *u.config.NegativeThreshold
	}
	if u.config.PositiveThreshold != nil {
		th.Positive = *u.config.PositiveThreshold
	}

	inputs, _ := domain.Get(state, domain.KeyInputs)
	weights, _ := domain.Get(state, domain.KeyWeights)

	var rationale domain.Rationale
	if scalar, ok := domain.Get(state, domain.KeyScalar); ok && len(inputs) == 0 {
		s := domain.UnitScalar(scalar)
		d := domain.Decide(s, th)
		rationale = domain.Rationale{
			NormalizedInputs: []domain.Signal{},
			Scalar:           s,
			Decision:         d,
			Tag:              domain.Flag(d),
			Thresholds:       th,
		}
	} else {
		rationale = domain.ExplainWith(u.agg, inputs, weights, th)
	}

	stream, _ := domain.Get(state, domain.KeyStreamID)
	seq, _ := domain.Get(state, domain.KeySequence)
	var reducerState *domain.ReducerState
	if st, ok := domain.Get(state, domain.KeyReducerState); ok {
		reducerState = &st
	}
	verdict := domain.NewVerdict(stream, seq, &rationale, reducerState)

	span.SetAttributes(
		attribute.String("verdict.id", verdict.ID),
		attribute.Float64("eval.scalar", rationale.Scalar),
		attribute.String("eval.label", verdict.Tag.Label),
	)

	return state.WithMultiple(map[string]any{
		domain.KeyRationale.Name(): &rationale,
		domain.KeyVerdict.Name():   verdict,
	}), nil
}

// Validate checks the configuration.
func (u *ExplainUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("unit %s: configuration validation failed: %w", u.name, err)
	}
	return nil
}

// CreateExplainUnit builds an ExplainUnit from profile parameters.
func CreateExplainUnit(id string, params map[string]any) (*ExplainUnit, error) {
	config := DefaultExplainConfig()
	if err := decodeParams(withoutDeps(params), &config); err != nil {
		return nil, err
	}
	return NewExplainUnit(id, config)
}
