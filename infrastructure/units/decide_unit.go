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

var _ ports.Unit = (*DecideUnit)(nil)

// DecideConfig holds partial threshold overrides.
type DecideConfig struct {
	NegativeThreshold *float64 `yaml:"negative_threshold,omitempty" json:"negative_threshold,omitempty" validate:"omitempty,gte=-1,lte=1"`
	PositiveThreshold *float64 `yaml:"positive_threshold,omitempty" json:"positive_threshold,omitempty" validate:"omitempty,gte=-1,lte=1"`
}

// Overrides converts the configuration to domain overrides.
func (c DecideConfig) Overrides() domain.ThresholdOverrides {
	return domain.ThresholdOverrides{Negative: c.NegativeThreshold, Positive: c.PositiveThreshold}
}

// DecideUnit discretizes the observation statelessly. Thresholds already
// present in state (set from the profile) are used as the base for this
// unit's own overrides.
type DecideUnit struct {
	name   string
	config DecideConfig
	tracer trace.Tracer
}

// NewDecideUnit creates a DecideUnit.
func NewDecideUnit(name string, config DecideConfig) (*DecideUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &DecideUnit{name: name, config: config, tracer: otel.Tracer("decide-unit")}, nil
}

// Name returns the unit id.
func (u *DecideUnit) Name() string { return u.name }

// Execute writes KeyDecision and the thresholds it used.
func (u *DecideUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := u.tracer.Start(ctx, "DecideUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "decide"),
			attribute.String("unit.id", u.name),
		),
	)
	defer span.End()

	th := u.thresholds(state)
	scalar, ok := domain.Get(state, domain.KeyScalar)
	if !ok {
		scalar = resolveScalar(state, domain.SoftMean{Curvature: domain.Curvature}, nil)
	}
	d := domain.Decide(scalar, th)

	span.SetAttributes(
		attribute.Float64("eval.scalar", scalar),
		attribute.Int("eval.decision", int(d)),
	)
	return state.WithMultiple(map[string]any{
		domain.KeyScalar.Name():     domain.UnitScalar(scalar),
		domain.KeyDecision.Name():   d,
		domain.KeyThresholds.Name(): th,
	}), nil
}

func (u *DecideUnit) thresholds(state domain.State) domain.Thresholds {
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
	return th
}

// Validate checks the configuration.
func (u *DecideUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("unit %s: configuration validation failed: %w", u.name, err)
	}
	return nil
}

// CreateDecideUnit builds a DecideUnit from profile parameters.
func CreateDecideUnit(id string, params map[string]any) (*DecideUnit, error) {
	var config DecideConfig
	if err := decodeParams(withoutDeps(params), &config); err != nil {
		return nil, err
	}
	return NewDecideUnit(id, config)
}
