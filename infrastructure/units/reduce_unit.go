package units

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-ternary/internal/domain"
	"github.com/ahrav/go-ternary/internal/ports"
)

var _ ports.Unit = (*ReduceUnit)(nil)

// ReduceUnit owns one hysteretic reducer. Every Execute is one step, so a
// ReduceUnit must serve a single stream and must not run concurrently with
// itself.
type ReduceUnit struct {
	name     string
	opts     domain.ReducerOptions
	reducer  *domain.Reducer
	observer ports.StepObserver
	tracer   trace.Tracer
}

// NewReduceUnit creates a ReduceUnit with a fresh reducer. A nil observer
// is allowed.
func NewReduceUnit(name string, opts domain.ReducerOptions, observer ports.StepObserver) (*ReduceUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &ReduceUnit{
		name:     name,
		opts:     opts,
		reducer:  domain.NewReducer(),
		observer: observer,
		tracer:   otel.Tracer("reduce-unit"),
	}, nil
}

// Name returns the unit id.
func (u *ReduceUnit) Name() string { return u.name }

// Options returns the reducer options.
func (u *ReduceUnit) Options() domain.ReducerOptions { return u.opts }

// State returns the reducer's current state.
func (u *ReduceUnit) State() domain.ReducerState { return u.reducer.State() }

// Execute folds the observation into the reducer. The signal is the scalar
// in state when present, otherwise the score of the inputs.
func (u *ReduceUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	ctx, span := u.tracer.Start(ctx, "ReduceUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "reduce"),
			attribute.String("unit.id", u.name),
			attribute.Float64("config.alpha", u.opts.Alpha),
			attribute.Float64("config.inertia", u.opts.Inertia),
		),
	)
	defer span.End()

	x, ok := domain.Get(state, domain.KeyScalar)
	if !ok {
		x = resolveScalar(state, domain.SoftMean{Curvature: domain.Curvature}, nil)
	}

	start := time.Now()
	prev := u.reducer.State()
	next, err := u.reducer.Step(x, u.opts)
	if err != nil {
		span.RecordError(err)
		return state, fmt.Errorf("unit %s: %w", u.name, err)
	}

	stream, _ := domain.Get(state, domain.KeyStreamID)
	seq, _ := domain.Get(state, domain.KeySequence)
	if u.observer != nil {
		u.observer.ObserveStep(ctx, ports.StepEvent{
			StreamID: stream,
			Sequence: seq,
			Unit:     u.name,
			Input:    domain.UnitScalar(x),
			Previous: prev,
			Current:  next,
			Duration: time.Since(start),
		})
	}

	span.SetAttributes(
		attribute.Float64("reducer.scalar", next.Scalar),
		attribute.Int("reducer.decision", int(next.Decision)),
		attribute.Bool("reducer.transition", prev.Decision != next.Decision),
	)

	return state.WithMultiple(map[string]any{
		domain.KeyReducerState.Name(): next,
		domain.KeyDecision.Name():     next.Decision,
	}), nil
}

// Validate checks the options.
func (u *ReduceUnit) Validate() error {
	if err := u.opts.Validate(); err != nil {
		return fmt.Errorf("unit %s: %w", u.name, err)
	}
	return nil
}

// CreateReduceUnit builds a ReduceUnit from profile parameters. Reducer
// options of the wrong type surface as a *domain.ConfigError. An optional
// ports.StepObserver may be injected under ParamObserver.
func CreateReduceUnit(id string, params map[string]any) (*ReduceUnit, error) {
	var observer ports.StepObserver
	if raw, ok := params[ParamObserver]; ok && raw != nil {
		obs, ok := raw.(ports.StepObserver)
		if !ok {
			return nil, fmt.Errorf("%s must implement ports.StepObserver, got %T", ParamObserver, raw)
		}
		observer = obs
	}

	opts, err := domain.ParseReducerOptions(withoutDeps(params))
	if err != nil {
		return nil, err
	}
	return NewReduceUnit(id, opts, observer)
}
