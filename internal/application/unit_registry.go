package application

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/ahrav/go-ternary/infrastructure/units"
	"github.com/ahrav/go-ternary/internal/ports"
)

var _ ports.UnitRegistry = (*DefaultUnitRegistry)(nil)

// Built-in unit types.
const (
	UnitTypeScore     = "score"
	UnitTypeDecide    = "decide"
	UnitTypeReduce    = "reduce"
	UnitTypeExplain   = "explain"
	UnitTypeLabelVote = "label_vote"
	UnitTypeLLMVote   = "llm_vote"
)

// ParamModel carries a unit's model override from the profile to the
// llm_vote factory.
const ParamModel = "model"

// RegistryDeps are the dependencies injected into built-in units.
type RegistryDeps struct {
	// LLMClient backs llm_vote units without a model override.
	LLMClient ports.LLMClient

	// ClientForModel resolves a provider/model override. When nil, a
	// unit with an override is rejected.
	ClientForModel func(model string) (ports.LLMClient, error)

	// Observer is notified by every reduce unit.
	Observer ports.StepObserver
}

// DefaultUnitRegistry is a concurrency-safe map of unit factories.
type DefaultUnitRegistry struct {
	factories map[string]ports.UnitFactory
	mu        sync.RWMutex
}

// NewDefaultUnitRegistry returns a registry with the built-in unit types.
func NewDefaultUnitRegistry(deps RegistryDeps) *DefaultUnitRegistry {
	r := &DefaultUnitRegistry{factories: make(map[string]ports.UnitFactory)}

	r.factories[UnitTypeScore] = func(id string, params map[string]any) (ports.Unit, error) {
		return units.CreateScoreUnit(id, params)
	}
	r.factories[UnitTypeDecide] = func(id string, params map[string]any) (ports.Unit, error) {
		return units.CreateDecideUnit(id, params)
	}
	r.factories[UnitTypeExplain] = func(id string, params map[string]any) (ports.Unit, error) {
		return units.CreateExplainUnit(id, params)
	}
	r.factories[UnitTypeLabelVote] = func(id string, params map[string]any) (ports.Unit, error) {
		return units.CreateLabelVoteUnit(id, params)
	}

	observer := deps.Observer
	r.factories[UnitTypeReduce] = func(id string, params map[string]any) (ports.Unit, error) {
		if _, ok := params[units.ParamObserver]; !ok && observer != nil {
			params[units.ParamObserver] = observer
		}
		return units.CreateReduceUnit(id, params)
	}

	client, clientFor := deps.LLMClient, deps.ClientForModel
	r.factories[UnitTypeLLMVote] = func(id string, params map[string]any) (ports.Unit, error) {
		c := client
		if model, ok := params[ParamModel].(string); ok && model != "" {
			if clientFor == nil {
				return nil, fmt.Errorf("unit %s: model override %q but no model resolver configured", id, model)
			}
			resolved, err := clientFor(model)
			if err != nil {
				return nil, fmt.Errorf("unit %s: resolving model %q: %w", id, model, err)
			}
			c = resolved
		}
		delete(params, ParamModel)
		if _, ok := params[units.ParamLLMClient]; !ok && c != nil {
			params[units.ParamLLMClient] = c
		}
		return units.CreateLLMVoteUnit(id, params)
	}

	return r
}

// Register adds a factory for a new unit type.
func (r *DefaultUnitRegistry) Register(unitType string, factory ports.UnitFactory) error {
	if unitType == "" {
		return fmt.Errorf("unit type cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[unitType]; exists {
		return fmt.Errorf("unit type %s is already registered", unitType)
	}
	r.factories[unitType] = factory
	return nil
}

// CreateUnit builds a unit. params is copied before the factory sees it.
func (r *DefaultUnitRegistry) CreateUnit(unitType, id string, params map[string]any) (ports.Unit, error) {
	r.mu.RLock()
	factory, exists := r.factories[unitType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported unit type: %s", unitType)
	}
	if id == "" {
		return nil, fmt.Errorf("unit ID cannot be empty")
	}

	cfg := make(map[string]any, len(params)+1)
	maps.Copy(cfg, params)

	unit, err := factory(id, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create unit %s of type %s: %w", id, unitType, err)
	}
	return unit, nil
}

// IsRegistered reports whether unitType has a factory.
func (r *DefaultUnitRegistry) IsRegistered(unitType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[unitType]
	return ok
}

// SupportedTypes returns the registered types, sorted.
func (r *DefaultUnitRegistry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}
