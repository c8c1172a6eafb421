// Package ports defines the interfaces between the decision core, the
// application layer that composes it, and the infrastructure adapters.
package ports

import (
	"context"

	"github.com/ahrav/go-ternary/internal/domain"
)

// Unit is one step of a decision pipeline. A unit reads the State, adds
// its results with copy-on-write updates, and returns the new State.
// Stateless units must be safe for concurrent use; a stateful unit (the
// reducer) belongs to exactly one stream.
type Unit interface {
	// Name returns the unit's identifier within its profile.
	Name() string

	// Execute performs the unit's transformation. The input State must not
	// be modified. Units should return promptly once ctx is done.
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// Validate checks the unit's configuration and dependencies.
	Validate() error
}

// UnitFactory builds a unit from its id and raw profile parameters.
type UnitFactory func(id string, params map[string]any) (Unit, error)

// UnitRegistry maps unit type names to factories.
type UnitRegistry interface {
	// Register adds a factory. Registering an existing type is an error.
	Register(unitType string, factory UnitFactory) error

	// CreateUnit builds a fresh unit of the given type.
	CreateUnit(unitType, id string, params map[string]any) (Unit, error)

	IsRegistered(unitType string) bool

	// SupportedTypes returns the registered type names in sorted order.
	SupportedTypes() []string
}
