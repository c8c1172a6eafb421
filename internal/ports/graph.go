package ports

import (
	"context"

	"github.com/ahrav/go-ternary/internal/domain"
)

// MergeStrategy combines the states of parallel branches into one.
// Implementations must be deterministic for the same inputs in the same
// order and must not modify their arguments.
type MergeStrategy interface {
	Merge(baseState domain.State, states []domain.State) (domain.State, error)
}

// Executable is anything that can run as a stage of a pipeline.
type Executable interface {
	// Execute processes state and returns the updated state. The input
	// state is shared and MUST NOT be modified.
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// ID returns the executable's identifier, constant for its lifetime.
	ID() string
}

// Pipeline runs executables in strict order, feeding each one's output
// to the next.
type Pipeline interface {
	Executable

	Add(exec Executable) error

	// Executables returns the stages in execution order. Callers must not
	// modify the returned slice.
	Executables() []Executable
}

// Layer runs independent executables concurrently on the same input and
// merges their results.
type Layer interface {
	Executable

	Add(exec Executable) error

	// Executables returns the branches in declaration order, which is also
	// the order their results are handed to the merge strategy.
	Executables() []Executable

	// SetMergeStrategy must be called before Execute.
	SetMergeStrategy(strategy MergeStrategy)
}
