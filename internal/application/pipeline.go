package application

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-ternary/internal/domain"
	"github.com/ahrav/go-ternary/internal/ports"
)

var (
	_ ports.Pipeline      = (*Pipeline)(nil)
	_ ports.Layer         = (*Layer)(nil)
	_ ports.MergeStrategy = SignalMerge{}
	_ ports.MergeStrategy = LastWriteWins{}
)

// Pipeline runs its executables in order, feeding each one's output state
// to the next. The context is checked before every stage.
type Pipeline struct {
	id          string
	executables []ports.Executable
	idSet       map[string]struct{}
	mu          sync.RWMutex
}

// NewPipeline creates an empty pipeline.
func NewPipeline(id string) *Pipeline {
	return &Pipeline{
		id:    id,
		idSet: make(map[string]struct{}),
	}
}

// Execute runs every stage in order. On failure it returns the state
// produced by the last successful stage.
func (p *Pipeline) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	p.mu.RLock()
	executables := make([]ports.Executable, len(p.executables))
	copy(executables, p.executables)
	p.mu.RUnlock()

	current := state
	for _, exec := range executables {
		if err := ctx.Err(); err != nil {
			return current, err
		}
		next, err := exec.Execute(ctx, current)
		if err != nil {
			return current, fmt.Errorf("pipeline %s: execution failed at %s: %w", p.id, exec.ID(), err)
		}
		current = next
	}
	return current, nil
}

// ID returns the pipeline id.
func (p *Pipeline) ID() string { return p.id }

// Add appends a stage. Ids must be unique within the pipeline.
func (p *Pipeline) Add(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to pipeline")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id := exec.ID()
	if _, exists := p.idSet[id]; exists {
		return fmt.Errorf("executable with ID %s already exists in pipeline", id)
	}
	p.executables = append(p.executables, exec)
	p.idSet[id] = struct{}{}
	return nil
}

// Executables returns a copy of the stages in order.
func (p *Pipeline) Executables() []ports.Executable {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]ports.Executable, len(p.executables))
	copy(out, p.executables)
	return out
}

// Layer runs its branches concurrently on the same input state and
// merges their outputs. Branch outputs reach the merge strategy in
// declaration order regardless of completion order, so merging is
// deterministic.
type Layer struct {
	id               string
	executables      []ports.Executable
	idSet            map[string]struct{}
	mergeStrategy    ports.MergeStrategy
	concurrencyLimit int
	mu               sync.RWMutex
}

// NewLayer creates an empty layer that merges with SignalMerge and runs
// at most 2 x NumCPU branches at once.
func NewLayer(id string) *Layer {
	return &Layer{
		id:               id,
		idSet:            make(map[string]struct{}),
		mergeStrategy:    SignalMerge{},
		concurrencyLimit: runtime.NumCPU() * 2,
	}
}

// Execute runs all branches and merges their states. When any branch
// fails, every failure is reported and the input state is returned.
func (l *Layer) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	l.mu.RLock()
	executables := make([]ports.Executable, len(l.executables))
	copy(executables, l.executables)
	limit := l.concurrencyLimit
	strategy := l.mergeStrategy
	l.mu.RUnlock()

	if len(executables) == 0 {
		return state, nil
	}
	if limit <= 0 {
		limit = runtime.NumCPU() * 2
	}
	if strategy == nil {
		strategy = SignalMerge{}
	}

	states := make([]domain.State, len(executables))
	errs := make([]error, len(executables))

	// Branches record their own errors; siblings keep running.
	var g errgroup.Group
	g.SetLimit(limit)
	for i, exec := range executables {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("executable %s: %w", exec.ID(), err)
				return nil
			}
			out, err := exec.Execute(ctx, state)
			if err != nil {
				errs[i] = fmt.Errorf("executable %s: %w", exec.ID(), err)
				return nil
			}
			states[i] = out
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return state, fmt.Errorf("layer %s failed with %d errors: %w", l.id, len(failed), errors.Join(failed...))
	}

	merged, err := strategy.Merge(state, states)
	if err != nil {
		return state, fmt.Errorf("layer %s: merge failed: %w", l.id, err)
	}
	return merged, nil
}

// ID returns the layer id.
func (l *Layer) ID() string { return l.id }

// Add appends a branch. Ids must be unique within the layer.
func (l *Layer) Add(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to layer")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := exec.ID()
	if _, exists := l.idSet[id]; exists {
		return fmt.Errorf("executable with ID %s already exists in layer", id)
	}
	l.executables = append(l.executables, exec)
	l.idSet[id] = struct{}{}
	return nil
}

// Executables returns a copy of the branches in declaration order.
func (l *Layer) Executables() []ports.Executable {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ports.Executable, len(l.executables))
	copy(out, l.executables)
	return out
}

// SetMergeStrategy replaces the merge strategy. A nil strategy restores
// SignalMerge.
func (l *Layer) SetMergeStrategy(strategy ports.MergeStrategy) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mergeStrategy = strategy
}

// SetConcurrencyLimit bounds the number of branches running at once.
// Values <= 0 restore the default.
func (l *Layer) SetConcurrencyLimit(limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.concurrencyLimit = limit
}

// SignalMerge combines parallel voters. Inputs each branch appended beyond
// the base state's inputs are concatenated in branch order; every other
// key is taken last-write-wins in branch order.
type SignalMerge struct{}

// Merge implements ports.MergeStrategy.
func (SignalMerge) Merge(base domain.State, states []domain.State) (domain.State, error) {
	baseInputs, _ := domain.Get(base, domain.KeyInputs)
	n := len(baseInputs)

	merged := base
	inputs := baseInputs
	for i, st := range states {
		branch, _ := domain.Get(st, domain.KeyInputs)
		if len(branch) < n {
			return base, fmt.Errorf("branch %d dropped inputs: have %d, base has %d", i, len(branch), n)
		}
		inputs = append(inputs, branch[n:]...)

		updates := make(map[string]any)
		for _, key := range st.Keys() {
			if key == domain.KeyInputs.Name() {
				continue
			}
			v, _ := st.GetRaw(key)
			updates[key] = v
		}
		merged = merged.WithMultiple(updates)
	}

	if inputs == nil {
		return merged, nil
	}
	return domain.With(merged, domain.KeyInputs, inputs), nil
}

// LastWriteWins overlays branch states in order, so later branches win
// on conflicting keys.
type LastWriteWins struct{}

// Merge implements ports.MergeStrategy.
func (LastWriteWins) Merge(base domain.State, states []domain.State) (domain.State, error) {
	merged := base
	for _, st := range states {
		updates := make(map[string]any)
		for _, key := range st.Keys() {
			v, _ := st.GetRaw(key)
			updates[key] = v
		}
		merged = merged.WithMultiple(updates)
	}
	return merged, nil
}
