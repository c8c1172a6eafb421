package application

import (
	"context"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-ternary/internal/domain"
	"github.com/ahrav/go-ternary/internal/ports"
)

// PipelineFactory builds the pipeline for a stream. Every call must
// return an independent pipeline.
type PipelineFactory func(stream string) (ports.Executable, error)

// StreamSnapshot is the last known position of one stream.
type StreamSnapshot struct {
	Sequence uint64              `json:"seq"`
	State    domain.ReducerState `json:"state"`
	// HasState is false until a pipeline produced a reducer state.
	HasState    bool   `json:"has_state"`
	LastVerdict string `json:"last_verdict,omitempty"`
}

type streamRunner struct {
	mu       sync.Mutex
	pipeline ports.Executable
	snapshot StreamSnapshot
}

// Monitor evaluates many streams with one pipeline each. Streams run in
// parallel; the observations of one stream run strictly in arrival order,
// so each stream's reducer sees a single sequential consumer.
type Monitor struct {
	factory     PipelineFactory
	logger      zerolog.Logger
	concurrency int

	mu      sync.Mutex
	streams map[string]*streamRunner
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = logger }
}

// WithConcurrency bounds the number of streams processed at once.
func WithConcurrency(n int) MonitorOption {
	return func(m *Monitor) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// NewMonitor creates a Monitor that builds stream pipelines with factory.
func NewMonitor(factory PipelineFactory, opts ...MonitorOption) (*Monitor, error) {
	if factory == nil {
		return nil, fmt.Errorf("pipeline factory cannot be nil")
	}
	m := &Monitor{
		factory:     factory,
		logger:      zerolog.Nop(),
		concurrency: runtime.NumCPU(),
		streams:     make(map[string]*streamRunner),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Process evaluates a batch of observations and returns one verdict per
// observation, in input order. On error the verdicts completed so far are
// returned alongside it; a failed stream stops at its first error while
// other streams continue.
func (m *Monitor) Process(ctx context.Context, observations []Observation) ([]*domain.Verdict, error) {
	verdicts := make([]*domain.Verdict, len(observations))

	order := make([]string, 0)
	groups := make(map[string][]int)
	for i, o := range observations {
		stream := o.Stream
		if stream == "" {
			stream = DefaultStream
		}
		if _, ok := groups[stream]; !ok {
			order = append(order, stream)
		}
		groups[stream] = append(groups[stream], i)
	}

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for _, stream := range order {
		indices := groups[stream]
		g.Go(func() error {
			runner, err := m.runner(stream)
			if err != nil {
				return err
			}
			return m.processStream(ctx, runner, stream, observations, indices, verdicts)
		})
	}
	err := g.Wait()
	return verdicts, err
}

func (m *Monitor) processStream(
	ctx context.Context,
	runner *streamRunner,
	stream string,
	observations []Observation,
	indices []int,
	verdicts []*domain.Verdict,
) error {
	runner.mu.Lock()
	defer runner.mu.Unlock()

	for _, i := range indices {
		if err := ctx.Err(); err != nil {
			return err
		}

		seq := runner.snapshot.Sequence + 1
		out, err := runner.pipeline.Execute(ctx, observations[i].StartState(seq))
		if err != nil {
			m.logger.Error().Err(err).
				Str("stream", stream).
				Uint64("seq", seq).
				Msg("observation failed")
			return fmt.Errorf("stream %s seq %d: %w", stream, seq, err)
		}
		runner.snapshot.Sequence = seq

		verdict := verdictFrom(out, stream, seq)
		verdicts[i] = verdict
		runner.snapshot.LastVerdict = verdict.ID

		if verdict.State != nil {
			prev := runner.snapshot.State
			runner.snapshot.State = *verdict.State
			runner.snapshot.HasState = true
			if prev.Decision != verdict.State.Decision {
				m.logger.Info().
					Str("stream", stream).
					Uint64("seq", seq).
					Str("from", prev.Decision.String()).
					Str("to", verdict.State.Decision.String()).
					Float64("scalar", verdict.State.Scalar).
					Msg("decision transition")
			}
		}

		m.logger.Debug().
			Str("stream", stream).
			Uint64("seq", seq).
			Str("verdict", verdict.ID).
			Str("decision", verdict.Decision.String()).
			Msg("observation processed")
	}
	return nil
}

// verdictFrom takes the verdict written by an explain unit or assembles
// one from whatever the pipeline produced.
func verdictFrom(out domain.State, stream string, seq uint64) *domain.Verdict {
	if v, ok := domain.Get(out, domain.KeyVerdict); ok && v != nil {
		return v
	}

	rationale, _ := domain.Get(out, domain.KeyRationale)
	var state *domain.ReducerState
	if st, ok := domain.Get(out, domain.KeyReducerState); ok {
		state = &st
	}
	v := domain.NewVerdict(stream, seq, rationale, state)
	if rationale == nil && state == nil {
		if d, ok := domain.Get(out, domain.KeyDecision); ok {
			v.Decision = d
			v.Tag = domain.Flag(d)
		}
	}
	return v
}

func (m *Monitor) runner(stream string) (*streamRunner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.streams[stream]; ok {
		return r, nil
	}
	pipeline, err := m.factory(stream)
	if err != nil {
		return nil, fmt.Errorf("stream %s: building pipeline: %w", stream, err)
	}
	r := &streamRunner{pipeline: pipeline}
	m.streams[stream] = r
	m.logger.Debug().Str("stream", stream).Msg("stream opened")
	return r, nil
}

// Snapshot returns the position of every known stream.
func (m *Monitor) Snapshot() map[string]StreamSnapshot {
	m.mu.Lock()
	runners := maps.Clone(m.streams)
	m.mu.Unlock()

	out := make(map[string]StreamSnapshot, len(runners))
	for name, r := range runners {
		r.mu.Lock()
		out[name] = r.snapshot
		r.mu.Unlock()
	}
	return out
}

// Streams returns the known stream ids, sorted.
func (m *Monitor) Streams() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.streams))
}

// Reset forgets a stream; its next observation starts a fresh pipeline
// at sequence 1. It reports whether the stream existed.
func (m *Monitor) Reset(stream string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.streams[stream]
	delete(m.streams, stream)
	return ok
}
