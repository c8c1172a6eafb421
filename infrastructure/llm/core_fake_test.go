package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errSimulated = errors.New("simulated failure")

// fakeCoreLLM is a scriptable CoreLLM. Errors are consumed in order, one per
// call; once exhausted every call succeeds with Response.
type fakeCoreLLM struct {
	mu sync.Mutex

	Response  string
	TokensIn  int
	TokensOut int
	Model     string
	Delay     time.Duration
	Errors    []error

	calls   int
	prompts []string
	opts    []map[string]any
	times   []time.Time
}

func newFakeCore() *fakeCoreLLM {
	return &fakeCoreLLM{
		Response:  `{"vote": 1, "confidence": 0.9}`,
		TokensIn:  10,
		TokensOut: 20,
		Model:     "test-model",
	}
}

// failing scripts n consecutive failures with err.
func (f *fakeCoreLLM) failing(n int, err error) *fakeCoreLLM {
	for range n {
		f.Errors = append(f.Errors, err)
	}
	return f
}

func (f *fakeCoreLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	f.times = append(f.times, time.Now())
	var err error
	if len(f.Errors) > 0 {
		err, f.Errors = f.Errors[0], f.Errors[1:]
	}
	delay := f.Delay
	f.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}
	if err != nil {
		return "", 0, 0, err
	}
	return f.Response, f.TokensIn, f.TokensOut, nil
}

func (f *fakeCoreLLM) GetModel() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Model
}

func (f *fakeCoreLLM) SetModel(model string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Model = model
}

func (f *fakeCoreLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeCoreLLM) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// recordingCollector captures MetricsCollector calls.
type recordingCollector struct {
	mu         sync.Mutex
	latencies  []recordedMetric
	counters   []recordedMetric
	gauges     []recordedMetric
	histograms []recordedMetric
}

type recordedMetric struct {
	Name   string
	Value  float64
	Labels map[string]string
}

func (c *recordingCollector) RecordLatency(op string, d time.Duration, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latencies = append(c.latencies, recordedMetric{Name: op, Value: d.Seconds(), Labels: labels})
}

func (c *recordingCollector) RecordCounter(name string, v float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters = append(c.counters, recordedMetric{Name: name, Value: v, Labels: labels})
}

func (c *recordingCollector) RecordGauge(name string, v float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges = append(c.gauges, recordedMetric{Name: name, Value: v, Labels: labels})
}

func (c *recordingCollector) RecordHistogram(name string, v float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.histograms = append(c.histograms, recordedMetric{Name: name, Value: v, Labels: labels})
}
