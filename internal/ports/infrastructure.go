package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-ternary/internal/domain"
)

// LLMClient is a completion client used by LLM voters.
type LLMClient interface {
	// Complete sends a prompt and returns the generated text. Common
	// options are "temperature" (float64), "max_tokens" (int) and
	// "system" (string).
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens approximates the token count of text.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier in use.
	GetModel() string
}

// MetricsCollector records operational metrics.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// StepEvent describes one reducer step.
type StepEvent struct {
	StreamID string
	Sequence uint64
	// Unit is the id of the reduce unit that took the step.
	Unit     string
	Input    float64
	Previous domain.ReducerState
	Current  domain.ReducerState
	Duration time.Duration
}

// Transitioned reports whether the committed decision changed.
func (e StepEvent) Transitioned() bool {
	return e.Previous.Decision != e.Current.Decision
}

// StepObserver is notified after every reducer step. Implementations must
// be safe for concurrent use since streams step in parallel.
type StepObserver interface {
	ObserveStep(ctx context.Context, event StepEvent)
}

// StepObserverFunc adapts a function to StepObserver.
type StepObserverFunc func(ctx context.Context, event StepEvent)

// ObserveStep implements StepObserver.
func (f StepObserverFunc) ObserveStep(ctx context.Context, event StepEvent) { f(ctx, event) }

// Observers fans one event out to several observers in order.
type Observers []StepObserver

// ObserveStep implements StepObserver.
func (o Observers) ObserveStep(ctx context.Context, event StepEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveStep(ctx, event)
		}
	}
}
