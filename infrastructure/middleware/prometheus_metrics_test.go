package middleware

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ternary/infrastructure/llm"
	"github.com/ahrav/go-ternary/internal/domain"
	"github.com/ahrav/go-ternary/internal/ports"
)

func newTestMetrics(t *testing.T) (*PrometheusMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	pm, err := NewPrometheusMetrics(reg)
	require.NoError(t, err)
	return pm, reg
}

func step(stream string, prev, cur domain.ReducerState) ports.StepEvent {
	return ports.StepEvent{
		StreamID: stream,
		Sequence: 1,
		Unit:     "smooth",
		Input:    cur.Scalar,
		Previous: prev,
		Current:  cur,
		Duration: 3 * time.Microsecond,
	}
}

func TestNewPrometheusMetrics_RegistersOnGivenRegistry(t *testing.T) {
	_, reg := newTestMetrics(t)

	_, err := NewPrometheusMetrics(reg)
	require.Error(t, err, "duplicate registration on one registry")
	var merr *ports.MetricsError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "register", merr.Operation)
	var already prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &already)

	pm, err := NewPrometheusMetrics(nil)
	require.NoError(t, err)
	assert.NotNil(t, pm)
}

func TestNewPrometheusMetrics_ConflictingLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	conflict := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "llm_requests_total",
		Help:      "LLM requests by provider, model and status.",
	}, []string{"provider"})
	require.NoError(t, reg.Register(conflict))

	_, err := NewPrometheusMetrics(reg)
	var merr *ports.MetricsError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "ternary_llm_requests_total", merr.Metric)

	// Families registered before the failure were rolled back.
	require.True(t, reg.Unregister(conflict))
	_, err = NewPrometheusMetrics(reg)
	require.NoError(t, err)
}

func TestPrometheusMetrics_ObserveStep(t *testing.T) {
	pm, reg := newTestMetrics(t)
	ctx := context.Background()

	neutral := domain.ReducerState{Scalar: 0.1, Decision: domain.Neutral}
	positive := domain.ReducerState{Scalar: 0.4, Decision: domain.Positive}

	pm.ObserveStep(ctx, step("deploys", domain.ReducerState{}, neutral))
	pm.ObserveStep(ctx, step("deploys", neutral, positive))
	pm.ObserveStep(ctx, step("deploys", positive, domain.ReducerState{Scalar: 0.35, Decision: domain.Positive}))

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.stepsTotal.WithLabelValues("deploys", "NEUTRAL")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.stepsTotal.WithLabelValues("deploys", "POSITIVE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.transitionsTotal.WithLabelValues("NEUTRAL", "POSITIVE")))
	assert.InDelta(t, 0.35, testutil.ToFloat64(pm.scalar.WithLabelValues("deploys")), 1e-12)
	assert.Equal(t, 1, testutil.CollectAndCount(pm.transitionsTotal))

	expected := `
# HELP ternary_reducer_transitions_total Committed decision changes by origin and destination.
# TYPE ternary_reducer_transitions_total counter
ternary_reducer_transitions_total{from="NEUTRAL",to="POSITIVE"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "ternary_reducer_transitions_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.stepLatency))
}

func TestPrometheusMetrics_EmptyLabels(t *testing.T) {
	pm, _ := newTestMetrics(t)
	pm.ObserveStep(context.Background(), ports.StepEvent{})

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.stepsTotal.WithLabelValues("unknown", "NEUTRAL")))
	assert.Equal(t, 0, testutil.CollectAndCount(pm.transitionsTotal))
}

func TestPrometheusMetrics_RecordLatency(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.RecordLatency("unit_execute", 5*time.Millisecond, map[string]string{"unit": "score", "status": "ok"})
	pm.RecordLatency("unit_execute", 5*time.Millisecond, map[string]string{"unit": "score", "status": "ok"})
	pm.RecordLatency(llm.OperationLLM, time.Second, map[string]string{"provider": "openai", "model": "gpt-4o", "status": "success"})

	assert.Equal(t, 1, testutil.CollectAndCount(pm.operationLatency))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.llmLatency))
}

func TestPrometheusMetrics_RecordCounter(t *testing.T) {
	pm, _ := newTestMetrics(t)
	l := map[string]string{"provider": "anthropic", "model": "claude", "status": "success"}

	pm.RecordCounter(llm.MetricLLMRequests, 1, l)
	pm.RecordCounter(llm.MetricLLMRequests, 1, l)
	pm.RecordCounter(llm.MetricLLMTokens, 12, map[string]string{"provider": "anthropic", "model": "claude", "direction": "input"})
	pm.RecordCounter("votes_malformed", 3, map[string]string{"unit": "panel"})
	pm.RecordCounter("votes_malformed", -1, map[string]string{"unit": "panel"})

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.llmRequests.WithLabelValues("anthropic", "claude", "success")))
	assert.Equal(t, 12.0, testutil.ToFloat64(pm.llmTokens.WithLabelValues("anthropic", "claude", "input")))
	assert.Equal(t, 3.0, testutil.ToFloat64(pm.operationCounter.WithLabelValues("votes_malformed", "panel")))
}

func TestPrometheusMetrics_GaugeAndHistogram(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.RecordGauge("streams_active", 4, nil)
	pm.RecordGauge("streams_active", 2, nil)
	pm.RecordHistogram("inputs_per_observation", 7, map[string]string{"unit": "panel"})

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.gauges.WithLabelValues("streams_active", "unknown")))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.histograms))
}
