// Package middleware adapts the decision core's observation points to
// Prometheus and OpenTelemetry.
package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-ternary/infrastructure/llm"
	"github.com/ahrav/go-ternary/internal/ports"
)

// Namespace prefixes every metric registered by PrometheusMetrics.
const Namespace = "ternary"

const unknownLabel = "unknown"

// PrometheusMetrics implements ports.MetricsCollector and ports.StepObserver
// on a caller-supplied registry.
type PrometheusMetrics struct {
	stepsTotal       *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	scalar           *prometheus.GaugeVec
	stepLatency      *prometheus.HistogramVec

	operationLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	llmRequests      *prometheus.CounterVec
	llmTokens        *prometheus.CounterVec
	llmLatency       *prometheus.HistogramVec
	gauges           *prometheus.GaugeVec
	histograms       *prometheus.HistogramVec
}

var (
	_ ports.MetricsCollector = (*PrometheusMetrics)(nil)
	_ ports.StepObserver     = (*PrometheusMetrics)(nil)
)

// NewPrometheusMetrics registers all metrics on reg. A collector that
// cannot be registered, for example because reg already holds the same
// family with other labels, fails with a *ports.MetricsError and leaves
// reg as it was. A nil reg registers nothing.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	// Unregistered collectors; registration below reports errors instead of
	// panicking.
	f := promauto.With(nil)
	pm := &PrometheusMetrics{
		stepsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reducer_steps_total",
			Help:      "Reducer steps by stream and committed decision.",
		}, []string{"stream", "decision"}),
		transitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reducer_transitions_total",
			Help:      "Committed decision changes by origin and destination.",
		}, []string{"from", "to"}),
		scalar: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "reducer_scalar",
			Help:      "Current smoothed scalar per stream.",
		}, []string{"stream"}),
		stepLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "reducer_step_duration_seconds",
			Help:      "Time spent in one reducer step.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"unit"}),

		operationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Execution time of pipeline operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "unit", "status"}),
		operationCounter: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Counters recorded through the generic collector interface.",
		}, []string{"metric", "unit"}),
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "llm_requests_total",
			Help:      "LLM requests by provider, model and status.",
		}, []string{"provider", "model", "status"}),
		llmTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "llm_tokens_total",
			Help:      "LLM tokens by provider, model and direction.",
		}, []string{"provider", "model", "direction"}),
		llmLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"provider", "model", "status"}),
		gauges: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "state",
			Help:      "Gauges recorded through the generic collector interface.",
		}, []string{"metric", "unit"}),
		histograms: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "values",
			Help:      "Histograms recorded through the generic collector interface.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"metric", "unit"}),
	}
	if reg == nil {
		return pm, nil
	}
	if err := pm.register(reg); err != nil {
		return nil, err
	}
	return pm, nil
}

func (pm *PrometheusMetrics) register(reg prometheus.Registerer) error {
	collectors := []struct {
		name string
		c    prometheus.Collector
	}{
		{"reducer_steps_total", pm.stepsTotal},
		{"reducer_transitions_total", pm.transitionsTotal},
		{"reducer_scalar", pm.scalar},
		{"reducer_step_duration_seconds", pm.stepLatency},
		{"operation_duration_seconds", pm.operationLatency},
		{"operations_total", pm.operationCounter},
		{"llm_requests_total", pm.llmRequests},
		{"llm_tokens_total", pm.llmTokens},
		{"llm_request_duration_seconds", pm.llmLatency},
		{"state", pm.gauges},
		{"values", pm.histograms},
	}
	for i, col := range collectors {
		if err := reg.Register(col.c); err != nil {
			for _, done := range collectors[:i] {
				reg.Unregister(done.c)
			}
			return ports.NewMetricsError(Namespace+"_"+col.name, "register", err)
		}
	}
	return nil
}

func label(labels map[string]string, key string) string {
	return orUnknown(labels[key])
}

func orUnknown(v string) string {
	if v == "" {
		return unknownLabel
	}
	return v
}

// RecordLatency implements ports.MetricsCollector. LLM request latencies
// go to the LLM histogram, everything else to the operation one.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	if operation == llm.OperationLLM {
		pm.llmLatency.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "status")).
			Observe(duration.Seconds())
		return
	}
	pm.operationLatency.WithLabelValues(operation, label(labels, "unit"), label(labels, "status")).
		Observe(duration.Seconds())
}

// RecordCounter implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	if value < 0 {
		return
	}
	switch metric {
	case llm.MetricLLMRequests:
		pm.llmRequests.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "status")).Add(value)
	case llm.MetricLLMTokens:
		pm.llmTokens.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "direction")).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric, label(labels, "unit")).Add(value)
	}
}

// RecordGauge implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	pm.gauges.WithLabelValues(metric, label(labels, "unit")).Set(value)
}

// RecordHistogram implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	pm.histograms.WithLabelValues(metric, label(labels, "unit")).Observe(value)
}

// ObserveStep implements ports.StepObserver.
func (pm *PrometheusMetrics) ObserveStep(_ context.Context, event ports.StepEvent) {
	stream, unit := orUnknown(event.StreamID), orUnknown(event.Unit)
	pm.stepsTotal.WithLabelValues(stream, event.Current.Decision.String()).Inc()
	pm.scalar.WithLabelValues(stream).Set(event.Current.Scalar)
	pm.stepLatency.WithLabelValues(unit).Observe(event.Duration.Seconds())
	if event.Transitioned() {
		pm.transitionsTotal.WithLabelValues(event.Previous.Decision.String(), event.Current.Decision.String()).Inc()
	}
}
