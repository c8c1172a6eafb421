package llm

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ahrav/go-ternary/internal/ports"
)

// Metric names emitted by MetricsMiddleware.
const (
	MetricLLMRequests = "llm_requests_total"
	MetricLLMTokens   = "llm_tokens_total"
	OperationLLM      = "llm_request"
)

type metricsLLM struct {
	next      CoreLLM
	collector ports.MetricsCollector
}

// MetricsMiddleware records latency, request counts by status and token
// usage for every request.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &metricsLLM{next: next, collector: collector}
	}
}

// DoRequest implements CoreLLM.
func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := m.next.DoRequest(ctx, prompt, opts)
	if m.collector == nil {
		return response, tokensIn, tokensOut, err
	}

	model := m.next.GetModel()
	labels := map[string]string{
		"provider": providerForModel(model),
		"model":    model,
		"status":   requestStatus(ctx, err),
	}
	m.collector.RecordLatency(OperationLLM, time.Since(start), labels)
	m.collector.RecordCounter(MetricLLMRequests, 1, labels)
	if err == nil {
		m.collector.RecordCounter(MetricLLMTokens, float64(tokensIn), withLabel(labels, "direction", "input"))
		m.collector.RecordCounter(MetricLLMTokens, float64(tokensOut), withLabel(labels, "direction", "output"))
	}
	return response, tokensIn, tokensOut, err
}

func requestStatus(ctx context.Context, err error) string {
	var pe *ProviderError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &pe) && pe.StatusCode > 0:
		return strconv.Itoa(pe.StatusCode)
	default:
		return "error"
	}
}

func withLabel(labels map[string]string, k, v string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for key, val := range labels {
		out[key] = val
	}
	out[k] = v
	return out
}

// providerForModel guesses the provider from well-known model prefixes.
func providerForModel(model string) string {
	switch m := strings.ToLower(model); {
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"):
		return "openai"
	case strings.HasPrefix(m, "claude"):
		return "anthropic"
	case strings.HasPrefix(m, "gemini"):
		return "google"
	default:
		return "unknown"
	}
}

// GetModel implements CoreLLM.
func (m *metricsLLM) GetModel() string { return m.next.GetModel() }

// SetModel implements CoreLLM.
func (m *metricsLLM) SetModel(model string) { m.next.SetModel(model) }
