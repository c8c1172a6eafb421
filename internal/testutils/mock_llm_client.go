// Package testutils provides test doubles shared across packages.
package testutils

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ahrav/go-ternary/internal/ports"
)

// Canned vote answers.
const (
	VoteAffirm = `{"vote": 1, "confidence": 0.9, "reasoning": "Clearly acceptable."}`
	VoteTend   = `{"vote": 0, "confidence": 0.5, "reasoning": "Not enough information."}`
	VoteReject = `{"vote": -1, "confidence": 0.8, "reasoning": "Clearly unacceptable."}`
)

// ErrEmptyPrompt is returned by Complete for an empty prompt.
var ErrEmptyPrompt = errors.New("prompt cannot be empty")

// MockResponse maps a prompt substring to a canned answer or error.
type MockResponse struct {
	// Pattern is matched case-insensitively against the prompt.
	Pattern  string
	Response string
	Err      error
}

// MockLLMClient answers prompts from an ordered list of patterns. The
// first matching pattern wins; with none matching the fallback answer is
// returned. It is safe for concurrent use.
type MockLLMClient struct {
	model string

	mu        sync.RWMutex
	responses []MockResponse
	fallback  string
	prompts   []string

	calls atomic.Int64
}

// NewMockLLMClient returns a client that affirms everything by default.
func NewMockLLMClient(model string) *MockLLMClient {
	return &MockLLMClient{model: model, fallback: VoteAffirm}
}

// AddResponse appends a pattern. Earlier patterns take precedence.
func (m *MockLLMClient) AddResponse(r MockResponse) *MockLLMClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Pattern = strings.ToLower(r.Pattern)
	m.responses = append(m.responses, r)
	return m
}

// SetFallback replaces the answer used when nothing matches.
func (m *MockLLMClient) SetFallback(response string) *MockLLMClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = response
	return m
}

// Complete implements ports.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, _ map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	m.calls.Add(1)

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	lower := strings.ToLower(prompt)
	for _, r := range m.responses {
		if strings.Contains(lower, r.Pattern) {
			return r.Response, r.Err
		}
	}
	return m.fallback, nil
}

// EstimateTokens approximates four characters per token.
func (m *MockLLMClient) EstimateTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return max(1, len(text)/4), nil
}

// GetModel implements ports.LLMClient.
func (m *MockLLMClient) GetModel() string { return m.model }

// Calls reports how many prompts were completed.
func (m *MockLLMClient) Calls() int { return int(m.calls.Load()) }

// Prompts returns a copy of every prompt received, in arrival order.
func (m *MockLLMClient) Prompts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.prompts...)
}

var _ ports.LLMClient = (*MockLLMClient)(nil)
