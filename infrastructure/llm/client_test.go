package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ternary/internal/ports"
)

func TestProvidersRegistered(t *testing.T) {
	assert.Equal(t, []string{"anthropic", "google", "openai"}, Providers())
}

func TestNewClient_Errors(t *testing.T) {
	_, err := NewClient("openai", ClientConfig{Model: "gpt-4o"})
	assert.ErrorIs(t, err, ErrEmptyAPIKey)

	_, err = NewClient("mystery", ClientConfig{APIKey: "k"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
	assert.Contains(t, err.Error(), "mystery")

	_, err = NewClient("openai", ClientConfig{APIKey: "k", BaseURL: "ftp://example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create provider openai")
}

func TestNewClient_Provider(t *testing.T) {
	c, err := NewClient("anthropic", ClientConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Provider())
	assert.Equal(t, AnthropicDefaultModel, c.GetModel())
}

func TestClient_MiddlewareOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next CoreLLM) CoreLLM {
			return &orderLLM{CoreLLM: next, name: name, order: &order}
		}
	}

	core := newFakeCore()
	c := newClientFromCore("fake", core, tag("outer"), tag("inner"))

	_, err := c.Complete(context.Background(), "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

type orderLLM struct {
	CoreLLM
	name  string
	order *[]string
}

func (o *orderLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	*o.order = append(*o.order, o.name)
	return o.CoreLLM.DoRequest(ctx, prompt, opts)
}

func TestClient_Complete(t *testing.T) {
	core := newFakeCore()
	c := newClientFromCore("fake", core)

	resp, in, out, err := c.CompleteWithUsage(context.Background(), "is it ready?", map[string]any{"temperature": 0.2})
	require.NoError(t, err)
	assert.Equal(t, core.Response, resp)
	assert.Equal(t, 10, in)
	assert.Equal(t, 20, out)
	assert.Equal(t, []string{"is it ready?"}, core.Prompts())
}

func TestClient_CompleteEmptyPrompt(t *testing.T) {
	core := newFakeCore()
	c := newClientFromCore("fake", core)

	_, err := c.Complete(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Zero(t, core.Calls())
}

func TestClient_CompleteWrapsLLMError(t *testing.T) {
	rate := NewProviderError("fake", ErrorTypeRateLimit, 429, "slow down", nil)
	core := newFakeCore().failing(1, rate)
	c := newClientFromCore("fake", core)

	_, err := c.Complete(context.Background(), "prompt", nil)
	require.Error(t, err)

	var llmErr *ports.LLMError
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, "test-model", llmErr.Model)
	assert.Equal(t, "complete", llmErr.Operation)
	assert.True(t, llmErr.IsRetryable())
	assert.ErrorIs(t, err, ports.ErrRateLimited)
	assert.Nil(t, llmErr.RetryAfter)
}

func TestClient_CompleteCarriesRetryAfter(t *testing.T) {
	rate := NewProviderError("fake", ErrorTypeRateLimit, 429, "slow down", nil)
	rate.RetryAfter = 3 * time.Second
	c := newClientFromCore("fake", newFakeCore().failing(1, rate))

	_, err := c.Complete(context.Background(), "prompt", nil)

	var llmErr *ports.LLMError
	require.ErrorAs(t, err, &llmErr)
	require.NotNil(t, llmErr.RetryAfter)
	assert.Equal(t, 3*time.Second, *llmErr.RetryAfter)
	assert.Contains(t, err.Error(), "retry_after=3s")
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"héllo wörld", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateTokens(tt.text), tt.text)
	}

	c := newClientFromCore("fake", newFakeCore())
	n, err := c.EstimateTokens("abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
