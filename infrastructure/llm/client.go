// Package llm provides the completion clients that back llm_vote units.
//
// Providers (OpenAI, Anthropic, Google) implement the small CoreLLM
// contract. Cross-cutting behavior such as retries, rate limiting, timeouts,
// circuit breaking, metrics and tracing is layered on top as Middleware, so
// a Client is always a provider wrapped by zero or more middlewares:
//
//	client, err := llm.NewClient("anthropic", llm.ClientConfig{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:  "claude-3-5-haiku-latest",
//	    Middleware: []llm.Middleware{
//	        llm.TracingMiddleware("ternary"),
//	        llm.RetryMiddleware(2, 200*time.Millisecond, 2*time.Second),
//	        llm.RateLimitMiddleware(5, 10),
//	    },
//	})
//
// Profiles name models as "provider/model"; a Resolver turns those strings
// into cached clients.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ahrav/go-ternary/internal/ports"
)

// CoreLLM is the minimal contract a provider implements.
type CoreLLM interface {
	// DoRequest sends a prompt and returns the response text together with
	// the input and output token counts.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)

	// GetModel returns the model used for subsequent requests.
	GetModel() string

	// SetModel changes the model used for subsequent requests.
	SetModel(model string)
}

// Middleware wraps a CoreLLM to add behavior around every request.
type Middleware func(CoreLLM) CoreLLM

// ClientConfig configures a provider and its middleware chain.
type ClientConfig struct {
	// APIKey authenticates against the provider.
	APIKey string

	// Model selects the provider model. Providers fall back to their
	// default model when empty.
	Model string

	// BaseURL overrides the provider endpoint. Leave empty for the default.
	BaseURL string

	// Timeout bounds the underlying HTTP client where the SDK allows it.
	Timeout time.Duration

	// Middleware is applied in order, the first entry being the outermost.
	Middleware []Middleware
}

// ProviderFactory builds a CoreLLM from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var (
	factoriesMu       sync.RWMutex
	providerFactories = map[string]ProviderFactory{}
)

// RegisterProviderFactory makes a provider available to NewClient.
func RegisterProviderFactory(provider string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	providerFactories[provider] = factory
}

// Providers returns the registered provider names in sorted order.
func Providers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(providerFactories))
	for name := range providerFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupFactory(provider string) (ProviderFactory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := providerFactories[provider]
	return f, ok
}

// Client implements ports.LLMClient on top of a middleware-wrapped provider.
type Client struct {
	provider string
	core     CoreLLM
}

var _ ports.LLMClient = (*Client)(nil)

// NewClient creates a client for the named provider.
func NewClient(provider string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	factory, ok := lookupFactory(provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", provider, err)
	}

	return newClientFromCore(provider, core, config.Middleware...), nil
}

// newClientFromCore wraps core so the first middleware is the outermost.
func newClientFromCore(provider string, core CoreLLM, middleware ...Middleware) *Client {
	for i := len(middleware) - 1; i >= 0; i-- {
		core = middleware[i](core)
	}
	return &Client{provider: provider, core: core}
}

// Complete implements ports.LLMClient.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.CompleteWithUsage(ctx, prompt, options)
	return response, err
}

// CompleteWithUsage is Complete with token counts.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	if prompt == "" {
		return "", 0, 0, ErrEmptyPrompt
	}
	response, in, out, err := c.core.DoRequest(ctx, prompt, options)
	if err != nil {
		llmErr := ports.NewLLMError(c.core.GetModel(), "complete", err)
		if d := retryAfter(err); d > 0 {
			llmErr.RetryAfter = &d
		}
		return "", 0, 0, llmErr
	}
	return response, in, out, nil
}

// EstimateTokens approximates four characters per token.
func (c *Client) EstimateTokens(text string) (int, error) {
	return EstimateTokens(text), nil
}

// GetModel implements ports.LLMClient.
func (c *Client) GetModel() string { return c.core.GetModel() }

// Provider returns the provider name the client was built for.
func (c *Client) Provider() string { return c.provider }

// EstimateTokens approximates the token count of text at four characters
// per token, rounding up.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// Sentinel errors.
var (
	ErrEmptyAPIKey      = errors.New("API key cannot be empty")
	ErrEmptyPrompt      = errors.New("prompt cannot be empty")
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrInvalidModelSpec = errors.New("model must be of the form provider/model")
	ErrEmptyResponse    = fmt.Errorf("%w: empty response from API", ports.ErrInvalidResponse)
	ErrNoResponseChoice = fmt.Errorf("%w: no response choices returned", ports.ErrInvalidResponse)
)
