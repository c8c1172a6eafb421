package llm

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/go-ternary/internal/ports"
)

// ParseModelSpec splits "provider/model". The model part may itself
// contain slashes.
func ParseModelSpec(spec string) (provider, model string, err error) {
	provider, model, ok := strings.Cut(strings.TrimSpace(spec), "/")
	if !ok || provider == "" || model == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidModelSpec, spec)
	}
	return strings.ToLower(provider), model, nil
}

// KeyFunc returns the API key for a provider, or false when none is known.
type KeyFunc func(provider string) (string, bool)

// StaticKeys serves keys from a fixed provider-to-key map.
func StaticKeys(keys map[string]string) KeyFunc {
	return func(provider string) (string, bool) {
		k, ok := keys[provider]
		return k, ok && k != ""
	}
}

// Resolver builds and caches one Client per model spec.
type Resolver struct {
	keys       KeyFunc
	middleware []Middleware
	timeout    time.Duration
	baseURLs   map[string]string

	mu      sync.Mutex
	clients map[string]*Client
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithMiddleware sets the middleware chain applied to every client.
func WithMiddleware(mw ...Middleware) ResolverOption {
	return func(r *Resolver) { r.middleware = append(r.middleware, mw...) }
}

// WithTimeout sets the HTTP client timeout for every provider.
func WithTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.timeout = d }
}

// WithBaseURL overrides the endpoint for one provider.
func WithBaseURL(provider, baseURL string) ResolverOption {
	return func(r *Resolver) { r.baseURLs[provider] = baseURL }
}

// NewResolver creates a Resolver that looks up API keys with keys.
func NewResolver(keys KeyFunc, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		keys:     keys,
		baseURLs: make(map[string]string),
		clients:  make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Client returns the cached client for spec, creating it on first use.
func (r *Resolver) Client(spec string) (*Client, error) {
	provider, model, err := ParseModelSpec(spec)
	if err != nil {
		return nil, err
	}
	key := provider + "/" + model

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[key]; ok {
		return c, nil
	}

	apiKey, ok := r.keys(provider)
	if !ok {
		return nil, fmt.Errorf("no API key configured for provider %s: %w", provider, ErrEmptyAPIKey)
	}
	c, err := NewClient(provider, ClientConfig{
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    r.baseURLs[provider],
		Timeout:    r.timeout,
		Middleware: r.middleware,
	})
	if err != nil {
		return nil, err
	}
	r.clients[key] = c
	return c, nil
}

// ClientForModel adapts Client to the signature the unit registry expects.
func (r *Resolver) ClientForModel(spec string) (ports.LLMClient, error) {
	c, err := r.Client(spec)
	if err != nil {
		return nil, err
	}
	return c, nil
}
