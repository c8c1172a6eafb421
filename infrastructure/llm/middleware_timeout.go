package llm

import (
	"context"
	"time"
)

type timeoutLLM struct {
	next    CoreLLM
	timeout time.Duration
}

// TimeoutMiddleware bounds each request. A shorter deadline already on the
// context still wins. Placed inside RetryMiddleware it bounds each attempt.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &timeoutLLM{next: next, timeout: timeout}
	}
}

// DoRequest implements CoreLLM.
func (t *timeoutLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.DoRequest(ctx, prompt, opts)
}

// GetModel implements CoreLLM.
func (t *timeoutLLM) GetModel() string { return t.next.GetModel() }

// SetModel implements CoreLLM.
func (t *timeoutLLM) SetModel(m string) { t.next.SetModel(m) }
