package llm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ahrav/go-ternary/internal/ports"
)

// ErrCallLimitExceeded is returned once a budget's call limit is spent.
var ErrCallLimitExceeded = errors.New("call limit exceeded")

// Budget caps cumulative usage. Zero means unlimited.
type Budget struct {
	MaxTokens int64
	MaxCalls  int64
}

// BudgetExceededError reports which limit was hit.
type BudgetExceededError struct {
	Limit string
	Max   int64
	Used  int64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: %s limit %d, used %d", e.Limit, e.Max, e.Used)
}

// Is matches ports.ErrTokenLimitExceeded for the token limit and
// ErrCallLimitExceeded for the call limit.
func (e *BudgetExceededError) Is(target error) bool {
	switch target {
	case ports.ErrTokenLimitExceeded:
		return e.Limit == "tokens"
	case ErrCallLimitExceeded:
		return e.Limit == "calls"
	}
	return false
}

// BudgetTracker accumulates usage against a Budget. It is safe for
// concurrent use and is usually shared by every client of one run.
type BudgetTracker struct {
	budget Budget
	calls  atomic.Int64
	tokens atomic.Int64
}

// NewBudgetTracker validates b and returns a tracker with zero usage.
func NewBudgetTracker(b Budget) (*BudgetTracker, error) {
	if b.MaxTokens < 0 {
		return nil, fmt.Errorf("budget: max_tokens cannot be negative, got %d", b.MaxTokens)
	}
	if b.MaxCalls < 0 {
		return nil, fmt.Errorf("budget: max_calls cannot be negative, got %d", b.MaxCalls)
	}
	return &BudgetTracker{budget: b}, nil
}

// Usage returns the calls admitted and tokens consumed so far.
func (t *BudgetTracker) Usage() (calls, tokens int64) {
	return t.calls.Load(), t.tokens.Load()
}

// admit reserves one call, or reports the limit that is already spent.
func (t *BudgetTracker) admit() error {
	if limit := t.budget.MaxTokens; limit > 0 {
		if used := t.tokens.Load(); used >= limit {
			return &BudgetExceededError{Limit: "tokens", Max: limit, Used: used}
		}
	}
	n := t.calls.Add(1)
	if limit := t.budget.MaxCalls; limit > 0 && n > limit {
		t.calls.Add(-1)
		return &BudgetExceededError{Limit: "calls", Max: limit, Used: n - 1}
	}
	return nil
}

type budgetLLM struct {
	next    CoreLLM
	tracker *BudgetTracker
}

// BudgetMiddleware rejects requests once tracker's budget is spent. A
// request that starts under the token limit may finish above it.
func BudgetMiddleware(tracker *BudgetTracker) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &budgetLLM{next: next, tracker: tracker}
	}
}

// DoRequest implements CoreLLM.
func (b *budgetLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := b.tracker.admit(); err != nil {
		return "", 0, 0, err
	}
	response, tokensIn, tokensOut, err := b.next.DoRequest(ctx, prompt, opts)
	if err == nil {
		b.tracker.tokens.Add(int64(tokensIn + tokensOut))
	}
	return response, tokensIn, tokensOut, err
}

// GetModel implements CoreLLM.
func (b *budgetLLM) GetModel() string { return b.next.GetModel() }

// SetModel implements CoreLLM.
func (b *budgetLLM) SetModel(m string) { b.next.SetModel(m) }
