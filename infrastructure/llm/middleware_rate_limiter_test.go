package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestRateLimitMiddleware_Burst(t *testing.T) {
	core := newFakeCore()
	wrapped := RateLimitMiddleware(rate.Every(time.Hour), 2)(core)
	ctx := context.Background()

	for range 2 {
		_, _, _, err := wrapped.DoRequest(ctx, "p", nil)
		require.NoError(t, err)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, _, _, err := wrapped.DoRequest(short, "p", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, 2, core.Calls())
}

func TestRateLimitMiddleware_Paces(t *testing.T) {
	core := newFakeCore()
	wrapped := RateLimitMiddleware(rate.Limit(50), 1)(core)
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		_, _, _, err := wrapped.DoRequest(ctx, "p", nil)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestRateLimitMiddleware_SharedLimiter(t *testing.T) {
	mw := RateLimitMiddleware(rate.Every(time.Hour), 1)
	a, b := mw(newFakeCore()), mw(newFakeCore())

	_, _, _, err := a.DoRequest(context.Background(), "p", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, _, err = b.DoRequest(ctx, "p", nil)
	assert.Error(t, err)
}
