package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/go-ternary/internal/ports"
)

func TestErrorClassifier_ClassifyHTTPError(t *testing.T) {
	ec := &ErrorClassifier{Provider: "openai"}
	tests := []struct {
		status    int
		wantType  ErrorType
		retryable bool
	}{
		{401, ErrorTypeAuthentication, false},
		{403, ErrorTypeAuthentication, false},
		{429, ErrorTypeRateLimit, true},
		{400, ErrorTypeBadRequest, false},
		{422, ErrorTypeBadRequest, false},
		{404, ErrorTypeNotFound, false},
		{408, ErrorTypeTimeout, true},
		{500, ErrorTypeServerError, true},
		{503, ErrorTypeServerError, true},
		{504, ErrorTypeTimeout, true},
		{0, ErrorTypeUnknown, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			pe := ec.ClassifyHTTPError(tt.status, "msg", nil)
			assert.Equal(t, tt.wantType, pe.Type)
			assert.Equal(t, tt.retryable, pe.IsRetryable())
			assert.Equal(t, "openai", pe.Provider)
		})
	}
}

func TestProviderError_Error(t *testing.T) {
	wrapped := errors.New("boom")
	pe := NewProviderError("anthropic", ErrorTypeServerError, 502, "bad gateway", wrapped)
	assert.Equal(t, "anthropic error (HTTP 502) [server_error]: bad gateway: boom", pe.Error())
	assert.ErrorIs(t, pe, wrapped)

	bare := NewProviderError("google", ErrorTypeUnknown, 0, "", nil)
	assert.Equal(t, "google error", bare.Error())
}

func TestProviderError_IsPortSentinels(t *testing.T) {
	tests := []struct {
		errType ErrorType
		target  error
	}{
		{ErrorTypeRateLimit, ports.ErrRateLimited},
		{ErrorTypeAuthentication, ports.ErrAuthenticationFailed},
		{ErrorTypeServerError, ports.ErrServiceUnavailable},
		{ErrorTypeNetwork, ports.ErrServiceUnavailable},
		{ErrorTypeTimeout, ports.ErrTimeout},
	}
	for _, tt := range tests {
		err := fmt.Errorf("wrapped: %w", NewProviderError("p", tt.errType, 0, "", nil))
		assert.ErrorIs(t, err, tt.target, tt.errType.String())
	}
	assert.NotErrorIs(t, NewProviderError("p", ErrorTypeBadRequest, 400, "", nil), ports.ErrRateLimited)
}

func TestClassifyContextError(t *testing.T) {
	ec := &ErrorClassifier{Provider: "openai"}

	pe := ec.ClassifyContextError(fmt.Errorf("post: %w", context.DeadlineExceeded))
	assert.Equal(t, ErrorTypeTimeout, pe.Type)
	assert.ErrorIs(t, pe, context.DeadlineExceeded)

	pe = ec.ClassifyContextError(context.Canceled)
	assert.Equal(t, ErrorTypeNetwork, pe.Type)
	assert.Equal(t, "request canceled", pe.Message)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(errors.New("connection reset")))
	assert.True(t, isRetryable(NewProviderError("p", ErrorTypeRateLimit, 429, "", nil)))
	assert.False(t, isRetryable(NewProviderError("p", ErrorTypeAuthentication, 401, "", nil)))
	assert.False(t, isRetryable(ErrCircuitOpen))
	assert.False(t, isRetryable(fmt.Errorf("x: %w", context.Canceled)))
	assert.False(t, isRetryable(&BudgetExceededError{Limit: "calls", Max: 1, Used: 1}))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		header http.Header
		want   time.Duration
	}{
		{"missing", http.Header{}, 0},
		{"nil", nil, 0},
		{"seconds", http.Header{"Retry-After": []string{"3"}}, 3 * time.Second},
		{"fractional seconds", http.Header{"Retry-After": []string{"0.5"}}, 500 * time.Millisecond},
		{"milliseconds win", http.Header{"Retry-After": []string{"3"}, "Retry-After-Ms": []string{"250"}}, 250 * time.Millisecond},
		{"http date", http.Header{"Retry-After": []string{now.Add(90 * time.Second).Format(http.TimeFormat)}}, 90 * time.Second},
		{"date in the past", http.Header{"Retry-After": []string{now.Add(-time.Minute).Format(http.TimeFormat)}}, 0},
		{"negative", http.Header{"Retry-After": []string{"-4"}}, 0},
		{"garbage", http.Header{"Retry-After": []string{"soon"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRetryAfter(tt.header, now))
		})
	}
}

func TestProviderError_WithRetryAfter(t *testing.T) {
	ec := &ErrorClassifier{Provider: "anthropic"}
	h := http.Header{"Retry-After": []string{"4"}}

	rate := ec.ClassifyHTTPError(http.StatusTooManyRequests, "", nil).WithRetryAfter(h)
	assert.Equal(t, 4*time.Second, rate.RetryAfter)
	assert.Equal(t, 4*time.Second, retryAfter(fmt.Errorf("wrapped: %w", rate)))

	server := ec.ClassifyHTTPError(http.StatusInternalServerError, "", nil).WithRetryAfter(h)
	assert.Zero(t, server.RetryAfter)
	assert.Zero(t, retryAfter(errors.New("plain")))
}

func TestEmptyResponseIsInvalidResponse(t *testing.T) {
	pe := NewProviderError("openai", ErrorTypeUnknown, 0, "", ErrEmptyResponse)
	assert.ErrorIs(t, pe, ports.ErrInvalidResponse)
	assert.ErrorIs(t, pe, ErrEmptyResponse)
	assert.ErrorIs(t, ErrNoResponseChoice, ports.ErrInvalidResponse)
	assert.False(t, pe.IsRetryable())
}
