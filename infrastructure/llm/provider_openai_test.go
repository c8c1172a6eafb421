package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAIServer(t *testing.T, handler http.HandlerFunc) CoreLLM {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := newOpenAIProvider(ClientConfig{
		APIKey:  "test-api-key",
		Model:   "gpt-4o",
		BaseURL: server.URL + "/v1",
	})
	require.NoError(t, err)
	return provider
}

func chatCompletion(content string, promptTokens, completionTokens int) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1677652288,
		"model":   "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	}
}

func TestNewOpenAIProvider(t *testing.T) {
	_, err := newOpenAIProvider(ClientConfig{})
	assert.ErrorIs(t, err, ErrEmptyAPIKey)

	p, err := newOpenAIProvider(ClientConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, OpenAIDefaultModel, p.GetModel())
}

func TestOpenAIProvider_DoRequest(t *testing.T) {
	tests := []struct {
		name       string
		opts       map[string]any
		wantSystem bool
		check      func(t *testing.T, body map[string]any)
	}{
		{
			name: "basic",
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "gpt-4o", body["model"])
				assert.Equal(t, float64(DefaultMaxTokens), body["max_tokens"])
			},
		},
		{
			name:       "system prompt and sampling",
			opts:       map[string]any{"system": "vote only", "temperature": 0.25, "max_tokens": 32, "seed": 9},
			wantSystem: true,
			check: func(t *testing.T, body map[string]any) {
				assert.InDelta(t, 0.25, body["temperature"], 1e-6)
				assert.Equal(t, float64(32), body["max_tokens"])
				assert.Equal(t, float64(9), body["seed"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/v1/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				messages := body["messages"].([]any)
				if tt.wantSystem {
					require.Len(t, messages, 2)
					assert.Equal(t, "system", messages[0].(map[string]any)["role"])
				} else {
					require.Len(t, messages, 1)
				}
				assert.Equal(t, "user", messages[len(messages)-1].(map[string]any)["role"])
				tt.check(t, body)

				writeJSON(w, http.StatusOK, chatCompletion(`{"vote": -1}`, 11, 4))
			})

			resp, in, out, err := provider.DoRequest(context.Background(), "Ship it?", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, `{"vote": -1}`, resp)
			assert.Equal(t, 11, in)
			assert.Equal(t, 4, out)
		})
	}
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	provider := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		body := chatCompletion("", 1, 1)
		body["choices"] = []any{}
		writeJSON(w, http.StatusOK, body)
	})

	_, _, _, err := provider.DoRequest(context.Background(), "p", nil)
	assert.ErrorIs(t, err, ErrNoResponseChoice)
}

func TestOpenAIProvider_ErrorHandling(t *testing.T) {
	tests := []struct {
		status   int
		message  string
		wantType ErrorType
		contains string
	}{
		{401, "Invalid API key provided", ErrorTypeAuthentication, "authentication failed"},
		{429, "Rate limit exceeded", ErrorTypeRateLimit, "rate limit exceeded"},
		{500, "Internal server error", ErrorTypeServerError, "server error"},
		{404, "The model does not exist", ErrorTypeNotFound, "does not exist"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			provider := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]any{
					"error": map[string]string{"message": tt.message, "type": "invalid_request_error"},
				})
			})

			_, _, _, err := provider.DoRequest(context.Background(), "p", nil)
			require.Error(t, err)

			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantType, pe.Type)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestOpenAIProvider_TokenFallback(t *testing.T) {
	provider := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, chatCompletion("abcdefgh", 0, 0))
	})

	_, in, out, err := provider.DoRequest(context.Background(), "abcd", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, in)
	assert.Equal(t, 2, out)
}

func TestOpenAIProvider_ContextCanceled(t *testing.T) {
	provider := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the server")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, _, err := provider.DoRequest(ctx, "p", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
