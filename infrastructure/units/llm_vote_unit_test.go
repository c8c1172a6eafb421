package units

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ternary/internal/domain"
	"github.com/ahrav/go-ternary/internal/ports"
	"github.com/ahrav/go-ternary/internal/testutils"
)

func voteConfig(samples int, strict bool) LLMVoteConfig {
	cfg := DefaultLLMVoteConfig()
	cfg.Prompt = "Vote on {{.Subject}} (sample {{.Sample}})"
	cfg.Samples = samples
	cfg.Strict = strict
	return cfg
}

// TestLLMVoteUnit_Execute verifies that samples are appended in sample
// order regardless of completion order.
func TestLLMVoteUnit_Execute(t *testing.T) {
	client := testutils.NewMockLLMClient("mock-model").
		AddResponse(testutils.MockResponse{Pattern: "(sample 2)", Response: testutils.VoteReject}).
		AddResponse(testutils.MockResponse{Pattern: "(sample 3)", Response: "I would rather not say."})

	unit, err := NewLLMVoteUnit("llm", client, voteConfig(3, false))
	require.NoError(t, err)

	state := domain.With(domain.StartState("s", 1, nil), domain.KeySubject, "the release")
	out, err := unit.Execute(context.Background(), state)
	require.NoError(t, err)

	inputs, _ := domain.Get(out, domain.KeyInputs)
	require.Len(t, inputs, 3)
	assert.Equal(t, domain.Weighted{Value: 1, Weight: domain.W(0.9)}, inputs[0])
	assert.Equal(t, domain.Weighted{Value: -1, Weight: domain.W(0.8)}, inputs[1])
	assert.Equal(t, domain.Malformed{Raw: "I would rather not say."}, inputs[2])

	assert.Equal(t, 3, client.Calls())
	for _, p := range client.Prompts() {
		assert.True(t, strings.HasPrefix(p, "Vote on the release"), "Prompt should render the subject.")
		assert.Contains(t, p, `"vote"`, "Prompt should include the answer format.")
	}
}

func TestLLMVoteUnit_Errors(t *testing.T) {
	boom := errors.New("upstream down")

	tests := []struct {
		name    string
		client  *testutils.MockLLMClient
		strict  bool
		state   domain.State
		wantErr error
	}{
		{
			name:    "missing subject",
			client:  testutils.NewMockLLMClient("m"),
			state:   domain.NewState(),
			wantErr: ErrMissingSubject,
		},
		{
			name:    "blank subject",
			client:  testutils.NewMockLLMClient("m"),
			state:   domain.With(domain.NewState(), domain.KeySubject, "   "),
			wantErr: ErrMissingSubject,
		},
		{
			name:    "client error",
			client:  testutils.NewMockLLMClient("m").AddResponse(testutils.MockResponse{Pattern: "sample 1", Err: boom}),
			state:   domain.With(domain.NewState(), domain.KeySubject, "x"),
			wantErr: boom,
		},
		{
			name:    "strict rejects prose",
			client:  testutils.NewMockLLMClient("m").SetFallback("sure"),
			strict:  true,
			state:   domain.With(domain.NewState(), domain.KeySubject, "x"),
			wantErr: ErrUnparsableVote,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, err := NewLLMVoteUnit("llm", tt.client, voteConfig(2, tt.strict))
			require.NoError(t, err)

			out, err := unit.Execute(context.Background(), tt.state)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, domain.Has(out, domain.KeyInputs), "State should be returned unchanged on error.")
		})
	}
}

func TestLLMVoteUnit_ContextCancellation(t *testing.T) {
	unit, err := NewLLMVoteUnit("llm", testutils.NewMockLLMClient("m"), voteConfig(2, false))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = unit.Execute(ctx, domain.With(domain.NewState(), domain.KeySubject, "x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseVote(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     domain.Input
		wantErr  bool
	}{
		{
			name:     "plain JSON",
			response: `{"vote": 0.5, "confidence": 0.7, "reasoning": "ok"}`,
			want:     domain.Weighted{Value: 0.5, Weight: domain.W(0.7)},
		},
		{
			name:     "fenced JSON",
			response: "Here you go:\n```json\n{\"vote\": -1, \"confidence\": 1}\n```",
			want:     domain.Weighted{Value: -1, Weight: domain.W(1)},
		},
		{
			name:     "confidence clamped",
			response: `{"vote": 1, "confidence": 3}`,
			want:     domain.Weighted{Value: 1, Weight: domain.W(1)},
		},
		{name: "vote out of range", response: `{"vote": 2, "confidence": 1}`, wantErr: true},
		{name: "missing confidence", response: `{"vote": 1}`, wantErr: true},
		{name: "no JSON", response: "yes", wantErr: true},
		{name: "broken JSON", response: `{"vote": }`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVote(tt.response)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnparsableVote)
				assert.ErrorIs(t, err, ports.ErrInvalidResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{name: "bare object", response: `{"a": 1}`, want: `{"a": 1}`},
		{name: "surrounding prose", response: `Answer: {"a": {"b": 2}} done`, want: `{"a": {"b": 2}}`},
		{name: "braces inside strings", response: `{"a": "}{"}`, want: `{"a": "}{"}`},
		{name: "escaped quote", response: `{"a": "say \"hi\" }"}`, want: `{"a": "say \"hi\" }"}`},
		{name: "fence without language", response: "```\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "unterminated", response: `{"a": 1`, want: ""},
		{name: "no object", response: "nothing here", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.response))
		})
	}
}

func TestCreateLLMVoteUnit(t *testing.T) {
	client := testutils.NewMockLLMClient("mock-model")

	unit, err := CreateLLMVoteUnit("llm", map[string]any{
		ParamLLMClient: client,
		"samples":      5,
		"temperature":  0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, unit.config.Samples)
	assert.Equal(t, DefaultVoteMaxTokens, unit.config.MaxTokens)
	assert.NoError(t, unit.Validate())

	_, err = CreateLLMVoteUnit("llm", map[string]any{"samples": 5})
	assert.ErrorIs(t, err, ErrNilLLMClient)

	_, err = CreateLLMVoteUnit("llm", map[string]any{ParamLLMClient: client, "samples": 50})
	assert.Error(t, err, "Sample counts above the limit should be rejected.")

	_, err = CreateLLMVoteUnit("llm", map[string]any{ParamLLMClient: client, "prompt": "{{.Subject"})
	assert.Error(t, err, "An unparsable template should be rejected.")

	_, err = NewLLMVoteUnit("llm", nil, DefaultLLMVoteConfig())
	assert.ErrorIs(t, err, ErrNilLLMClient)
}
