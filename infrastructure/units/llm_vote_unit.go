package units

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"text/template"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-ternary/internal/domain"
	"github.com/ahrav/go-ternary/internal/ports"
)

var _ ports.Unit = (*LLMVoteUnit)(nil)

// Defaults for LLM voting.
const (
	DefaultVoteSamples        = 3
	DefaultVoteMaxConcurrency = 4
	DefaultVoteMaxTokens      = 256
)

const voteFormat = "\n\nRespond with JSON only, in exactly this format:\n" +
	`{"vote": <number from -1 to 1>, "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}`

// LLMVoteConfig configures an LLM voter.
type LLMVoteConfig struct {
	// Prompt is a text/template rendered with .Subject, .Stream and
	// .Sample (1-based).
	Prompt string `yaml:"prompt" json:"prompt" validate:"required,min=10"`

	// Samples is the number of independent answers requested.
	Samples int `yaml:"samples" json:"samples" validate:"min=1,max=20"`

	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" validate:"min=1,max=20"`

	Temperature float64 `yaml:"temperature" json:"temperature" validate:"min=0.0,max=1.0"`

	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"min=16,max=2000"`

	// Strict fails the step on an unparsable answer instead of recording a
	// malformed input.
	Strict bool `yaml:"strict" json:"strict"`
}

// DefaultLLMVoteConfig returns a neutral yes/no prompt with three samples.
func DefaultLLMVoteConfig() LLMVoteConfig {
	return LLMVoteConfig{
		Prompt:         "Should the following be accepted? Vote -1 to reject, 0 if unsure, 1 to accept.\n\n{{.Subject}}",
		Samples:        DefaultVoteSamples,
		MaxConcurrency: DefaultVoteMaxConcurrency,
		MaxTokens:      DefaultVoteMaxTokens,
	}
}

// LLMVoteResponse is the answer expected from the model.
type LLMVoteResponse struct {
	Vote       *float64 `json:"vote" validate:"required"`
	Confidence *float64 `json:"confidence" validate:"required"`
	Reasoning  string   `json:"reasoning"`
}

// LLMVoteUnit asks an LLM to vote on KeySubject several times and appends
// each answer as a Weighted input whose weight is the stated confidence.
type LLMVoteUnit struct {
	name      string
	config    LLMVoteConfig
	llmClient ports.LLMClient
	prompt    *template.Template
	tracer    trace.Tracer
}

// NewLLMVoteUnit creates an LLMVoteUnit.
func NewLLMVoteUnit(name string, client ports.LLMClient, config LLMVoteConfig) (*LLMVoteUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if client == nil {
		return nil, ErrNilLLMClient
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	tmpl, err := template.New("votePrompt").Funcs(GetTemplateFuncMap()).Parse(config.Prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse vote prompt template: %w", err)
	}
	return &LLMVoteUnit{
		name:      name,
		config:    config,
		llmClient: client,
		prompt:    tmpl,
		tracer:    otel.Tracer("llm-vote-unit"),
	}, nil
}

// Name returns the unit id.
func (u *LLMVoteUnit) Name() string { return u.name }

// Execute collects the samples concurrently and appends them to KeyInputs
// in sample order.
func (u *LLMVoteUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	ctx, span := u.tracer.Start(ctx, "LLMVoteUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "llm_vote"),
			attribute.String("unit.id", u.name),
			attribute.String("llm.model", u.llmClient.GetModel()),
			attribute.Int("config.samples", u.config.Samples),
		),
	)
	defer span.End()

	subject, ok := domain.Get(state, domain.KeySubject)
	if !ok || strings.TrimSpace(subject) == "" {
		err := fmt.Errorf("unit %s: %w", u.name, ErrMissingSubject)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return state, err
	}
	stream, _ := domain.Get(state, domain.KeyStreamID)

	results := make([]domain.Input, u.config.Samples)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.config.MaxConcurrency)

	for i := range u.config.Samples {
		g.Go(func() error {
			var buf bytes.Buffer
			data := struct {
				Subject string
				Stream  string
				Sample  int
			}{Subject: subject, Stream: stream, Sample: i + 1}
			if err := u.prompt.Execute(&buf, data); err != nil {
				return fmt.Errorf("unit %s: failed to render prompt for sample %d: %w", u.name, i+1, err)
			}

			response, err := u.llmClient.Complete(gctx, buf.String()+voteFormat, map[string]any{
				"temperature": u.config.Temperature,
				"max_tokens":  u.config.MaxTokens,
			})
			if err != nil {
				return fmt.Errorf("unit %s: LLM call failed for sample %d: %w", u.name, i+1, err)
			}

			in, err := parseVote(response)
			if err != nil {
				if u.config.Strict {
					return fmt.Errorf("unit %s: sample %d: %w", u.name, i+1, err)
				}
				in = domain.Malformed{Raw: response}
			}
			results[i] = in
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return state, err
	}

	malformed := 0
	for _, in := range results {
		if _, ok := in.(domain.Malformed); ok {
			malformed++
		}
	}
	span.SetAttributes(attribute.Int("eval.malformed", malformed))
	span.SetStatus(codes.Ok, "")

	return domain.AppendInputs(state, results...), nil
}

// parseVote extracts the JSON vote from a model answer.
func parseVote(response string) (domain.Input, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("%w: no JSON object found (response length: %d chars)", ErrUnparsableVote, len(response))
	}

	var vote LLMVoteResponse
	if err := json.Unmarshal([]byte(jsonStr), &vote); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnparsableVote, err)
	}
	if err := validate.Struct(vote); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnparsableVote, err)
	}
	if math.IsNaN(*vote.Vote) || *vote.Vote < -1 || *vote.Vote > 1 {
		return nil, fmt.Errorf("%w: vote %v outside [-1, 1]", ErrUnparsableVote, *vote.Vote)
	}
	confidence := math.Min(math.Max(*vote.Confidence, 0), 1)
	return domain.Weighted{Value: *vote.Vote, Weight: &confidence}, nil
}

// extractJSON returns the first JSON object in response, looking inside
// markdown code fences first.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```"); start != -1 {
		body := response[start+3:]
		if nl := strings.Index(body, "\n"); nl != -1 {
			body = body[nl+1:]
		}
		if end := strings.Index(body, "```"); end != -1 {
			if candidate := strings.TrimSpace(body[:end]); strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escapeNext := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if escapeNext {
			escapeNext = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escapeNext = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return ""
}

// Validate checks the configuration and the client.
func (u *LLMVoteUnit) Validate() error {
	if u.llmClient == nil {
		return fmt.Errorf("unit %s: %w", u.name, ErrNilLLMClient)
	}
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("unit %s: configuration validation failed: %w", u.name, err)
	}
	if u.llmClient.GetModel() == "" {
		return fmt.Errorf("unit %s: LLM client model is not configured", u.name)
	}
	return nil
}

// CreateLLMVoteUnit builds an LLMVoteUnit from profile parameters. The
// client is injected under ParamLLMClient.
func CreateLLMVoteUnit(id string, params map[string]any) (*LLMVoteUnit, error) {
	client, ok := params[ParamLLMClient].(ports.LLMClient)
	if !ok || client == nil {
		return nil, fmt.Errorf("%s is required and must implement ports.LLMClient: %w", ParamLLMClient, ErrNilLLMClient)
	}

	config := DefaultLLMVoteConfig()
	if err := decodeParams(withoutDeps(params), &config); err != nil {
		return nil, err
	}
	return NewLLMVoteUnit(id, client, config)
}
