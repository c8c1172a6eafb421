package units

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-ternary/internal/domain"
	"github.com/ahrav/go-ternary/internal/ports"
)

var _ ports.Unit = (*LabelVoteUnit)(nil)

// MaxLabelLength bounds the text compared per vote.
const MaxLabelLength = 256

// LabelVoteConfig configures textual vote matching.
type LabelVoteConfig struct {
	// Threshold is the minimum similarity in [0, 1] for a label to match.
	Threshold float64 `yaml:"threshold" json:"threshold" validate:"min=0.0,max=1.0"`

	CaseSensitive bool `yaml:"case_sensitive" json:"case_sensitive"`

	// Labels maps a decision name ("negative", "neutral", "positive") to
	// its synonyms. Configured synonyms extend the built-in ones.
	Labels map[string][]string `yaml:"labels,omitempty" json:"labels,omitempty" validate:"dive,keys,oneof=negative neutral positive,endkeys,dive,min=1,max=64"`
}

// DefaultLabelVoteConfig returns threshold 0.75, case-insensitive.
func DefaultLabelVoteConfig() LabelVoteConfig {
	return LabelVoteConfig{Threshold: 0.75}
}

var builtinLabels = map[domain.Decision][]string{
	domain.Negative: {"reject", "no", "deny", "disagree", "against", "nay", "negative"},
	domain.Neutral:  {"tend", "abstain", "hold", "unsure", "maybe", "neutral", "undecided"},
	domain.Positive: {"affirm", "yes", "approve", "agree", "accept", "aye", "positive"},
}

type synonym struct {
	text     string
	decision domain.Decision
}

// LabelVoteUnit turns the textual votes in KeyVotes into inputs. Each vote
// is matched to the closest known label by Levenshtein similarity; a vote
// that matches nothing becomes a Malformed input and so carries no weight.
type LabelVoteUnit struct {
	name     string
	config   LabelVoteConfig
	synonyms []synonym
	tracer   trace.Tracer
}

// NewLabelVoteUnit creates a LabelVoteUnit.
func NewLabelVoteUnit(name string, config LabelVoteConfig) (*LabelVoteUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	u := &LabelVoteUnit{
		name:   name,
		config: config,
		tracer: otel.Tracer("label-vote-unit"),
	}
	add := func(text string, d domain.Decision) {
		u.synonyms = append(u.synonyms, synonym{text: u.prepareString(text), decision: d})
	}
	for _, d := range []domain.Decision{domain.Negative, domain.Neutral, domain.Positive} {
		for _, text := range builtinLabels[d] {
			add(text, d)
		}
	}
	names := make([]string, 0, len(config.Labels))
	for n := range config.Labels {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		d, err := domain.ParseDecision(n)
		if err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
		for _, text := range config.Labels[n] {
			add(text, d)
		}
	}
	return u, nil
}

// Name returns the unit id.
func (u *LabelVoteUnit) Name() string { return u.name }

// Execute appends one input per vote to KeyInputs.
func (u *LabelVoteUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := u.tracer.Start(ctx, "LabelVoteUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "label_vote"),
			attribute.String("unit.id", u.name),
			attribute.Float64("config.threshold", u.config.Threshold),
		),
	)
	defer span.End()

	votes, _ := domain.Get(state, domain.KeyVotes)
	inputs := make([]domain.Input, 0, len(votes))
	unmatched := 0
	for _, v := range votes {
		d, ok := u.Match(v.Label)
		if !ok {
			unmatched++
			inputs = append(inputs, domain.Malformed{Raw: v.Label})
			continue
		}
		inputs = append(inputs, domain.Weighted{Value: float64(d), Weight: v.Weight})
	}

	span.SetAttributes(
		attribute.Int("eval.votes", len(votes)),
		attribute.Int("eval.unmatched", unmatched),
	)
	return domain.AppendInputs(state, inputs...), nil
}

// Match returns the decision whose label is most similar to text, if the
// similarity reaches the threshold. Exact decision literals always match.
func (u *LabelVoteUnit) Match(text string) (domain.Decision, bool) {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > MaxLabelLength {
		return domain.Neutral, false
	}
	if d, err := domain.ParseDecision(text); err == nil {
		return d, true
	}

	prepared := u.prepareString(text)
	best, bestSim := domain.Neutral, -1.0
	for _, s := range u.synonyms {
		if sim := similarity(prepared, s.text); sim > bestSim {
			best, bestSim = s.decision, sim
		}
	}
	return best, bestSim >= u.config.Threshold
}

func (u *LabelVoteUnit) prepareString(s string) string {
	s = strings.TrimSpace(s)
	if !u.config.CaseSensitive {
		// Casers carry state, so each call gets its own.
		s = cases.Fold().String(s)
	}
	return s
}

// similarity is 1 - distance/maxRunes, floored at 0.
func similarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}
	distance := levenshtein.ComputeDistance(s1, s2)
	maxLen := max(utf8.RuneCountInString(s1), utf8.RuneCountInString(s2))
	if maxLen == 0 {
		return 1.0
	}
	return max(0, 1.0-float64(distance)/float64(maxLen))
}

// Validate checks the configuration.
func (u *LabelVoteUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("unit %s: configuration validation failed: %w", u.name, err)
	}
	return nil
}

// CreateLabelVoteUnit builds a LabelVoteUnit from profile parameters.
func CreateLabelVoteUnit(id string, params map[string]any) (*LabelVoteUnit, error) {
	config := DefaultLabelVoteConfig()
	if err := decodeParams(withoutDeps(params), &config); err != nil {
		return nil, err
	}
	return NewLabelVoteUnit(id, config)
}
