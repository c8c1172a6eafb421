package main

import (
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/ahrav/go-ternary/internal/domain"
)

const (
	flagNegativeThreshold = "negative-threshold"
	flagPositiveThreshold = "positive-threshold"
)

// parseValue reads "x" as a Number and "x:w" as a Weighted input. Any
// other text is Malformed.
func parseValue(arg string) domain.Input {
	raw := strings.TrimSpace(arg)
	if v, w, ok := strings.Cut(raw, ":"); ok {
		value, verr := strconv.ParseFloat(v, 64)
		weight, werr := strconv.ParseFloat(w, 64)
		if verr != nil || werr != nil {
			return domain.Malformed{Raw: arg}
		}
		return domain.Weighted{Value: value, Weight: domain.W(weight)}
	}
	x, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return domain.Malformed{Raw: arg}
	}
	return domain.Number(x)
}

func parseValues(args []string) []domain.Input {
	inputs := make([]domain.Input, len(args))
	for i, arg := range args {
		inputs[i] = parseValue(arg)
	}
	return inputs
}

// thresholdFlags binds --negative-threshold and --positive-threshold. Only
// flags set on the command line override the defaults.
type thresholdFlags struct {
	negative float64
	positive float64
	fs       *pflag.FlagSet
}

func bindThresholds(fs *pflag.FlagSet) *thresholdFlags {
	t := &thresholdFlags{fs: fs}
	fs.Float64Var(&t.negative, flagNegativeThreshold, domain.DefaultNegativeThreshold,
		"scalars at or below this are NEGATIVE")
	fs.Float64Var(&t.positive, flagPositiveThreshold, domain.DefaultPositiveThreshold,
		"scalars at or above this are POSITIVE")
	return t
}

func (t *thresholdFlags) overrides() domain.ThresholdOverrides {
	var o domain.ThresholdOverrides
	if t.fs.Changed(flagNegativeThreshold) {
		o.Negative = domain.W(t.negative)
	}
	if t.fs.Changed(flagPositiveThreshold) {
		o.Positive = domain.W(t.positive)
	}
	return o
}

func (t *thresholdFlags) resolve() domain.Thresholds {
	return t.overrides().Resolve()
}

func formatScalar(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
