package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-ternary/internal/domain"
)

func newScoreCmd(a *app) *cobra.Command {
	var weights []float64
	cmd := &cobra.Command{
		Use:   "score [values...]",
		Short: "Aggregate values into a scalar in [-1, 1]",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scalar := domain.Score(parseValues(args), weights)
			a.logger.Debug().Int("inputs", len(args)).Float64("scalar", scalar).Msg("scored")
			_, err := fmt.Fprintln(cmd.OutOrStdout(), formatScalar(scalar))
			return err
		},
	}
	cmd.Flags().Float64SliceVar(&weights, "weights", nil, "default weight per positional value")
	return cmd
}

func newDecideCmd(a *app) *cobra.Command {
	var (
		weights []float64
		scalar  bool
		flags   *thresholdFlags
	)
	cmd := &cobra.Command{
		Use:   "decide [values...]",
		Short: "Score values and discretize the result",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			th := flags.resolve()
			var d domain.Decision
			if scalar {
				if len(args) != 1 {
					return fmt.Errorf("--scalar takes exactly one value, got %d", len(args))
				}
				x, err := strconv.ParseFloat(args[0], 64)
				if err != nil {
					return fmt.Errorf("invalid scalar %q: %w", args[0], err)
				}
				d = domain.Decide(x, th)
			} else {
				d = domain.DecideInputs(parseValues(args), weights, th)
			}
			a.logger.Debug().Str("decision", d.String()).
				Float64("negative", th.Negative).
				Float64("positive", th.Positive).
				Msg("decided")
			return writeDecision(cmd.OutOrStdout(), d, a.pretty)
		},
	}
	cmd.Flags().Float64SliceVar(&weights, "weights", nil, "default weight per positional value")
	cmd.Flags().BoolVar(&scalar, "scalar", false, "treat the single value as an already aggregated scalar")
	flags = bindThresholds(cmd.Flags())
	return cmd
}

func newFlagCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "flag <decision|scalar>",
		Short: "Show the presentation tag of a decision or scalar",
		Long: `flag maps a decision name (negative, neutral, positive, reject, tend,
affirm or -1, 0, 1) to its tag. Any other number is a scalar and uses
the fixed display cut points: below -0.5 rejects, above 0.5 affirms.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, err := tagFor(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.pretty {
				_, err := fmt.Fprintln(out, badge(out, tag))
				return err
			}
			return writeJSON(out, tag, false)
		},
	}
}

// tagFor prefers the decision reading of arg, so "1" and "-1" name
// decisions rather than scalars.
func tagFor(arg string) (domain.PresentationTag, error) {
	if d, err := domain.ParseDecision(arg); err == nil {
		return domain.Flag(d), nil
	}
	x, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return domain.PresentationTag{}, fmt.Errorf("%q is neither a decision nor a number", arg)
	}
	return domain.FlagScalar(x), nil
}

func newExplainCmd(a *app) *cobra.Command {
	var (
		weights []float64
		flags   *thresholdFlags
	)
	cmd := &cobra.Command{
		Use:   "explain [values...]",
		Short: "Print the full rationale of a decision as JSON",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Explain(parseValues(args), weights, flags.overrides())
			out := cmd.OutOrStdout()
			if a.pretty {
				if _, err := fmt.Fprintln(out, badge(out, r.Tag), r.Decision, formatScalar(r.Scalar)); err != nil {
					return err
				}
			}
			return writeJSON(out, r, true)
		},
	}
	cmd.Flags().Float64SliceVar(&weights, "weights", nil, "default weight per positional value")
	flags = bindThresholds(cmd.Flags())
	return cmd
}
