package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-ternary/internal/application"
	"github.com/ahrav/go-ternary/internal/domain"
)

// reduceRecord is one line of reduce output.
type reduceRecord struct {
	Stream string  `json:"stream"`
	Seq    uint64  `json:"seq"`
	Input  float64 `json:"input"`
	domain.ReducerState
}

func newReduceCmd(a *app) *cobra.Command {
	var (
		opts  = domain.DefaultReducerOptions()
		flags *thresholdFlags
	)
	cmd := &cobra.Command{
		Use:   "reduce",
		Short: "Fold a stream of observations through the hysteretic reducer",
		Long: `reduce reads one observation per line from stdin: a number, a JSON array
of values, or an object with "stream", "inputs", "weights" and "scalar".
Each stream gets its own reducer. One JSON state is written per line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			th := flags.resolve()
			opts.NegativeThreshold = th.Negative
			opts.PositiveThreshold = th.Positive
			if err := opts.Validate(); err != nil {
				return err
			}
			return a.reduce(cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().Float64Var(&opts.Alpha, "alpha", domain.DefaultAlpha, "weight of each new observation, in [0, 1]")
	cmd.Flags().Float64Var(&opts.Inertia, "inertia", domain.DefaultInertia, "how long a committed decision is held, in [0, 1]")
	flags = bindThresholds(cmd.Flags())
	return cmd
}

// reduce streams: each line is stepped and written before the next is
// read.
func (a *app) reduce(in io.Reader, out io.Writer, opts domain.ReducerOptions) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), application.MaxObservationLine)

	reducers := make(map[string]*domain.Reducer)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		var o application.Observation
		if err := json.Unmarshal(text, &o); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		r, ok := reducers[o.Stream]
		if !ok {
			r = domain.NewReducer()
			reducers[o.Stream] = r
		}

		prev := r.State()
		x := domain.Score(o.Inputs, o.Weights)
		if o.Scalar != nil {
			x = *o.Scalar
		}
		st, err := r.Step(x, opts)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if st.Decision != prev.Decision {
			a.logger.Info().
				Str("stream", o.Stream).
				Uint64("seq", r.Steps()).
				Str("from", prev.Decision.String()).
				Str("to", st.Decision.String()).
				Msg("decision transition")
		}

		rec := reduceRecord{Stream: o.Stream, Seq: r.Steps(), Input: x, ReducerState: st}
		if err := a.writeReduced(out, rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading observations: %w", err)
	}
	return nil
}

func (a *app) writeReduced(out io.Writer, rec reduceRecord) error {
	if a.pretty {
		_, err := fmt.Fprintf(out, "%s %s #%d %s\n",
			badge(out, domain.Flag(rec.Decision)), rec.Stream, rec.Seq, formatScalar(rec.Scalar))
		return err
	}
	return writeJSON(out, rec, false)
}
