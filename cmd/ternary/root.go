package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Log output formats.
const (
	logFormatConsole = "console"
	logFormatJSON    = "json"
)

// app carries the state shared by every subcommand.
type app struct {
	getenv func(string) string
	logger zerolog.Logger

	logLevel  string
	logFormat string
	pretty    bool
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	a := &app{getenv: getenv, logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "ternary",
		Short: "Three-valued decisions from weighted signals",
		Long: `ternary turns numeric signals into NEGATIVE, NEUTRAL or POSITIVE decisions.

Values are plain numbers (0.3) or value:weight pairs (0.8:2); anything
else is treated as malformed and carries no weight. Put "--" before the
first value when it is negative, e.g. "ternary score -- -0.4 0.9".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), a.logLevel, a.logFormat)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.StringVar(&a.logFormat, "log-format", logFormatConsole, "log format: console or json")
	pf.BoolVar(&a.pretty, "pretty", false, "render decisions as colored badges")

	root.AddCommand(
		newScoreCmd(a),
		newDecideCmd(a),
		newFlagCmd(a),
		newExplainCmd(a),
		newReduceCmd(a),
		newRunCmd(a),
	)
	return root
}

// newLogger writes to w, human readable for console and one JSON object
// per line otherwise.
func newLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid --log-level %q: %w", level, err)
	}

	var out io.Writer
	switch format {
	case logFormatConsole:
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	case logFormatJSON:
		out = w
	default:
		return zerolog.Nop(), fmt.Errorf("invalid --log-format %q: want %s or %s", format, logFormatConsole, logFormatJSON)
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}
