package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-ternary/infrastructure/llm"
	"github.com/ahrav/go-ternary/infrastructure/middleware"
	"github.com/ahrav/go-ternary/internal/application"
	"github.com/ahrav/go-ternary/internal/domain"
	"github.com/ahrav/go-ternary/internal/ports"
)

// providerKeyEnv names the environment variable holding each provider's
// API key.
var providerKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"google":    "GOOGLE_API_KEY",
}

type runOptions struct {
	configPath  string
	metricsAddr string
	concurrency int

	llmModel     string
	llmTimeout   time.Duration
	llmRetries   int
	llmRPS       float64
	llmBurst     int
	llmMaxCalls  int64
	llmMaxTokens int64
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run --config profile.yaml",
		Short: "Run a decision profile over JSONL observations from stdin",
		Long: `run loads a YAML profile, feeds every stdin observation through the
pipeline of its stream and writes one JSON verdict per line.

llm_vote units call the model named by --llm-model or by their own model
override, as provider/model. Keys are read from ANTHROPIC_API_KEY,
OPENAI_API_KEY and GOOGLE_API_KEY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "path to the profile YAML")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	f.IntVar(&opts.concurrency, "concurrency", 0, "streams processed at once (default: number of CPUs)")
	f.StringVar(&opts.llmModel, "llm-model", "", "default model for llm_vote units, as provider/model")
	f.DurationVar(&opts.llmTimeout, "llm-timeout", 30*time.Second, "timeout of a single model request")
	f.IntVar(&opts.llmRetries, "llm-retries", 3, "retries of a failed model request")
	f.Float64Var(&opts.llmRPS, "llm-rps", 0, "model requests per second, 0 for unlimited")
	f.IntVar(&opts.llmBurst, "llm-burst", 1, "burst size for --llm-rps")
	f.Int64Var(&opts.llmMaxCalls, "llm-max-calls", 0, "stop calling models after this many requests, 0 for unlimited")
	f.Int64Var(&opts.llmMaxTokens, "llm-max-tokens", 0, "stop calling models after this many tokens, 0 for unlimited")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func (a *app) run(ctx context.Context, in io.Reader, out io.Writer, opts runOptions) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := middleware.NewPrometheusMetrics(reg)
	if err != nil {
		return err
	}

	if opts.metricsAddr != "" {
		shutdown := a.serveMetrics(opts.metricsAddr, reg)
		defer shutdown()
	}

	resolver, err := a.newResolver(opts, metrics)
	if err != nil {
		return err
	}
	deps := application.RegistryDeps{
		ClientForModel: resolver.ClientForModel,
		Observer:       middleware.NewTracingObserver(nil, metrics),
	}
	if opts.llmModel != "" {
		client, err := resolver.Client(opts.llmModel)
		if err != nil {
			return fmt.Errorf("--llm-model: %w", err)
		}
		deps.LLMClient = client
	}

	loader, err := application.NewProfileLoader(application.NewDefaultUnitRegistry(deps), metrics)
	if err != nil {
		return err
	}
	profile, err := loader.LoadFromFile(ctx, opts.configPath)
	if err != nil {
		return err
	}
	a.logger.Info().Str("profile", profile.Name()).Str("path", opts.configPath).Msg("profile loaded")

	monitor, err := application.NewMonitor(loader.Factory(profile),
		application.WithLogger(a.logger),
		application.WithConcurrency(opts.concurrency),
	)
	if err != nil {
		return err
	}

	observations, err := application.ReadObservations(in)
	if err != nil {
		return err
	}
	verdicts, procErr := monitor.Process(ctx, observations)

	written := 0
	for _, v := range verdicts {
		if v == nil {
			continue
		}
		if err := a.writeVerdict(out, v); err != nil {
			return err
		}
		written++
	}
	a.logger.Info().
		Int("observations", len(observations)).
		Int("verdicts", written).
		Int("streams", len(monitor.Streams())).
		Msg("run complete")
	return procErr
}

// newResolver builds the model resolver and its middleware chain. The
// first middleware is outermost: every logical request is traced and
// measured once, while retries each pass the budget, breaker and limiter.
func (a *app) newResolver(opts runOptions, metrics ports.MetricsCollector) (*llm.Resolver, error) {
	keys := make(map[string]string, len(providerKeyEnv))
	for provider, env := range providerKeyEnv {
		if key := a.getenv(env); key != "" {
			keys[provider] = key
		}
	}

	tracker, err := llm.NewBudgetTracker(llm.Budget{MaxCalls: opts.llmMaxCalls, MaxTokens: opts.llmMaxTokens})
	if err != nil {
		return nil, err
	}

	breaker := llm.NewCircuitBreaker(5, 30*time.Second)
	breaker.OnTransition(func(from, to llm.CircuitBreakerState) {
		a.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("llm circuit breaker")
	})

	chain := []llm.Middleware{
		llm.TracingMiddleware("ternary"),
		llm.MetricsMiddleware(metrics),
		llm.RetryMiddleware(opts.llmRetries, 500*time.Millisecond, 10*time.Second),
		llm.BudgetMiddleware(tracker),
		llm.CircuitBreakerMiddlewareWith(breaker),
	}
	if opts.llmRPS > 0 {
		chain = append(chain, llm.RateLimitMiddleware(rate.Limit(opts.llmRPS), max(opts.llmBurst, 1)))
	}
	chain = append(chain, llm.TimeoutMiddleware(opts.llmTimeout))

	return llm.NewResolver(llm.StaticKeys(keys),
		llm.WithMiddleware(chain...),
		llm.WithTimeout(opts.llmTimeout),
	), nil
}

// serveMetrics starts the metrics endpoint and returns its shutdown func.
func (a *app) serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	a.logger.Info().Str("addr", addr).Msg("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("metrics server shutdown")
		}
	}
}

func (a *app) writeVerdict(out io.Writer, v *domain.Verdict) error {
	if a.pretty {
		scalar := 0.0
		switch {
		case v.State != nil:
			scalar = v.State.Scalar
		case v.Rationale != nil:
			scalar = v.Rationale.Scalar
		}
		_, err := fmt.Fprintf(out, "%s %s #%d %s\n", badge(out, v.Tag), v.StreamID, v.Sequence, formatScalar(scalar))
		return err
	}
	return writeJSON(out, v, false)
}
