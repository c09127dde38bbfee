package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/resonet/internal/config"
	"github.com/nvandessel/resonet/internal/lattice"
	"github.com/nvandessel/resonet/internal/logging"
	"github.com/nvandessel/resonet/internal/metrics"
	"github.com/nvandessel/resonet/internal/simulation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const defaultScenario = "tunneling"

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [scenario]",
		Short: "Run a built-in scenario",
		Long: `Run a built-in scenario and print a summary every --every steps.

Lattice, node and aging settings come from the configuration; flags override
them for this run. Use 'resonet scenarios' to list the available scenarios.

Examples:
  resonet run                            # tunneling on the configured lattice
  resonet run territory --size 6         # territory on a 6x6x6 lattice
  resonet run lifecycle --trace          # print the traced node every step
  resonet run memory --metrics-addr :9464`,
		Args: cobra.MaximumNArgs(1),
		RunE: runScenario,
	}

	cmd.Flags().Int("size", 0, "Lattice edge length (overrides config)")
	cmd.Flags().Int64("seed", 0, "Random seed (overrides config)")
	cmd.Flags().Int("steps", 0, "Number of steps (overrides the scenario)")
	cmd.Flags().Int("workers", 0, "Goroutines per step (overrides config)")
	cmd.Flags().String("coupling", "", "Coupling rule: resonant or attenuated (overrides config)")
	cmd.Flags().Bool("aging", false, "Enable the lifecycle aging schedule")
	cmd.Flags().Int("every", 50, "Print a summary every N steps")
	cmd.Flags().Bool("trace", false, "Print traced node states")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while running")

	return cmd
}

func runScenario(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	name := defaultScenario
	if len(args) == 1 {
		name = args[0]
	}
	scenario, err := buildScenario(cmd, cfg, name)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	runID := uuid.NewString()
	events := logging.NewEventLogger(cfg.Logging.Dir, cfg.Logging.Level, runID)
	defer events.Close()

	runnerOpts := []simulation.RunnerOption{
		simulation.WithLogger(logger),
		simulation.WithEventLogger(events),
		simulation.WithRunID(runID),
		simulation.WithLatticeOptions(lattice.WithAttenuation(cfg.Lattice.Attenuation)),
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle SIGINT/SIGTERM: finish the current step, then stop.
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		rec := metrics.New(reg, cfg.Metrics.Namespace)
		runnerOpts = append(runnerOpts, simulation.WithObserver(rec))

		stop, err := serveMetrics(ctx, cfg.Metrics.Addr, reg, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	result, runErr := simulation.NewRunner(runnerOpts...).Run(ctx, scenario)
	if result == nil {
		return runErr
	}

	every, _ := cmd.Flags().GetInt("every")
	showTrace, _ := cmd.Flags().GetBool("trace")
	if jsonOut {
		if err := writeJSONResult(cmd.OutOrStdout(), result, every, showTrace); err != nil {
			return err
		}
	} else {
		writeTextResult(cmd.OutOrStdout(), scenario, result, every, showTrace)
	}

	if errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("interrupted after %d of %d steps", len(result.Steps), scenario.Steps)
	}
	return runErr
}

// applyRunFlags copies explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("size") {
		cfg.Lattice.Size, _ = flags.GetInt("size")
	}
	if flags.Changed("seed") {
		cfg.Lattice.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("workers") {
		cfg.Lattice.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("coupling") {
		cfg.Lattice.Coupling, _ = flags.GetString("coupling")
	}
	if flags.Changed("aging") {
		cfg.Aging.Enabled, _ = flags.GetBool("aging")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = flags.GetString("metrics-addr")
	}
	if every, _ := flags.GetInt("every"); every <= 0 {
		return fmt.Errorf("--every must be positive, got %d", every)
	}
	return nil
}

// buildScenario resolves a preset and applies the configuration to it.
func buildScenario(cmd *cobra.Command, cfg *config.Config, name string) (simulation.Scenario, error) {
	scenario, err := simulation.Preset(name, cfg.Lattice.Size)
	if err != nil {
		return simulation.Scenario{}, err
	}

	coupling, err := lattice.ParseCoupling(cfg.Lattice.Coupling)
	if err != nil {
		return simulation.Scenario{}, err
	}
	params := cfg.NodeParams()

	scenario.Seed = cfg.Lattice.Seed
	scenario.Workers = cfg.Lattice.Workers
	scenario.Coupling = coupling
	scenario.Params = &params
	if cfg.Aging.Enabled {
		aging := cfg.Aging
		scenario.Aging = &aging
	}
	if cmd.Flags().Changed("steps") {
		scenario.Steps, _ = cmd.Flags().GetInt("steps")
	}
	return scenario, nil
}

// serveMetrics starts a /metrics endpoint and returns a function that shuts
// it down.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}

// sampled returns the summaries printed at the given interval, always
// including the final step.
func sampled(steps []simulation.StepSummary, every int) []simulation.StepSummary {
	out := make([]simulation.StepSummary, 0, len(steps)/every+1)
	for i, s := range steps {
		if (i+1)%every == 0 || i == len(steps)-1 {
			out = append(out, s)
		}
	}
	return out
}

func writeJSONResult(w io.Writer, result *simulation.Result, every int, showTrace bool) error {
	out := *result
	out.Steps = sampled(result.Steps, every)
	if !showTrace {
		out.Traces = nil
	}
	return json.NewEncoder(w).Encode(map[string]interface{}{
		"result":         out,
		"total_steps":    len(result.Steps),
		"total_rebirths": result.TotalRebirths(),
	})
}

func writeTextResult(w io.Writer, s simulation.Scenario, result *simulation.Result, every int, showTrace bool) {
	fmt.Fprintf(w, "Scenario %s (size %d, seed %d, %d steps, run %s)\n",
		s.Name, s.Size, s.Seed, s.Steps, result.RunID)
	fmt.Fprintf(w, "  %s\n\n", s.Description)
	for _, sum := range sampled(result.Steps, every) {
		fmt.Fprintln(w, simulation.FormatSummary(sum))
	}
	fmt.Fprintf(w, "\nCompleted %d steps in %s, %d rebirths\n",
		len(result.Steps), result.Duration.Round(time.Millisecond), result.TotalRebirths())

	if showTrace {
		for _, idx := range s.Trace {
			if points, ok := result.Traces[idx]; ok {
				fmt.Fprintln(w)
				fmt.Fprint(w, simulation.FormatTrace(idx, points))
			}
		}
	}
}
