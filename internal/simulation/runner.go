package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/resonet/internal/lattice"
	"github.com/nvandessel/resonet/internal/logging"
)

// Runner orchestrates simulation runs against real lattices.
type Runner struct {
	logger      *slog.Logger
	events      *logging.EventLogger
	runID       string
	observers   []lattice.Observer
	latticeOpts []lattice.Option
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the operational logger. It is also handed to every lattice.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithEventLogger sets the JSONL event sink. A nil EventLogger disables it.
func WithEventLogger(el *logging.EventLogger) RunnerOption {
	return func(r *Runner) { r.events = el }
}

// WithRunID fixes the run id instead of generating one per run.
func WithRunID(id string) RunnerOption {
	return func(r *Runner) { r.runID = id }
}

// WithObserver registers a step observer on every lattice the runner builds.
func WithObserver(obs lattice.Observer) RunnerOption {
	return func(r *Runner) { r.observers = append(r.observers, obs) }
}

// WithLatticeOptions appends lattice options after the scenario's own, so
// they take precedence.
func WithLatticeOptions(opts ...lattice.Option) RunnerOption {
	return func(r *Runner) { r.latticeOpts = append(r.latticeOpts, opts...) }
}

// NewRunner creates a simulation runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	return r
}

// Run builds the scenario's lattice and steps it to completion.
//
// If the context is cancelled between steps, Run returns the partial result
// collected so far together with the context error.
func (r *Runner) Run(ctx context.Context, s Scenario) (*Result, error) {
	if s.Steps <= 0 {
		return nil, fmt.Errorf("scenario %s: steps must be positive, got %d", s.Name, s.Steps)
	}

	// Phase 1: Build the lattice.
	var last lattice.StepStats
	l, err := lattice.New(s.Size, s.Seed, r.latticeOptions(s, &last)...)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	trace := dedupe(s.Trace)
	for _, idx := range trace {
		if _, err := l.Node(idx); err != nil {
			return nil, fmt.Errorf("scenario %s: trace: %w", s.Name, err)
		}
	}
	if s.Setup != nil {
		if err := s.Setup(l); err != nil {
			return nil, fmt.Errorf("scenario %s: setup: %w", s.Name, err)
		}
	}

	runID := r.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	result := &Result{
		RunID:    runID,
		Scenario: s.Name,
		Size:     s.Size,
		Seed:     s.Seed,
		Steps:    make([]StepSummary, 0, s.Steps),
	}
	if len(trace) > 0 {
		result.Traces = make(map[int][]TracePoint, len(trace))
		for _, idx := range trace {
			result.Traces[idx] = make([]TracePoint, 0, s.Steps)
		}
	}

	r.logger.Info("scenario started",
		"scenario", s.Name, "run_id", runID, "size", s.Size, "seed", s.Seed, "steps", s.Steps)
	r.events.Log(map[string]any{
		"event": "run_started", "scenario": s.Name, "size": s.Size, "seed": s.Seed,
		"steps": s.Steps, "coupling": l.Coupling().String(),
	})

	// Phase 2: Step.
	start := time.Now()
	var runErr error
	for step := 0; step < s.Steps; step++ {
		learning := true
		if s.Learning != nil {
			learning = s.Learning(step)
		}
		var inputs map[int]lattice.Signal
		if s.Drive != nil {
			inputs = s.Drive(step, s.Size)
		}

		res, err := l.Step(ctx, inputs, learning)
		if err != nil {
			runErr = fmt.Errorf("scenario %s: step %d: %w", s.Name, step, err)
			break
		}

		result.Steps = append(result.Steps, StepSummary{
			Step:          step,
			Learning:      learning,
			Driven:        last.Driven,
			Rebirths:      last.Rebirths,
			MeanAmplitude: last.MeanAmplitude,
			MeanFatigue:   last.MeanFatigue,
			MeanForce:     last.MeanForce,
		})
		for _, idx := range trace {
			nr := res[idx]
			result.Traces[idx] = append(result.Traces[idx], TracePoint{
				Step:      step,
				Frequency: nr.Frequency,
				Amplitude: nr.Amplitude,
				Fatigue:   nr.Fatigue,
				Force:     nr.Force,
				Reborn:    nr.Reborn,
			})
			if nr.Reborn {
				r.events.Log(map[string]any{
					"event": "rebirth", "scenario": s.Name, "step": step, "node": idx,
					"frequency": nr.Frequency,
				})
			}
		}
	}
	result.Duration = time.Since(start)

	// Phase 3: Capture final state.
	result.Frequencies = append([]float64(nil), l.Frequencies()...)
	result.Amplitudes = append([]float64(nil), l.Amplitudes()...)
	result.Fatigue = append([]float64(nil), l.Fatigue()...)

	if runErr != nil {
		r.logger.Warn("scenario interrupted",
			"scenario", s.Name, "run_id", runID, "completed", len(result.Steps), "error", runErr)
		r.events.Log(map[string]any{
			"event": "run_interrupted", "scenario": s.Name, "completed": len(result.Steps),
			"error": runErr.Error(),
		})
		return result, runErr
	}

	r.logger.Info("scenario completed",
		"scenario", s.Name, "run_id", runID, "rebirths", result.TotalRebirths(),
		"duration", result.Duration)
	r.events.Log(map[string]any{
		"event": "run_completed", "scenario": s.Name, "rebirths": result.TotalRebirths(),
		"mean_amplitude": result.Last().MeanAmplitude, "duration_ms": result.Duration.Milliseconds(),
	})
	return result, nil
}

// latticeOptions assembles the scenario's lattice options, the runner's
// observers and a recorder for the most recent step statistics.
func (r *Runner) latticeOptions(s Scenario, last *lattice.StepStats) []lattice.Option {
	opts := []lattice.Option{
		lattice.WithCoupling(s.Coupling),
		lattice.WithWorkers(s.Workers),
		lattice.WithLogger(r.logger),
		lattice.WithObserver(lattice.ObserverFunc(func(st lattice.StepStats) { *last = st })),
	}
	if s.Params != nil {
		opts = append(opts, lattice.WithParams(*s.Params))
	}
	if s.Aging != nil {
		opts = append(opts, lattice.WithAging(*s.Aging))
	}
	for _, obs := range r.observers {
		opts = append(opts, lattice.WithObserver(obs))
	}
	return append(opts, r.latticeOpts...)
}

func dedupe(indices []int) []int {
	seen := make(map[int]bool, len(indices))
	out := make([]int, 0, len(indices))
	for _, idx := range indices {
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	return out
}

// FormatSummary returns a one-line human-readable summary of a step.
func FormatSummary(s StepSummary) string {
	mode := "learn"
	if !s.Learning {
		mode = "infer"
	}
	return fmt.Sprintf("step %5d %s driven=%-4d rebirths=%-4d amp=%8.3f fatigue=%8.3f |force|=%8.4f",
		s.Step, mode, s.Driven, s.Rebirths, s.MeanAmplitude, s.MeanFatigue, s.MeanForce)
}

// FormatTrace returns a debug string for one traced node.
func FormatTrace(idx int, points []TracePoint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "node %d: %d points\n", idx, len(points))
	for _, p := range points {
		fmt.Fprintf(&b, "  step %d: f=%.4f a=%.4f fatigue=%.4f force=%.4f reborn=%t\n",
			p.Step, p.Frequency, p.Amplitude, p.Fatigue, p.Force, p.Reborn)
	}
	return b.String()
}
