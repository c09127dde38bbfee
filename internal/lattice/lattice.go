// Package lattice runs a cubic grid of resonant oscillators in globally
// synchronous steps. Every node reads the same snapshot of the previous
// step's amplitudes and frequencies and writes only its own state, so node
// updates within a step are independent and run across a worker pool.
package lattice

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/nvandessel/resonet/internal/logging"
	"github.com/nvandessel/resonet/internal/node"
	"golang.org/x/sync/errgroup"
)

// MaxSize bounds the edge length accepted by New.
const MaxSize = 1024

// minParallelNodes is the lattice volume below which Step runs inline.
const minParallelNodes = 512

// Signal is an external (amplitude, frequency) drive for one node.
type Signal = node.Signal

// Result is the post-step state of one node.
type Result struct {
	Frequency float64 `json:"frequency"`
	Amplitude float64 `json:"amplitude"`
	Fatigue   float64 `json:"fatigue"`
	Reborn    bool    `json:"reborn"`
	Force     float64 `json:"force"`
}

// Option configures a Lattice at construction.
type Option func(*options)

type options struct {
	params      node.Params
	coupling    Coupling
	attenuation float64
	aging       AgingConfig
	workers     int
	logger      *slog.Logger
	observers   []Observer
}

// WithParams sets the lattice-wide node parameters.
func WithParams(p node.Params) Option {
	return func(o *options) { o.params = p }
}

// WithCoupling selects the neighbor coupling rule.
func WithCoupling(c Coupling) Option {
	return func(o *options) { o.coupling = c }
}

// WithAttenuation sets the spatial attenuation for CouplingAttenuated.
func WithAttenuation(a float64) Option {
	return func(o *options) { o.attenuation = a }
}

// WithAging sets the lifecycle schedule.
func WithAging(a AgingConfig) Option {
	return func(o *options) { o.aging = a }
}

// WithWorkers sets the number of goroutines used per step. Values below 1
// select runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithLogger sets the logger for lifecycle and rebirth messages.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver registers an observer notified after every step.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// change is a pending parameter update; idx < 0 applies to every node.
type change struct {
	idx    int
	params node.Params
}

// Lattice owns size³ nodes addressed by idx = x + y·size + z·size².
// It is not safe for concurrent use.
type Lattice struct {
	size        int
	seed        int64
	nodes       []*node.Node
	params      node.Params
	coupling    Coupling
	attenuation float64
	aging       AgingConfig
	sched       schedule
	clock       int
	steps       int64
	workers     int
	logger      *slog.Logger
	observers   []Observer

	pending    []change
	pendingAge *AgingConfig
	stale      bool

	// Snapshot of the previous step, read-only while a step runs.
	prevAmp  []float64
	prevFreq []float64

	// Lazily refreshed accessor views.
	viewFreq    []float64
	viewAmp     []float64
	viewFatigue []float64
	viewsFresh  bool
}

// New builds a lattice of size³ nodes. Each node's stream is derived from
// (seed, idx), so construction is reproducible.
func New(size int, seed int64, opts ...Option) (*Lattice, error) {
	o := options{
		params:      node.DefaultParams(),
		coupling:    CouplingResonant,
		attenuation: DefaultAttenuation,
		aging:       DefaultAgingConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if size <= 0 || size > MaxSize {
		return nil, fmt.Errorf("%w: size must be in [1, %d], got %d", ErrInvalidConfig, MaxSize, size)
	}
	if err := o.params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if o.coupling != CouplingResonant && o.coupling != CouplingAttenuated {
		return nil, fmt.Errorf("%w: unknown coupling %v", ErrInvalidConfig, o.coupling)
	}
	if o.attenuation < 0 || o.attenuation > 1 || math.IsNaN(o.attenuation) {
		return nil, fmt.Errorf("%w: attenuation must be in [0, 1], got %g", ErrInvalidConfig, o.attenuation)
	}
	if err := o.aging.Validate(); err != nil {
		return nil, err
	}
	if o.workers < 1 {
		o.workers = runtime.GOMAXPROCS(0)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	n := size * size * size
	l := &Lattice{
		size:        size,
		seed:        seed,
		nodes:       make([]*node.Node, n),
		params:      o.params,
		coupling:    o.coupling,
		attenuation: o.attenuation,
		aging:       o.aging,
		sched:       buildSchedule(o.aging),
		workers:     o.workers,
		logger:      o.logger,
		observers:   o.observers,
		prevAmp:     make([]float64, n),
		prevFreq:    make([]float64, n),
		viewFreq:    make([]float64, n),
		viewAmp:     make([]float64, n),
		viewFatigue: make([]float64, n),
	}
	for i := range l.nodes {
		nd, err := node.New(i, seed, o.params)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		l.nodes[i] = nd
	}

	l.logger.Debug("lattice created",
		"size", size, "nodes", n, "seed", seed,
		"coupling", l.coupling.String(), "workers", l.workers, "aging", l.aging.Enabled)
	return l, nil
}

// Size returns the edge length.
func (l *Lattice) Size() int { return l.size }

// Len returns the number of nodes, size³.
func (l *Lattice) Len() int { return len(l.nodes) }

// Steps returns the number of completed steps since construction or Reset.
func (l *Lattice) Steps() int64 { return l.steps }

// Coupling returns the active coupling rule.
func (l *Lattice) Coupling() Coupling { return l.coupling }

// Params returns the lattice-wide parameters last applied by Finalize.
func (l *Lattice) Params() node.Params { return l.params }

// Node returns a copy of the state of node idx.
func (l *Lattice) Node(idx int) (node.State, error) {
	if err := l.checkIndex(idx); err != nil {
		return node.State{}, err
	}
	return l.nodes[idx].State(), nil
}

// SetFrequency explicitly seeds the frequency of node idx. Reset discards it.
func (l *Lattice) SetFrequency(idx int, f float64) error {
	if err := l.checkIndex(idx); err != nil {
		return err
	}
	l.nodes[idx].SetFrequency(f)
	l.viewsFresh = false
	return nil
}

// Configure validates p and records it for every node. It takes effect at
// the next Finalize; Step refuses to run until then.
func (l *Lattice) Configure(p node.Params) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	l.pending = append(l.pending, change{idx: -1, params: p})
	l.stale = true
	return nil
}

// ConfigureNode validates p and records it for node idx only.
func (l *Lattice) ConfigureNode(idx int, p node.Params) error {
	if err := l.checkIndex(idx); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	l.pending = append(l.pending, change{idx: idx, params: p})
	l.stale = true
	return nil
}

// ConfigureAging validates a and records it for the next Finalize. The
// aging clock keeps its position.
func (l *Lattice) ConfigureAging(a AgingConfig) error {
	if err := a.Validate(); err != nil {
		return err
	}
	l.pendingAge = &a
	l.stale = true
	return nil
}

// Finalize applies pending configuration in the order it was recorded and
// recomputes derived coefficients and the aging schedule.
func (l *Lattice) Finalize() error {
	for _, c := range l.pending {
		if c.idx < 0 {
			for _, nd := range l.nodes {
				if err := nd.SetParams(c.params); err != nil {
					return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
				}
			}
			l.params = c.params
			continue
		}
		if err := l.nodes[c.idx].SetParams(c.params); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if l.pendingAge != nil {
		l.aging = *l.pendingAge
		l.pendingAge = nil
	}
	l.sched = buildSchedule(l.aging)

	l.logger.Debug("lattice finalized", "changes", len(l.pending), "aging", l.aging.Enabled)
	l.pending = nil
	l.stale = false
	return nil
}

// Reset returns every node to its construction state and rewinds the step
// counter and aging clock. Applied parameters are kept.
func (l *Lattice) Reset() {
	for _, nd := range l.nodes {
		nd.Reset()
	}
	l.clock = 0
	l.steps = 0
	l.viewsFresh = false
	l.logger.Debug("lattice reset", "nodes", len(l.nodes))
}

// Step advances the lattice by one synchronous step. inputs maps node
// indices to external drives that replace neighbor synthesis for that node.
// The context is consulted before the step starts; a started step always
// completes.
func (l *Lattice) Step(ctx context.Context, inputs map[int]Signal, learning bool) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.stale {
		return nil, ErrNotFinalized
	}
	for idx := range inputs {
		if err := l.checkIndex(idx); err != nil {
			return nil, fmt.Errorf("step input: %w", err)
		}
	}

	start := time.Now()
	mod := l.advanceClock(learning)

	for i, nd := range l.nodes {
		l.prevAmp[i] = nd.Amplitude()
		l.prevFreq[i] = nd.Frequency()
	}

	results := make([]Result, len(l.nodes))
	if err := l.parallel(func(lo, hi int) {
		nbrs := make([]int, 0, 6)
		sigs := make([]node.Signal, 0, 6)
		for i := lo; i < hi; i++ {
			nd := l.nodes[i]
			nd.Modulate(mod)
			in, driven := inputs[i]
			if !driven {
				nbrs = l.Neighbors(i, nbrs[:0])
			}
			aSyn, fSyn := l.drive(i, nd, in, driven, nbrs, sigs[:0])
			reborn, force := nd.Resonate(aSyn, fSyn, learning)
			s := nd.State()
			results[i] = Result{
				Frequency: s.Frequency,
				Amplitude: s.Amplitude,
				Fatigue:   s.Fatigue,
				Reborn:    reborn,
				Force:     force,
			}
		}
	}); err != nil {
		return nil, err
	}

	l.steps++
	l.viewsFresh = false
	l.report(results, len(inputs), learning, time.Since(start))
	return results, nil
}

// advanceClock moves the aging clock on learning steps and returns the
// modulation for this step.
func (l *Lattice) advanceClock(learning bool) node.Modulation {
	if !l.aging.Enabled {
		return node.Neutral
	}
	if learning && l.clock < len(l.sched.rate)-1 {
		l.clock++
	}
	return l.sched.at(l.clock)
}

// parallel splits [0, Len) into contiguous chunks, one per worker.
func (l *Lattice) parallel(fn func(lo, hi int)) error {
	n := len(l.nodes)
	workers := l.workers
	if n < minParallelNodes || workers <= 1 {
		fn(0, n)
		return nil
	}
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers

	var g errgroup.Group
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	return g.Wait()
}

func (l *Lattice) report(results []Result, driven int, learning bool, d time.Duration) {
	stats := StepStats{Step: l.steps, Learning: learning, Driven: driven, Duration: d}
	var sumAmp, sumFatigue, sumForce float64
	for i, r := range results {
		sumAmp += r.Amplitude
		sumFatigue += r.Fatigue
		sumForce += math.Abs(r.Force)
		if r.Reborn {
			stats.Rebirths++
			l.logger.Log(context.Background(), logging.LevelTrace, "node reborn",
				"step", l.steps, "node", i, "frequency", r.Frequency)
		}
	}
	n := float64(len(results))
	stats.MeanAmplitude = sumAmp / n
	stats.MeanFatigue = sumFatigue / n
	stats.MeanForce = sumForce / n

	if stats.Rebirths > 0 {
		l.logger.Debug("step completed with rebirths", "step", l.steps, "rebirths", stats.Rebirths)
	}
	for _, obs := range l.observers {
		obs.ObserveStep(stats)
	}
}

func (l *Lattice) checkIndex(idx int) error {
	if idx < 0 || idx >= len(l.nodes) {
		return &IndexError{Index: idx, Len: len(l.nodes)}
	}
	return nil
}

// Frequencies returns the current frequency of every node, index-aligned.
// The slice is reused after the next Step; copy it to retain it.
func (l *Lattice) Frequencies() []float64 {
	l.refreshViews()
	return l.viewFreq
}

// Amplitudes returns the current amplitude of every node. The slice is
// reused after the next Step.
func (l *Lattice) Amplitudes() []float64 {
	l.refreshViews()
	return l.viewAmp
}

// Fatigue returns the current fatigue of every node. The slice is reused
// after the next Step.
func (l *Lattice) Fatigue() []float64 {
	l.refreshViews()
	return l.viewFatigue
}

func (l *Lattice) refreshViews() {
	if l.viewsFresh {
		return
	}
	for i, nd := range l.nodes {
		s := nd.State()
		l.viewFreq[i] = s.Frequency
		l.viewAmp[i] = s.Amplitude
		l.viewFatigue[i] = s.Fatigue
	}
	l.viewsFresh = true
}
