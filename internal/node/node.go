// Package node implements a single resonant oscillator: Gaussian resonance
// excitation, damped frequency adaptation (RFA), and metabolic turnover with
// stochastic rebirth.
//
// A Node owns its state and a private random stream. It never references
// another node; coupling is the lattice's job.
package node

import (
	"fmt"
	"math"
	"math/rand/v2"
)

const (
	// synthEpsilon guards the amplitude-weighted frequency average.
	synthEpsilon = 1e-9

	// stagnationEpsilon is the force magnitude treated as exactly zero when
	// counting stagnation. Distinct from DeadBand.
	stagnationEpsilon = 1e-6
)

// Signal is one (amplitude, frequency) observation.
type Signal struct {
	Amplitude float64 `json:"amplitude"`
	Frequency float64 `json:"frequency"`
}

// State is the mutable dynamic state of a node.
type State struct {
	Frequency       float64 `json:"frequency"`
	Amplitude       float64 `json:"amplitude"`
	Velocity        float64 `json:"velocity"`
	Fatigue         float64 `json:"fatigue"`
	FatigueLimit    float64 `json:"fatigue_limit"`
	StagnationCount int     `json:"stagnation_count"`
}

// Modulation carries lattice-wide multipliers applied during a step.
type Modulation struct {
	// LearningRate scales the adaptive force.
	LearningRate float64
	// LimitMultiplier scales the node's fatigue limit in the rebirth test.
	LimitMultiplier float64
}

// Neutral is the identity modulation.
var Neutral = Modulation{LearningRate: 1, LimitMultiplier: 1}

// Node is a single oscillator.
type Node struct {
	id     int
	seed   int64
	params Params
	coef   coefficients
	mod    Modulation
	state  State
	rng    *rand.Rand
}

// New creates a node with the given id. Its random stream is derived from
// (seed, id); the initial frequency and fatigue limit are drawn from it.
func New(id int, seed int64, p Params) (*Node, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("node %d: %w", id, err)
	}
	n := &Node{id: id, seed: seed, params: p, coef: p.derive(), mod: Neutral}
	n.Reset()
	return n, nil
}

// Reset rewinds the node to its freshly constructed state: the random stream
// is re-seeded, and frequency and fatigue limit are drawn again.
func (n *Node) Reset() {
	n.rng = newStream(n.seed, n.id)
	n.state = State{
		Frequency:    uniform(n.rng, n.params.FrequencyMin, n.params.FrequencyMax),
		FatigueLimit: uniform(n.rng, n.params.FatigueLimitMin, n.params.FatigueLimitMax),
	}
}

// ID returns the node id.
func (n *Node) ID() int { return n.id }

// Params returns the node's current parameters.
func (n *Node) Params() Params { return n.params }

// State returns a copy of the node's state.
func (n *Node) State() State { return n.state }

// Frequency returns the node's own frequency.
func (n *Node) Frequency() float64 { return n.state.Frequency }

// Amplitude returns the node's current amplitude.
func (n *Node) Amplitude() float64 { return n.state.Amplitude }

// SetParams validates p and applies it, recomputing derived coefficients.
// The existing fatigue limit is kept; it is only redrawn by Reset.
func (n *Node) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("node %d: %w", n.id, err)
	}
	n.params = p
	n.coef = p.derive()
	return nil
}

// SetFrequency overrides the node's frequency, for explicit seeding.
func (n *Node) SetFrequency(f float64) {
	n.state.Frequency = f
}

// Modulate sets the multipliers used by subsequent updates.
func (n *Node) Modulate(m Modulation) {
	n.mod = m
}

// Synthesize merges incoming observations into one driving signal: the
// magnitude of the signed amplitude sum, and the amplitude-weighted mean
// frequency. With no signals the node's own frequency is the reference.
func (n *Node) Synthesize(signals []Signal) (aSyn, fSyn float64) {
	if len(signals) == 0 {
		return 0, n.state.Frequency
	}
	var sum, sumAbs, weighted float64
	for _, s := range signals {
		abs := math.Abs(s.Amplitude)
		sum += s.Amplitude
		sumAbs += abs
		weighted += abs * s.Frequency
	}
	return math.Abs(sum), weighted / (sumAbs + synthEpsilon)
}

// Excite sets the amplitude transmitted through the node's resonance filter.
func (n *Node) Excite(aSyn, fSyn float64) {
	d := fSyn - n.state.Frequency
	efficiency := math.Exp(d * d * n.coef.excite)
	amp := math.Min(aSyn*efficiency, n.params.AmplitudeLimit)
	if amp < 0 || math.IsNaN(amp) {
		amp = 0
	}
	n.state.Amplitude = amp
}

// Adapt pulls the node's frequency toward fSyn through the damped velocity
// term and returns the adaptive force before damping.
func (n *Node) Adapt(fSyn, aSyn float64) float64 {
	d := fSyn - n.state.Frequency
	force := 0.0
	if math.Abs(d) >= n.params.DeadBand {
		force = sign(d) * aSyn * math.Exp(d*d*n.coef.learn)
		force *= n.mod.LearningRate
	}

	v := n.state.Velocity*n.params.Inertia + force*(1-n.params.Inertia)
	v *= n.params.Viscosity
	n.state.Velocity = v
	n.state.Frequency += v
	return force
}

// Turnover applies fatigue accrual and recovery for the given force and
// reports whether the node was reborn.
func (n *Node) Turnover(force float64) bool {
	p := &n.params
	s := &n.state

	if math.Abs(force) < p.DeadBand {
		s.Fatigue += p.FatigueLoadRate * (s.Amplitude / p.AmplitudeLimit)
	} else {
		s.Fatigue = math.Max(0, s.Fatigue-p.FatigueRecoverRate)
	}

	if s.Amplitude < p.ActivityThreshold {
		s.Fatigue = math.Max(0, s.Fatigue-p.FatigueRecoverRate)
		if math.Abs(force) < stagnationEpsilon {
			s.StagnationCount++
		}
	} else {
		s.StagnationCount = 0
	}

	if s.Fatigue > s.FatigueLimit*n.mod.LimitMultiplier || s.StagnationCount > p.StagnationLimit {
		n.rebirth()
		return true
	}
	return false
}

// rebirth redraws the frequency and clears accumulated history in place.
func (n *Node) rebirth() {
	n.state.Frequency = uniform(n.rng, n.params.FrequencyMin, n.params.FrequencyMax)
	n.state.Velocity = 0
	n.state.Amplitude = 0
	n.state.Fatigue = 0
	n.state.StagnationCount = 0
}

// Resonate runs one update. Learning: Adapt, Excite, Turnover(force).
// Inference: Excite, Turnover(0) with the frequency frozen.
func (n *Node) Resonate(aSyn, fSyn float64, learning bool) (reborn bool, force float64) {
	if !learning {
		n.Excite(aSyn, fSyn)
		return n.Turnover(0), 0
	}
	force = n.Adapt(fSyn, aSyn)
	n.Excite(aSyn, fSyn)
	return n.Turnover(force), force
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
