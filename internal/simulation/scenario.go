package simulation

import (
	"time"

	"github.com/nvandessel/resonet/internal/lattice"
	"github.com/nvandessel/resonet/internal/node"
)

// Scenario defines a complete simulation experiment.
type Scenario struct {
	Name        string
	Description string
	Size        int
	Seed        int64
	Steps       int
	Workers     int // 0 = GOMAXPROCS
	Coupling    lattice.Coupling

	// Params overrides the lattice-wide node parameters when non-nil.
	Params *node.Params

	// Aging overrides the lifecycle schedule when non-nil.
	Aging *lattice.AgingConfig

	// Drive, when non-nil, returns the external inputs for a 0-based step.
	// Returning nil leaves every node coupled to its neighbors.
	Drive func(step, size int) map[int]lattice.Signal

	// Learning, when non-nil, selects learning (true) or inference (false)
	// for a 0-based step. A nil Learning means every step learns.
	Learning func(step int) bool

	// Setup, when non-nil, is called once after the lattice is built and
	// before the first step. Use this for explicit frequency seeding.
	Setup func(l *lattice.Lattice) error

	// Trace lists node indices whose state is recorded after every step.
	Trace []int
}

// StepSummary aggregates one step across the lattice.
type StepSummary struct {
	Step          int     `json:"step"`
	Learning      bool    `json:"learning"`
	Driven        int     `json:"driven"`
	Rebirths      int     `json:"rebirths"`
	MeanAmplitude float64 `json:"mean_amplitude"`
	MeanFatigue   float64 `json:"mean_fatigue"`
	MeanForce     float64 `json:"mean_abs_force"`
}

// TracePoint is the state of one traced node after a step.
type TracePoint struct {
	Step      int     `json:"step"`
	Frequency float64 `json:"frequency"`
	Amplitude float64 `json:"amplitude"`
	Fatigue   float64 `json:"fatigue"`
	Force     float64 `json:"force"`
	Reborn    bool    `json:"reborn"`
}

// Result captures every step of a run and the final lattice state.
type Result struct {
	RunID    string               `json:"run_id"`
	Scenario string               `json:"scenario"`
	Size     int                  `json:"size"`
	Seed     int64                `json:"seed"`
	Steps    []StepSummary        `json:"steps"`
	Traces   map[int][]TracePoint `json:"traces,omitempty"`
	Duration time.Duration        `json:"duration_ns"`

	// Final node state, index-aligned.
	Frequencies []float64 `json:"frequencies"`
	Amplitudes  []float64 `json:"amplitudes"`
	Fatigue     []float64 `json:"fatigue"`
}

// TotalRebirths sums rebirths over every recorded step.
func (r *Result) TotalRebirths() int {
	total := 0
	for _, s := range r.Steps {
		total += s.Rebirths
	}
	return total
}

// Last returns the final step summary, or the zero value for an empty run.
func (r *Result) Last() StepSummary {
	if len(r.Steps) == 0 {
		return StepSummary{}
	}
	return r.Steps[len(r.Steps)-1]
}

// Face returns the indices of the lattice face where axis (0=x, 1=y, 2=z)
// equals pos.
func Face(size, axis, pos int) []int {
	idx := make([]int, 0, size*size)
	for a := 0; a < size; a++ {
		for b := 0; b < size; b++ {
			var x, y, z int
			switch axis {
			case 0:
				x, y, z = pos, a, b
			case 1:
				x, y, z = a, pos, b
			default:
				x, y, z = a, b, pos
			}
			idx = append(idx, x+y*size+z*size*size)
		}
	}
	return idx
}

// Uniform drives every index with the same signal.
func Uniform(indices []int, s lattice.Signal) map[int]lattice.Signal {
	in := make(map[int]lattice.Signal, len(indices))
	for _, i := range indices {
		in[i] = s
	}
	return in
}
