package lattice

import "time"

// StepStats summarizes one completed step.
type StepStats struct {
	Step          int64
	Learning      bool
	Driven        int
	Rebirths      int
	MeanAmplitude float64
	MeanFatigue   float64
	MeanForce     float64 // mean |force|
	Duration      time.Duration
}

// Observer receives a summary after every successful step. Observers run on
// the stepping goroutine and must not call back into the lattice.
type Observer interface {
	ObserveStep(StepStats)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(StepStats)

// ObserveStep calls f(s).
func (f ObserverFunc) ObserveStep(s StepStats) { f(s) }
