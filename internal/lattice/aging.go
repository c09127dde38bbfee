package lattice

import (
	"fmt"
	"math"

	"github.com/nvandessel/resonet/internal/node"
)

// AgingConfig controls the lifecycle schedule: the adaptive force weakens and
// fatigue tolerance grows as the lattice ages. The clock advances on
// learning steps only.
type AgingConfig struct {
	// Enabled turns the schedule on. When false both multipliers are 1.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// MaxSteps is the lifecycle length. Past it the final values hold.
	MaxSteps int `json:"max_steps" yaml:"max_steps"`

	// PCritical is the progress fraction where the critical period ends.
	PCritical float64 `json:"p_critical" yaml:"p_critical"`

	// PMature is the progress fraction where maturity begins.
	PMature float64 `json:"p_mature" yaml:"p_mature"`

	// DecayAlpha is the learning-rate decay exponent.
	DecayAlpha float64 `json:"decay_alpha" yaml:"decay_alpha"`

	// GrowthBeta is the fatigue-limit growth exponent.
	GrowthBeta float64 `json:"growth_beta" yaml:"growth_beta"`
}

// DefaultAgingConfig returns a disabled schedule with the reference constants.
func DefaultAgingConfig() AgingConfig {
	return AgingConfig{
		Enabled:    false,
		MaxSteps:   10000,
		PCritical:  0.05,
		PMature:    0.33,
		DecayAlpha: 2.0,
		GrowthBeta: 2.0,
	}
}

// Validate checks the schedule constants. A disabled schedule is always valid.
func (a AgingConfig) Validate() error {
	if !a.Enabled {
		return nil
	}
	if a.MaxSteps <= 0 {
		return fmt.Errorf("%w: aging max_steps must be positive, got %d", ErrInvalidConfig, a.MaxSteps)
	}
	if a.PCritical <= 0 || a.PMature <= 0 {
		return fmt.Errorf("%w: aging p_critical and p_mature must be positive", ErrInvalidConfig)
	}
	if a.DecayAlpha < 0 || a.GrowthBeta < 0 {
		return fmt.Errorf("%w: aging exponents must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// schedule holds the precomputed per-step multipliers.
type schedule struct {
	rate  []float64
	limit []float64
}

func buildSchedule(a AgingConfig) schedule {
	if !a.Enabled {
		return schedule{rate: []float64{1}, limit: []float64{1}}
	}
	n := a.MaxSteps + 1
	s := schedule{rate: make([]float64, n), limit: make([]float64, n)}
	for i := range n {
		p := float64(i) / float64(a.MaxSteps)
		s.rate[i] = 1 / math.Pow(1+p/a.PCritical, a.DecayAlpha)
		s.limit[i] = math.Pow(1+p/a.PMature, a.GrowthBeta)
	}
	return s
}

// at returns the modulation for clock value c, holding the last entry.
func (s schedule) at(c int) node.Modulation {
	if c >= len(s.rate) {
		c = len(s.rate) - 1
	}
	return node.Modulation{LearningRate: s.rate[c], LimitMultiplier: s.limit[c]}
}
