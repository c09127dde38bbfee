package node

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParams is returned when a Params value fails validation.
var ErrInvalidParams = errors.New("invalid node parameters")

// Params holds the physical and metabolic constants of a single oscillator.
// A lattice may share one Params value across all nodes or override it per
// node. Params is plain data: derived coefficients are computed separately
// when the parameters are applied to a Node.
type Params struct {
	// Inertia is the low-pass weight on the frequency-adjustment velocity.
	// Range: [0, 1).
	Inertia float64 `json:"inertia" yaml:"inertia"`

	// Viscosity is the damping multiplier applied after the inertia blend.
	// Range: [0, 1].
	Viscosity float64 `json:"viscosity" yaml:"viscosity"`

	// DeadBand is the minimum frequency error required before any adaptive
	// force is applied. Also separates "stable" from "adapting" in turnover.
	DeadBand float64 `json:"dead_band" yaml:"dead_band"`

	// SigmaExcite is the resonance bandwidth for amplitude transmission.
	SigmaExcite float64 `json:"sigma_excite" yaml:"sigma_excite"`

	// SigmaLearn is the resonance bandwidth gating the adaptive force.
	SigmaLearn float64 `json:"sigma_learn" yaml:"sigma_learn"`

	// AmplitudeLimit is the hard cap on amplitude.
	AmplitudeLimit float64 `json:"amplitude_limit" yaml:"amplitude_limit"`

	// FatigueLoadRate scales fatigue accrual while the node holds steady.
	FatigueLoadRate float64 `json:"fatigue_load_rate" yaml:"fatigue_load_rate"`

	// FatigueRecoverRate is subtracted from fatigue while adapting or idle.
	FatigueRecoverRate float64 `json:"fatigue_recover_rate" yaml:"fatigue_recover_rate"`

	// ActivityThreshold is the amplitude below which a node counts as idle.
	ActivityThreshold float64 `json:"activity_threshold" yaml:"activity_threshold"`

	// FatigueLimitMin and FatigueLimitMax bound the per-node fatigue limit,
	// drawn once from the node's private stream.
	FatigueLimitMin float64 `json:"fatigue_limit_min" yaml:"fatigue_limit_min"`
	FatigueLimitMax float64 `json:"fatigue_limit_max" yaml:"fatigue_limit_max"`

	// StagnationLimit is the number of consecutive idle, zero-force steps
	// tolerated before a stagnation rebirth.
	StagnationLimit int `json:"stagnation_limit" yaml:"stagnation_limit"`

	// FrequencyMin and FrequencyMax bound initial and rebirth frequencies.
	FrequencyMin float64 `json:"frequency_min" yaml:"frequency_min"`
	FrequencyMax float64 `json:"frequency_max" yaml:"frequency_max"`
}

// DefaultParams returns the single-oscillator defaults.
func DefaultParams() Params {
	return Params{
		Inertia:            0.99,
		Viscosity:          0.35,
		DeadBand:           1.0,
		SigmaExcite:        15.0,
		SigmaLearn:         15.0,
		AmplitudeLimit:     100.0,
		FatigueLoadRate:    10.0,
		FatigueRecoverRate: 15.0,
		ActivityThreshold:  1.0,
		FatigueLimitMin:    900.0,
		FatigueLimitMax:    1100.0,
		StagnationLimit:    150,
		FrequencyMin:       -50.0,
		FrequencyMax:       50.0,
	}
}

// LargeScaleParams returns the defaults tuned for large lattices: wider
// resonance bands, lighter inertia and a narrower initial spectrum.
func LargeScaleParams() Params {
	p := DefaultParams()
	p.SigmaExcite = 20.0
	p.SigmaLearn = 20.0
	p.Inertia = 0.95
	p.Viscosity = 0.5
	p.FrequencyMin = -40.0
	p.FrequencyMax = 40.0
	return p
}

// Validate checks every field against its allowed range. Invalid values are
// rejected, never clamped.
func (p Params) Validate() error {
	checks := []struct {
		ok  bool
		msg string
	}{
		{p.Inertia >= 0 && p.Inertia < 1, fmt.Sprintf("inertia must be in [0, 1), got %g", p.Inertia)},
		{p.Viscosity >= 0 && p.Viscosity <= 1, fmt.Sprintf("viscosity must be in [0, 1], got %g", p.Viscosity)},
		{p.DeadBand >= 0, fmt.Sprintf("dead_band must be non-negative, got %g", p.DeadBand)},
		{p.SigmaExcite > 0, fmt.Sprintf("sigma_excite must be positive, got %g", p.SigmaExcite)},
		{p.SigmaLearn > 0, fmt.Sprintf("sigma_learn must be positive, got %g", p.SigmaLearn)},
		{p.AmplitudeLimit > 0, fmt.Sprintf("amplitude_limit must be positive, got %g", p.AmplitudeLimit)},
		{p.FatigueLoadRate > 0, fmt.Sprintf("fatigue_load_rate must be positive, got %g", p.FatigueLoadRate)},
		{p.FatigueRecoverRate > 0, fmt.Sprintf("fatigue_recover_rate must be positive, got %g", p.FatigueRecoverRate)},
		{p.ActivityThreshold >= 0, fmt.Sprintf("activity_threshold must be non-negative, got %g", p.ActivityThreshold)},
		{p.FatigueLimitMin > 0, fmt.Sprintf("fatigue_limit_min must be positive, got %g", p.FatigueLimitMin)},
		{p.FatigueLimitMax >= p.FatigueLimitMin, fmt.Sprintf("fatigue_limit_max (%g) must not be below fatigue_limit_min (%g)", p.FatigueLimitMax, p.FatigueLimitMin)},
		{p.StagnationLimit > 0, fmt.Sprintf("stagnation_limit must be positive, got %d", p.StagnationLimit)},
		{p.FrequencyMax >= p.FrequencyMin, fmt.Sprintf("frequency_max (%g) must not be below frequency_min (%g)", p.FrequencyMax, p.FrequencyMin)},
	}
	for _, c := range checks {
		if !c.ok {
			return fmt.Errorf("%w: %s", ErrInvalidParams, c.msg)
		}
	}
	for _, v := range []float64{p.Inertia, p.Viscosity, p.DeadBand, p.SigmaExcite, p.SigmaLearn,
		p.AmplitudeLimit, p.FatigueLoadRate, p.FatigueRecoverRate, p.ActivityThreshold,
		p.FatigueLimitMin, p.FatigueLimitMax, p.FrequencyMin, p.FrequencyMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: parameters must be finite", ErrInvalidParams)
		}
	}
	return nil
}

// coefficients are the Gaussian exponent factors derived from the bandwidths.
type coefficients struct {
	excite float64 // -1 / (2 sigmaExcite^2)
	learn  float64 // -1 / (2 sigmaLearn^2)
}

func (p Params) derive() coefficients {
	return coefficients{
		excite: -1.0 / (2.0 * p.SigmaExcite * p.SigmaExcite),
		learn:  -1.0 / (2.0 * p.SigmaLearn * p.SigmaLearn),
	}
}
