package simulation

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/nvandessel/resonet/internal/lattice"
)

// DefaultSeed is the seed used by the built-in presets.
const DefaultSeed = 42

// driveAmplitude is the external drive strength used by every preset.
const driveAmplitude = 100.0

// Lifecycle schedule, in steps.
const (
	lifecyclePeriod     = 500
	lifecycleNoiseStart = 800
	lifecycleNoiseEnd   = 1100
	lifecycleNoise      = 25.0
	lifecycleRestStart  = 1200
	lifecycleRestEnd    = 1800
	lifecycleRestDuty   = 40
	lifecycleSilence    = 2000
	lifecycleSteps      = 2500
)

// preset builds a scenario for an edge length.
type preset struct {
	description string
	build       func(size int) Scenario
}

const (
	tunnelingDesc = "drive the z=0 face at 25 Hz and watch the tone propagate"
	territoryDesc = "drive opposite x faces at -30 Hz and +30 Hz"
	memoryDesc    = "drive a face at 15 Hz for half the run, then silence"
	inferenceDesc = "learn 20 Hz, then infer with a -40 Hz probe"
	lifecycleDesc = "single node tracking a sine target through noise, rest and silence"
)

var presets = map[string]preset{
	"tunneling": {tunnelingDesc, Tunneling},
	"territory": {territoryDesc, Territory},
	"memory":    {memoryDesc, Memory},
	"inference": {inferenceDesc, Inference},
	"lifecycle": {lifecycleDesc, Lifecycle},
}

// Presets returns the built-in preset names, sorted.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the one-line description of a preset.
func Describe(name string) string {
	return presets[name].description
}

// Preset returns the named scenario for edge length size. The lifecycle
// preset always uses a single node.
func Preset(name string, size int) (Scenario, error) {
	p, ok := presets[name]
	if !ok {
		return Scenario{}, fmt.Errorf("unknown scenario %q (available: %v)", name, Presets())
	}
	return p.build(size), nil
}

func center(size int) int {
	c := size / 2
	return c + c*size + c*size*size
}

// Tunneling drives the z=0 face at 25 Hz for 400 steps.
func Tunneling(size int) Scenario {
	face := Face(size, 2, 0)
	in := Uniform(face, lattice.Signal{Amplitude: driveAmplitude, Frequency: 25})
	return Scenario{
		Name:        "tunneling",
		Description: tunnelingDesc,
		Size:        size,
		Seed:        DefaultSeed,
		Steps:       400,
		Drive:       func(int, int) map[int]lattice.Signal { return in },
		Trace:       []int{0, center(size)},
	}
}

// Territory drives the x=0 face at -30 Hz and the x=size-1 face at +30 Hz.
func Territory(size int) Scenario {
	in := Uniform(Face(size, 0, 0), lattice.Signal{Amplitude: driveAmplitude, Frequency: -30})
	for idx, sig := range Uniform(Face(size, 0, size-1), lattice.Signal{Amplitude: driveAmplitude, Frequency: 30}) {
		in[idx] = sig
	}
	return Scenario{
		Name:        "territory",
		Description: territoryDesc,
		Size:        size,
		Seed:        DefaultSeed,
		Steps:       400,
		Drive:       func(int, int) map[int]lattice.Signal { return in },
		Trace:       []int{0, size - 1, center(size)},
	}
}

// Memory drives the z=0 face at 15 Hz for the first 200 steps, then leaves
// the lattice undriven for 200 more.
func Memory(size int) Scenario {
	const steps = 400
	in := Uniform(Face(size, 2, 0), lattice.Signal{Amplitude: driveAmplitude, Frequency: 15})
	return Scenario{
		Name:        "memory",
		Description: memoryDesc,
		Size:        size,
		Seed:        DefaultSeed,
		Steps:       steps,
		Drive: func(step, _ int) map[int]lattice.Signal {
			if step < steps/2 {
				return in
			}
			return nil
		},
		Trace: []int{0, center(size)},
	}
}

// Inference learns a 20 Hz face drive for 200 steps, then switches to
// inference and probes the same face at -40 Hz.
func Inference(size int) Scenario {
	const steps = 400
	face := Face(size, 2, 0)
	learn := Uniform(face, lattice.Signal{Amplitude: driveAmplitude, Frequency: 20})
	probe := Uniform(face, lattice.Signal{Amplitude: driveAmplitude, Frequency: -40})
	return Scenario{
		Name:        "inference",
		Description: inferenceDesc,
		Size:        size,
		Seed:        DefaultSeed,
		Steps:       steps,
		Drive: func(step, _ int) map[int]lattice.Signal {
			if step < steps/2 {
				return learn
			}
			return probe
		},
		Learning: func(step int) bool { return step < steps/2 },
		Trace:    []int{0, center(size)},
	}
}

// Lifecycle drives a single aging node with a 40·sin(2πs/500) target. Uniform
// noise of ±25 Hz is added between steps 800 and 1100, the drive pauses every
// other 40-step block between 1200 and 1800, and from step 2000 on the node
// is left in silence.
func Lifecycle(int) Scenario {
	aging := lattice.DefaultAgingConfig()
	aging.Enabled = true
	aging.MaxSteps = lifecycleSteps

	return Scenario{
		Name:        "lifecycle",
		Description: lifecycleDesc,
		Size:        1,
		Seed:        DefaultSeed,
		Steps:       lifecycleSteps,
		Aging:       &aging,
		Drive: func(step, _ int) map[int]lattice.Signal {
			if step >= lifecycleSilence {
				return nil
			}
			if step >= lifecycleRestStart && step < lifecycleRestEnd && (step/lifecycleRestDuty)%2 == 1 {
				return nil
			}
			f := 40 * math.Sin(2*math.Pi*float64(step)/lifecyclePeriod)
			if step >= lifecycleNoiseStart && step < lifecycleNoiseEnd {
				f += lifecycleNoise * (2*noise(DefaultSeed, step) - 1)
			}
			return map[int]lattice.Signal{0: {Amplitude: driveAmplitude, Frequency: f}}
		},
		Trace: []int{0},
	}
}

// noise returns a uniform value in [0, 1) that depends only on (seed, step),
// so a scenario can be run any number of times with identical inputs.
func noise(seed int64, step int) float64 {
	return rand.New(rand.NewPCG(uint64(seed), uint64(step))).Float64()
}
