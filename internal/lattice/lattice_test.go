package lattice

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/nvandessel/resonet/internal/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLattice(t *testing.T, size int, seed int64, opts ...Option) *Lattice {
	t.Helper()
	l, err := New(size, seed, opts...)
	require.NoError(t, err)
	return l
}

func step(t *testing.T, l *Lattice, inputs map[int]Signal, learning bool) []Result {
	t.Helper()
	res, err := l.Step(context.Background(), inputs, learning)
	require.NoError(t, err)
	require.Len(t, res, l.Len())
	return res
}

func TestNew_InvalidConfig(t *testing.T) {
	badSigma := node.DefaultParams()
	badSigma.SigmaExcite = 0
	badLimit := node.DefaultParams()
	badLimit.AmplitudeLimit = 0

	tests := []struct {
		name string
		size int
		opts []Option
	}{
		{"zero size", 0, nil},
		{"negative size", -3, nil},
		{"oversized", MaxSize + 1, nil},
		{"zero sigma excite", 2, []Option{WithParams(badSigma)}},
		{"zero amplitude limit", 2, []Option{WithParams(badLimit)}},
		{"attenuation above one", 2, []Option{WithAttenuation(1.2)}},
		{"unknown coupling", 2, []Option{WithCoupling(Coupling(9))}},
		{"aging without max steps", 2, []Option{WithAging(AgingConfig{Enabled: true, PCritical: 1, PMature: 1})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, 1, tt.opts...)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestIndexCoordsRoundTrip(t *testing.T) {
	l := newTestLattice(t, 4, 1)
	for idx := 0; idx < l.Len(); idx++ {
		x, y, z := l.Coords(idx)
		assert.Equal(t, idx, l.Index(x, y, z))
	}
	assert.Equal(t, 1+2*4+3*16, l.Index(1, 2, 3))
}

func TestNeighbors_BoundaryCounts(t *testing.T) {
	l := newTestLattice(t, 3, 1)

	tests := []struct {
		name    string
		x, y, z int
		want    int
	}{
		{"corner", 0, 0, 0, 3},
		{"far corner", 2, 2, 2, 3},
		{"edge", 1, 0, 0, 4},
		{"face", 1, 1, 0, 5},
		{"interior", 1, 1, 1, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := l.Index(tt.x, tt.y, tt.z)
			nbrs := l.Neighbors(idx, nil)
			assert.Len(t, nbrs, tt.want)
			for _, j := range nbrs {
				jx, jy, jz := l.Coords(j)
				dist := abs(jx-tt.x) + abs(jy-tt.y) + abs(jz-tt.z)
				assert.Equal(t, 1, dist, "neighbor %d of %d", j, idx)
			}
		})
	}

	single := newTestLattice(t, 1, 1)
	assert.Empty(t, single.Neighbors(0, nil))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestStep_RejectsOutOfRangeInputs(t *testing.T) {
	l := newTestLattice(t, 2, 1)
	before := append([]float64(nil), l.Frequencies()...)

	for _, idx := range []int{-1, 8, 1000} {
		_, err := l.Step(context.Background(), map[int]Signal{idx: {Amplitude: 100, Frequency: 20}}, true)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrIndexOutOfRange)

		var ie *IndexError
		require.True(t, errors.As(err, &ie))
		assert.Equal(t, idx, ie.Index)
		assert.Equal(t, 8, ie.Len)
	}

	assert.Equal(t, int64(0), l.Steps())
	assert.Equal(t, before, l.Frequencies())
}

func TestStep_CancelledContext(t *testing.T) {
	l := newTestLattice(t, 2, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Step(ctx, nil, true)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), l.Steps())
}

func TestStep_ReadsPreviousSnapshot(t *testing.T) {
	l := newTestLattice(t, 2, 1)
	for i := 0; i < l.Len(); i++ {
		require.NoError(t, l.SetFrequency(i, 20))
	}
	drive := map[int]Signal{0: {Amplitude: 100, Frequency: 20}}
	far := l.Index(1, 1, 1)
	near := l.Index(1, 0, 0)

	res := step(t, l, drive, false)
	assert.Equal(t, 100.0, res[0].Amplitude)
	assert.Zero(t, res[near].Amplitude, "neighbor must see the pre-step amplitude")

	res = step(t, l, drive, false)
	assert.InDelta(t, 100.0, res[near].Amplitude, 1e-6)
	assert.Zero(t, res[far].Amplitude)

	res = step(t, l, drive, false)
	assert.Greater(t, res[l.Index(1, 1, 0)].Amplitude, 0.0)
	assert.Zero(t, res[far].Amplitude, "signal travels one hop per step")

	res = step(t, l, drive, false)
	assert.Greater(t, res[far].Amplitude, 0.0)
}

func TestStep_AmplitudeAndFatigueBounds(t *testing.T) {
	l := newTestLattice(t, 3, 5)
	limit := l.Params().AmplitudeLimit
	inputs := map[int]Signal{
		0:  {Amplitude: 1e4, Frequency: 10},
		13: {Amplitude: -250, Frequency: -30},
		26: {Amplitude: 80, Frequency: 45},
	}
	for s := 0; s < 300; s++ {
		for i, r := range step(t, l, inputs, s%3 != 0) {
			require.GreaterOrEqual(t, r.Amplitude, 0.0, "step %d node %d", s, i)
			require.LessOrEqual(t, r.Amplitude, limit, "step %d node %d", s, i)
			require.GreaterOrEqual(t, r.Fatigue, 0.0, "step %d node %d", s, i)
		}
	}
}

func drivenSequence(size, steps int) []map[int]Signal {
	seq := make([]map[int]Signal, steps)
	for s := range seq {
		in := make(map[int]Signal)
		for i := 0; i < size*size; i++ {
			in[i] = Signal{Amplitude: 100, Frequency: 20 + 10*math.Sin(float64(s+i)/7)}
		}
		seq[s] = in
	}
	return seq
}

func TestStep_Deterministic(t *testing.T) {
	const size, steps = 3, 400
	seq := drivenSequence(size, steps)

	a := newTestLattice(t, size, 9)
	b := newTestLattice(t, size, 9)
	for s, in := range seq {
		ra := step(t, a, in, true)
		rb := step(t, b, in, true)
		require.Equal(t, ra, rb, "step %d", s)
	}
}

func TestStep_DeterministicAcrossWorkerCounts(t *testing.T) {
	const size, steps = 8, 60
	seq := drivenSequence(size, steps)

	serial := newTestLattice(t, size, 3, WithWorkers(1))
	parallel := newTestLattice(t, size, 3, WithWorkers(7))
	for s, in := range seq {
		require.Equal(t, step(t, serial, in, true), step(t, parallel, in, true), "step %d", s)
	}
}

func TestStep_DifferentSeedsDiverge(t *testing.T) {
	a := newTestLattice(t, 2, 1)
	b := newTestLattice(t, 2, 2)
	assert.NotEqual(t, a.Frequencies(), b.Frequencies())
}

func TestStep_InferenceFreezesFrequencies(t *testing.T) {
	l := newTestLattice(t, 3, 11)
	before := append([]float64(nil), l.Frequencies()...)

	for range 20 {
		res := step(t, l, map[int]Signal{4: {Amplitude: 100, Frequency: -10}}, false)
		for i, r := range res {
			if r.Reborn {
				continue
			}
			assert.Zero(t, r.Force)
			assert.Equal(t, before[i], r.Frequency)
		}
	}
}

// A single node driven at 20 Hz pulls its frequency toward the target.
func TestScenario_SingleNodeConverges(t *testing.T) {
	l := newTestLattice(t, 1, 123)
	f0 := l.Frequencies()[0]
	drive := map[int]Signal{0: {Amplitude: 100, Frequency: 20}}

	prevDist := math.Abs(f0 - 20)
	for s := 0; s < 10; s++ {
		res := step(t, l, drive, true)
		dist := math.Abs(res[0].Frequency - 20)
		assert.LessOrEqual(t, dist, prevDist+1e-12, "step %d", s)
		prevDist = dist
	}
}

func TestScenario_SteadyResonanceAccruesFatigue(t *testing.T) {
	l := newTestLattice(t, 1, 123)
	require.NoError(t, l.SetFrequency(0, 10))
	drive := map[int]Signal{0: {Amplitude: 100, Frequency: 20}}

	prevDist := 10.0
	prevFatigue := 0.0
	steady := false
	for s := 0; s < 100; s++ {
		r := step(t, l, drive, true)[0]
		require.False(t, r.Reborn, "step %d", s)

		dist := math.Abs(r.Frequency - 20)
		if !steady {
			assert.LessOrEqual(t, dist, prevDist+1e-12, "step %d", s)
		}
		if steady {
			assert.GreaterOrEqual(t, r.Fatigue, prevFatigue, "step %d", s)
		}
		if dist < l.Params().DeadBand {
			steady = true
		}
		prevDist, prevFatigue = dist, r.Fatigue
	}
	assert.True(t, steady, "node never reached the target")
	assert.Greater(t, prevFatigue, 0.0)
}

func TestScenario_FatigueExhaustionTriggersRebirth(t *testing.T) {
	l := newTestLattice(t, 1, 123)
	require.NoError(t, l.SetFrequency(0, 20))
	st, err := l.Node(0)
	require.NoError(t, err)
	limit := st.FatigueLimit
	p := l.Params()

	drive := map[int]Signal{0: {Amplitude: 100, Frequency: 20}}
	prev := 0.0
	for s := 1; s <= 200; s++ {
		r := step(t, l, drive, true)[0]
		if prev+p.FatigueLoadRate > limit {
			require.True(t, r.Reborn, "step %d: fatigue %g exceeded limit %g", s, prev+p.FatigueLoadRate, limit)
			assert.Zero(t, r.Fatigue)
			assert.Zero(t, r.Amplitude)
			assert.GreaterOrEqual(t, r.Frequency, p.FrequencyMin)
			assert.Less(t, r.Frequency, p.FrequencyMax)

			st, err := l.Node(0)
			require.NoError(t, err)
			assert.Zero(t, st.Velocity)
			assert.Zero(t, st.StagnationCount)
			return
		}
		require.False(t, r.Reborn, "step %d", s)
		assert.InDelta(t, prev+p.FatigueLoadRate, r.Fatigue, 1e-9)
		prev = r.Fatigue
	}
	t.Fatal("node never exhausted")
}

func TestScenario_UndrivenLatticeStaysQuiet(t *testing.T) {
	l := newTestLattice(t, 2, 1)
	stagnation := l.Params().StagnationLimit

	for s := 1; s <= stagnation+5; s++ {
		res := step(t, l, nil, true)
		for i, r := range res {
			assert.Zero(t, r.Amplitude, "step %d node %d", s, i)
			assert.Zero(t, r.Fatigue, "step %d node %d", s, i)
			assert.Equal(t, s == stagnation+1, r.Reborn, "step %d node %d", s, i)
		}
	}
}

func TestAccessors_ViewsAreReused(t *testing.T) {
	l := newTestLattice(t, 2, 4)
	in := map[int]Signal{0: {Amplitude: 100, Frequency: 0}}

	res := step(t, l, in, true)
	freqs := l.Frequencies()
	amps := l.Amplitudes()
	fatigue := l.Fatigue()
	require.Len(t, freqs, 8)
	for i, r := range res {
		assert.Equal(t, r.Frequency, freqs[i])
		assert.Equal(t, r.Amplitude, amps[i])
		assert.Equal(t, r.Fatigue, fatigue[i])
	}

	step(t, l, in, true)
	again := l.Frequencies()
	assert.Same(t, &freqs[0], &again[0])
}

func TestConfigure_RequiresFinalize(t *testing.T) {
	l := newTestLattice(t, 2, 1)

	p := node.DefaultParams()
	p.AmplitudeLimit = 50
	require.NoError(t, l.Configure(p))

	_, err := l.Step(context.Background(), nil, true)
	require.ErrorIs(t, err, ErrNotFinalized)

	require.NoError(t, l.Finalize())
	assert.Equal(t, 50.0, l.Params().AmplitudeLimit)

	res := step(t, l, map[int]Signal{0: {Amplitude: 1000, Frequency: l.Frequencies()[0]}}, false)
	assert.Equal(t, 50.0, res[0].Amplitude)
}

func TestConfigure_RejectsInvalid(t *testing.T) {
	l := newTestLattice(t, 2, 1)
	p := node.DefaultParams()
	p.SigmaLearn = -1

	assert.ErrorIs(t, l.Configure(p), ErrInvalidConfig)
	assert.ErrorIs(t, l.ConfigureNode(0, p), ErrInvalidConfig)
	assert.ErrorIs(t, l.ConfigureNode(99, node.DefaultParams()), ErrIndexOutOfRange)

	// Rejected configuration leaves the lattice usable.
	step(t, l, nil, true)
}

func TestConfigureNode_AppliesToOneNode(t *testing.T) {
	l := newTestLattice(t, 2, 1)
	p := node.DefaultParams()
	p.AmplitudeLimit = 10
	require.NoError(t, l.ConfigureNode(3, p))
	require.NoError(t, l.Finalize())

	in := make(map[int]Signal)
	for i, f := range l.Frequencies() {
		in[i] = Signal{Amplitude: 500, Frequency: f}
	}
	res := step(t, l, in, false)
	for i, r := range res {
		if i == 3 {
			assert.Equal(t, 10.0, r.Amplitude)
		} else {
			assert.Equal(t, 100.0, r.Amplitude)
		}
	}
}

func TestReset_MatchesFreshLattice(t *testing.T) {
	seq := drivenSequence(2, 50)
	l := newTestLattice(t, 2, 77)
	for _, in := range seq {
		step(t, l, in, true)
	}
	l.Reset()
	assert.Equal(t, int64(0), l.Steps())

	fresh := newTestLattice(t, 2, 77)
	assert.Equal(t, fresh.Frequencies(), l.Frequencies())
	for _, in := range seq {
		require.Equal(t, step(t, fresh, in, true), step(t, l, in, true))
	}
}

func TestAttenuatedCoupling(t *testing.T) {
	l := newTestLattice(t, 2, 1, WithCoupling(CouplingAttenuated))
	for i := 0; i < l.Len(); i++ {
		require.NoError(t, l.SetFrequency(i, 20))
	}
	drive := map[int]Signal{0: {Amplitude: -100, Frequency: 20}}

	res := step(t, l, drive, false)
	assert.Equal(t, 100.0, res[0].Amplitude, "driven amplitude uses the magnitude")

	res = step(t, l, drive, false)
	near := l.Index(1, 0, 0)
	want := 100.0 / 3 * (1 - DefaultAttenuation)
	assert.InDelta(t, want, res[near].Amplitude, 1e-9)
}

func TestAttenuatedCoupling_IsolatedNodeKeepsFrequency(t *testing.T) {
	l := newTestLattice(t, 1, 1, WithCoupling(CouplingAttenuated))
	f0 := l.Frequencies()[0]

	r := step(t, l, nil, true)[0]
	assert.Zero(t, r.Amplitude)
	assert.Equal(t, f0, r.Frequency)
}

func TestParseCoupling(t *testing.T) {
	tests := []struct {
		in      string
		want    Coupling
		wantErr bool
	}{
		{"", CouplingResonant, false},
		{"resonant", CouplingResonant, false},
		{"Attenuated", CouplingAttenuated, false},
		{"field", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCoupling(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) Coupling {
	t.Helper()
	c, err := ParseCoupling(s)
	require.NoError(t, err)
	return c
}

func TestObserver_ReceivesStepStats(t *testing.T) {
	var got []StepStats
	l := newTestLattice(t, 1, 123, WithObserver(ObserverFunc(func(s StepStats) { got = append(got, s) })))
	require.NoError(t, l.SetFrequency(0, 20))

	step(t, l, map[int]Signal{0: {Amplitude: 100, Frequency: 20}}, true)
	step(t, l, nil, false)

	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Step)
	assert.True(t, got[0].Learning)
	assert.Equal(t, 1, got[0].Driven)
	assert.Equal(t, 100.0, got[0].MeanAmplitude)
	assert.Equal(t, 10.0, got[0].MeanFatigue)
	assert.False(t, got[1].Learning)
	assert.Equal(t, 0, got[1].Driven)
}

func TestAgingSchedule(t *testing.T) {
	a := DefaultAgingConfig()
	a.Enabled = true
	a.MaxSteps = 10
	s := buildSchedule(a)

	require.Len(t, s.rate, 11)
	assert.Equal(t, 1.0, s.rate[0])
	assert.Equal(t, 1.0, s.limit[0])
	assert.InDelta(t, 1/math.Pow(1+1/a.PCritical, a.DecayAlpha), s.rate[10], 1e-12)
	assert.InDelta(t, math.Pow(1+1/a.PMature, a.GrowthBeta), s.limit[10], 1e-12)
	for i := 1; i < len(s.rate); i++ {
		assert.Less(t, s.rate[i], s.rate[i-1])
		assert.Greater(t, s.limit[i], s.limit[i-1])
	}
	assert.Equal(t, s.at(10), s.at(500))

	disabled := buildSchedule(DefaultAgingConfig())
	assert.Equal(t, node.Neutral, disabled.at(0))
	assert.Equal(t, node.Neutral, disabled.at(1000))
}

func TestAging_ClockAdvancesOnLearningOnly(t *testing.T) {
	a := DefaultAgingConfig()
	a.Enabled = true
	a.MaxSteps = 10
	l := newTestLattice(t, 1, 1, WithAging(a))

	for range 3 {
		step(t, l, nil, true)
	}
	assert.Equal(t, 3, l.clock)

	for range 2 {
		step(t, l, nil, false)
	}
	assert.Equal(t, 3, l.clock)

	for range 20 {
		step(t, l, nil, true)
	}
	assert.Equal(t, 10, l.clock)

	l.Reset()
	assert.Zero(t, l.clock)
}

func TestAging_WeakensAdaptiveForce(t *testing.T) {
	a := DefaultAgingConfig()
	a.Enabled = true
	a.MaxSteps = 10

	young := newTestLattice(t, 1, 1)
	aged := newTestLattice(t, 1, 1, WithAging(a))
	for _, l := range []*Lattice{young, aged} {
		require.NoError(t, l.SetFrequency(0, 10))
	}

	drive := map[int]Signal{0: {Amplitude: 100, Frequency: 20}}
	ry := step(t, young, drive, true)[0]
	ra := step(t, aged, drive, true)[0]

	assert.InDelta(t, ry.Force*aged.sched.rate[1], ra.Force, 1e-9)
	assert.Less(t, math.Abs(ra.Force), math.Abs(ry.Force))
}

func TestConfigureAging_KeepsClock(t *testing.T) {
	l := newTestLattice(t, 1, 1)
	for range 4 {
		step(t, l, nil, true)
	}

	a := DefaultAgingConfig()
	a.Enabled = true
	a.MaxSteps = 100
	require.NoError(t, l.ConfigureAging(a))
	_, err := l.Step(context.Background(), nil, true)
	require.ErrorIs(t, err, ErrNotFinalized)

	require.NoError(t, l.Finalize())
	step(t, l, nil, true)
	assert.Equal(t, 1, l.clock)
	assert.Len(t, l.sched.rate, 101)

	bad := a
	bad.MaxSteps = 0
	assert.ErrorIs(t, l.ConfigureAging(bad), ErrInvalidConfig)
}
