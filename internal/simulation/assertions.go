package simulation

import (
	"math"
	"testing"
)

// AssertAmplitudeBounded asserts that every traced amplitude and every final
// amplitude lies in [0, limit].
func AssertAmplitudeBounded(t *testing.T, result *Result, limit float64) {
	t.Helper()
	for idx, points := range result.Traces {
		for _, p := range points {
			if p.Amplitude < 0 || p.Amplitude > limit {
				t.Errorf("AssertAmplitudeBounded: node %d step %d: amplitude %.6f not in [0, %.4f]", idx, p.Step, p.Amplitude, limit)
			}
		}
	}
	for idx, a := range result.Amplitudes {
		if a < 0 || a > limit {
			t.Errorf("AssertAmplitudeBounded: node %d final amplitude %.6f not in [0, %.4f]", idx, a, limit)
		}
	}
	for _, s := range result.Steps {
		if s.MeanAmplitude < 0 || s.MeanAmplitude > limit {
			t.Errorf("AssertAmplitudeBounded: step %d: mean amplitude %.6f not in [0, %.4f]", s.Step, s.MeanAmplitude, limit)
		}
	}
}

// AssertFatigueNonNegative asserts that fatigue never drops below zero.
func AssertFatigueNonNegative(t *testing.T, result *Result) {
	t.Helper()
	for idx, points := range result.Traces {
		for _, p := range points {
			if p.Fatigue < 0 {
				t.Errorf("AssertFatigueNonNegative: node %d step %d: fatigue %.6f", idx, p.Step, p.Fatigue)
			}
		}
	}
	for idx, f := range result.Fatigue {
		if f < 0 {
			t.Errorf("AssertFatigueNonNegative: node %d final fatigue %.6f", idx, f)
		}
	}
}

// AssertFinite asserts that no recorded value is NaN or infinite.
func AssertFinite(t *testing.T, result *Result) {
	t.Helper()
	bad := func(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }
	for _, s := range result.Steps {
		if bad(s.MeanAmplitude) || bad(s.MeanFatigue) || bad(s.MeanForce) {
			t.Errorf("AssertFinite: step %d: non-finite summary %+v", s.Step, s)
		}
	}
	for idx, f := range result.Frequencies {
		if bad(f) {
			t.Errorf("AssertFinite: node %d final frequency %v", idx, f)
		}
	}
}

// AssertTraceConverges asserts that a traced node's frequency stays within
// tol of target from afterStep on, unless the node is reborn.
func AssertTraceConverges(t *testing.T, result *Result, idx int, target, tol float64, afterStep int) {
	t.Helper()
	points, ok := result.Traces[idx]
	if !ok {
		t.Fatalf("AssertTraceConverges: node %d not traced", idx)
	}
	for _, p := range points {
		if p.Step < afterStep || p.Reborn {
			continue
		}
		if math.Abs(p.Frequency-target) > tol {
			t.Errorf("AssertTraceConverges: node %d step %d: frequency %.4f not within %.4f of %.4f", idx, p.Step, p.Frequency, tol, target)
			return
		}
	}
}

// AssertFrequencyFrozen asserts that a traced node's frequency does not change
// between consecutive inference steps unless the node is reborn.
func AssertFrequencyFrozen(t *testing.T, result *Result, idx int) {
	t.Helper()
	points, ok := result.Traces[idx]
	if !ok {
		t.Fatalf("AssertFrequencyFrozen: node %d not traced", idx)
	}
	for i := 1; i < len(points); i++ {
		if result.Steps[points[i].Step].Learning || points[i].Reborn {
			continue
		}
		if points[i].Frequency != points[i-1].Frequency {
			t.Errorf("AssertFrequencyFrozen: node %d step %d: frequency moved %.6f -> %.6f during inference",
				idx, points[i].Step, points[i-1].Frequency, points[i].Frequency)
		}
	}
}

// AssertQuietAfter asserts that a traced node has zero amplitude at every step
// from afterStep on.
func AssertQuietAfter(t *testing.T, result *Result, idx int, afterStep int) {
	t.Helper()
	points, ok := result.Traces[idx]
	if !ok {
		t.Fatalf("AssertQuietAfter: node %d not traced", idx)
	}
	for _, p := range points {
		if p.Step >= afterStep && p.Amplitude != 0 {
			t.Errorf("AssertQuietAfter: node %d step %d: amplitude %.6f, want 0", idx, p.Step, p.Amplitude)
			return
		}
	}
}

// AssertRebirthsBetween asserts that the total rebirth count lies in [min, max].
func AssertRebirthsBetween(t *testing.T, result *Result, min, max int) {
	t.Helper()
	total := result.TotalRebirths()
	if total < min || total > max {
		t.Errorf("AssertRebirthsBetween: %d rebirths not in [%d, %d]", total, min, max)
	}
}

// AssertRebirthResetsState asserts that every traced rebirth left the node
// with zero amplitude and zero fatigue.
func AssertRebirthResetsState(t *testing.T, result *Result) {
	t.Helper()
	for idx, points := range result.Traces {
		for _, p := range points {
			if p.Reborn && (p.Amplitude != 0 || p.Fatigue != 0) {
				t.Errorf("AssertRebirthResetsState: node %d step %d: reborn with amplitude %.6f fatigue %.6f", idx, p.Step, p.Amplitude, p.Fatigue)
			}
		}
	}
}
