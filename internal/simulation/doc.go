// Package simulation provides a scenario harness for running resonant
// lattices over many steps and validating their emergent dynamics.
//
// The harness exercises the real lattice and node update rules; no mocks.
// Scenarios are Go values describing a lattice, an input schedule and a
// learning/inference schedule. The Runner steps the lattice, capturing
// per-step summaries and per-node traces for property-based assertions.
//
// Usage:
//
//	func TestTunneling(t *testing.T) {
//	    r := simulation.NewRunner()
//	    result, err := r.Run(ctx, simulation.Tunneling(4))
//	    require.NoError(t, err)
//	    simulation.AssertAmplitudeBounded(t, result, node.DefaultParams().AmplitudeLimit)
//	    simulation.AssertTraceConverges(t, result, 0, 25, 1, 150)
//	}
package simulation
