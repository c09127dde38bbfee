package lattice

import (
	"fmt"
	"math"
	"strings"

	"github.com/nvandessel/resonet/internal/node"
)

// Coupling selects how an undriven node derives its driving signal from the
// previous step's neighbor snapshot.
type Coupling int

const (
	// CouplingResonant synthesizes the six-neighbor snapshot with
	// node.Synthesize: signed amplitude sum and weighted mean frequency.
	CouplingResonant Coupling = iota

	// CouplingAttenuated averages neighbor amplitude magnitudes and scales
	// the mean by (1 - attenuation). Frequency is the amplitude-weighted
	// centroid, or the node's own previous frequency when the neighborhood
	// carries no amplitude. Driven nodes take the magnitude of their input.
	CouplingAttenuated
)

// DefaultAttenuation is the spatial attenuation used by CouplingAttenuated.
const DefaultAttenuation = 0.15

// centroidEpsilon is the minimum total neighbor amplitude for a centroid.
const centroidEpsilon = 1e-9

func (c Coupling) String() string {
	switch c {
	case CouplingResonant:
		return "resonant"
	case CouplingAttenuated:
		return "attenuated"
	default:
		return fmt.Sprintf("coupling(%d)", int(c))
	}
}

// ParseCoupling maps a name to a Coupling. Matching is case-insensitive and
// the empty string selects CouplingResonant.
func ParseCoupling(s string) (Coupling, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "resonant":
		return CouplingResonant, nil
	case "attenuated":
		return CouplingAttenuated, nil
	default:
		return 0, fmt.Errorf("%w: unknown coupling %q (valid: resonant, attenuated)", ErrInvalidConfig, s)
	}
}

// Index returns the flat index of (x, y, z).
func (l *Lattice) Index(x, y, z int) int {
	return x + y*l.size + z*l.size*l.size
}

// Coords returns the (x, y, z) coordinates of idx.
func (l *Lattice) Coords(idx int) (x, y, z int) {
	s := l.size
	return idx % s, (idx / s) % s, idx / (s * s)
}

// Neighbors appends the in-bounds six-connected neighbors of idx to buf and
// returns it. Boundary nodes have fewer than six.
func (l *Lattice) Neighbors(idx int, buf []int) []int {
	s := l.size
	x, y, z := l.Coords(idx)
	if x > 0 {
		buf = append(buf, idx-1)
	}
	if x < s-1 {
		buf = append(buf, idx+1)
	}
	if y > 0 {
		buf = append(buf, idx-s)
	}
	if y < s-1 {
		buf = append(buf, idx+s)
	}
	if z > 0 {
		buf = append(buf, idx-s*s)
	}
	if z < s-1 {
		buf = append(buf, idx+s*s)
	}
	return buf
}

// drive computes (aSyn, fSyn) for node i from the external input, if any,
// or from the snapshot. scratch buffers are owned by the calling worker.
func (l *Lattice) drive(i int, nd *node.Node, in Signal, driven bool, nbrs []int, sigs []node.Signal) (float64, float64) {
	switch l.coupling {
	case CouplingAttenuated:
		if driven {
			return math.Abs(in.Amplitude), in.Frequency
		}
		var sumA, sumAF float64
		for _, j := range nbrs {
			a := math.Abs(l.prevAmp[j])
			sumA += a
			sumAF += a * l.prevFreq[j]
		}
		aSyn := 0.0
		if len(nbrs) > 0 {
			aSyn = sumA / float64(len(nbrs)) * (1 - l.attenuation)
		}
		fSyn := l.prevFreq[i]
		if sumA > centroidEpsilon {
			fSyn = sumAF / sumA
		}
		return aSyn, fSyn

	default:
		if driven {
			return in.Amplitude, in.Frequency
		}
		for _, j := range nbrs {
			sigs = append(sigs, node.Signal{Amplitude: l.prevAmp[j], Frequency: l.prevFreq[j]})
		}
		return nd.Synthesize(sigs)
	}
}
