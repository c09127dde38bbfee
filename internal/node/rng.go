package node

import (
	"encoding/binary"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
)

// StreamSeed derives the two PCG seed words for a node's private random
// stream from the global seed and the node id. Distinct ids yield unrelated
// streams, so rebirth draws never depend on iteration order.
func StreamSeed(seed int64, id int) (uint64, uint64) {
	var buf [17]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(seed))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(id))

	d := xxhash.New()
	_, _ = d.Write(buf[:16])
	hi := d.Sum64()

	buf[16] = 0xA5
	lo := xxhash.Sum64(buf[:])
	return hi, lo
}

func newStream(seed int64, id int) *rand.Rand {
	hi, lo := StreamSeed(seed, id)
	return rand.New(rand.NewPCG(hi, lo))
}

// uniform draws from [min, max) on r. A degenerate range returns min.
func uniform(r *rand.Rand, min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + r.Float64()*(max-min)
}
