// Package reward holds the weighted-random economic tables for the game modes.
// Every function is pure apart from the random source handed to it.
package reward

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
)

// Weighted pairs an outcome with its relative weight.
type Weighted[T any] struct {
	Value  T
	Weight int
}

// Pick draws one value from table by walking the cumulative weights.
// Entries with a non-positive weight are never drawn. Pick panics on a table
// whose total weight is zero.
func Pick[T any](rng *mrand.Rand, table []Weighted[T]) T {
	total := 0
	for _, entry := range table {
		if entry.Weight > 0 {
			total += entry.Weight
		}
	}
	if total <= 0 {
		panic("reward: table has no positive weights")
	}

	roll := rng.IntN(total)
	for _, entry := range table {
		if entry.Weight <= 0 {
			continue
		}
		if roll < entry.Weight {
			return entry.Value
		}
		roll -= entry.Weight
	}
	return table[len(table)-1].Value
}

// NewRand returns a PRNG seeded from crypto/rand.
func NewRand() *mrand.Rand {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("reward: read random seed: " + err.Error())
	}
	return mrand.New(mrand.NewPCG(binary.LittleEndian.Uint64(b[:8]), binary.LittleEndian.Uint64(b[8:])))
}

// NewSeededRand returns a deterministic PRNG for replays and tests.
func NewSeededRand(seed uint64) *mrand.Rand {
	return mrand.New(mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func pickInt(rng *mrand.Rand, values []int) int {
	return values[rng.IntN(len(values))]
}
