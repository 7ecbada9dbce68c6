package process

import (
	"hash/fnv"
	"math/rand/v2"
)

// SeedSequence derives independent, reproducible child seeds from one master seed.
type SeedSequence struct {
	master uint64
}

func NewSeedSequence(master uint64) SeedSequence {
	return SeedSequence{master: master}
}

func (s SeedSequence) Master() uint64 { return s.master }

// Child returns the seed for stream i (runs use i = run index).
func (s SeedSequence) Child(i int) uint64 {
	return splitmix64(s.master ^ splitmix64(uint64(i)+0x632be59bd9b4e019))
}

// Spawn derives a sub-sequence for a named stochastic input, so that two
// inputs realized under the same master seed never share a stream.
func (s SeedSequence) Spawn(label string) SeedSequence {
	h := fnv.New64a()
	_, _ = h.Write([]byte(label))
	return SeedSequence{master: splitmix64(s.master ^ h.Sum64())}
}

// Source returns a PCG source seeded for stream i.
func (s SeedSequence) Source(i int) rand.Source {
	c := s.Child(i)
	return rand.NewPCG(c, splitmix64(c))
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
