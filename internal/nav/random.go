package nav

import (
	"hash/fnv"
	"math/rand"
)

// DeterministicSeedValue folds a root seed string and a label into a stable
// 64-bit seed so independent subsystems draw from reproducible, decorrelated
// streams.
func DeterministicSeedValue(rootSeed, label string) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(rootSeed))
	hasher.Write([]byte{0})
	hasher.Write([]byte(label))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

// NewDeterministicRNG builds a seeded RNG for the given subsystem label.
func NewDeterministicRNG(rootSeed, label string) *rand.Rand {
	return rand.New(rand.NewSource(DeterministicSeedValue(rootSeed, label)))
}

func randomRange(rng *rand.Rand, min, max float64) float64 {
	if rng == nil || max <= min {
		return min
	}
	return min + rng.Float64()*(max-min)
}

// randomJitter draws a symmetric perturbation in [-spread, spread].
func randomJitter(rng *rand.Rand, spread float64) float64 {
	if rng == nil || spread <= 0 {
		return 0
	}
	return (rng.Float64()*2 - 1) * spread
}
