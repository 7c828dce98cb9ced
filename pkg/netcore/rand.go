package netcore

import "math/rand"

// jitterSource is the subset of *rand.Rand the reactor needs for
// dial-stagger jitter. Protocol takes one at construction so tests can
// supply a seeded *rand.Rand for reproducible runs instead of the
// reactor reaching for the global source.
type jitterSource interface {
	Float64() float64
}

// backoffJitter returns a duration-independent multiplier in [0.8, 1.2).
// Initialize uses it to space out its initial dials to persistent peers;
// reconnects after a disconnect are not jittered.
func backoffJitter(src jitterSource) float64 {
	return 0.8 + 0.4*src.Float64()
}

// defaultRand returns a *rand.Rand seeded from the runtime's default
// source, for hosts that don't care about reproducibility.
func defaultRand() *rand.Rand {
	return rand.New(rand.NewSource(rand.Int63()))
}
