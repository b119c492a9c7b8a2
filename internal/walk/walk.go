// Package walk generates random-walk sample data for exercising the codec.
package walk

import "math/rand"

// RandomWalk is a Gaussian random walk: every step adds a normally
// distributed increment to the previous value.
//
// The random source is supplied by the caller, so a walk seeded with the same
// value always produces the same sequence. A RandomWalk is not safe for
// concurrent use.
type RandomWalk struct {
	rng    *rand.Rand
	mean   float64
	stddev float64
	value  float64
}

// New returns a walk starting at start whose increments are drawn from
// N(mean, stddev²).
func New(rng *rand.Rand, start, mean, stddev float64) *RandomWalk {
	return &RandomWalk{rng: rng, mean: mean, stddev: stddev, value: start}
}

// Next advances the walk one step and returns the new value.
func (w *RandomWalk) Next() float64 {
	w.value += w.rng.NormFloat64()*w.stddev + w.mean
	return w.value
}

// Value returns the current value without advancing.
func (w *RandomWalk) Value() float64 {
	return w.value
}
