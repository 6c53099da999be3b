// Package random implements the deterministic RNG pair behind action
// replication. The server source mints one fresh seed per accepted action;
// the client source replays the same stream from the broadcast seed. For a
// given seed and an identical ordered sequence of draws, both sources yield
// identical values. That property is what replicated determinism rests on,
// and the tests pin it with golden vectors.
//
// The stream is splitmix64: state advances by the golden-gamma constant and
// each output is the mixed state. Bounded draws reduce the raw output with a
// plain modulo. Both details are part of the protocol; any client
// implementation in another language must match them bit for bit.
package random

import (
	"errors"
)

// Source is the draw surface reducers see.
type Source interface {
	// Int returns a value in [0, max). It panics if max <= 0.
	Int(max int) int
	// IntBetween returns a value in [min, max], both inclusive. It panics
	// if max < min.
	IntBetween(min, max int) int
}

// ErrNotSeeded is the panic value of a client-side draw outside action
// replay. Reducers only get to draw while a broadcast seed is set.
var ErrNotSeeded = errors.New("random: source not seeded")

const splitmixGamma = 0x9E3779B97F4A7C15

// next advances a splitmix64 state and returns the mixed output.
func next(state *uint64) uint64 {
	*state += splitmixGamma
	z := *state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

func intBetween(state *uint64, min, max int) int {
	if max < min {
		panic("random: empty range")
	}
	span := uint64(max-min) + 1
	if span == 0 {
		// min..max spans every int, so the raw output already is one.
		return int(next(state))
	}
	return min + int(next(state)%span)
}
