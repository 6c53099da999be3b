package random

import (
	crand "crypto/rand"
	"encoding/binary"
)

// ServerSource is the authoritative half of the RNG pair. It lazily mints a
// fresh seed from system entropy before the first draw of each action, so
// that every accepted action gets an independent, replayable stream. Not
// safe for concurrent use; the component container serializes actions per
// room, which covers it.
type ServerSource struct {
	seed   uint64
	state  uint64
	seeded bool
}

// NewServerSource returns an unseeded server source. The first draw seeds it.
func NewServerSource() *ServerSource {
	return &ServerSource{}
}

func (s *ServerSource) Int(max int) int {
	return s.IntBetween(0, max-1)
}

func (s *ServerSource) IntBetween(min, max int) int {
	if !s.seeded {
		s.seed = mintSeed()
		s.state = s.seed
		s.seeded = true
	}
	return intBetween(&s.state, min, max)
}

// Seed returns the seed minted for the current action, or nil if the reducer
// made no draws. The returned value is what gets broadcast to clients.
func (s *ServerSource) Seed() *uint64 {
	if !s.seeded {
		return nil
	}
	seed := s.seed
	return &seed
}

// Reset discards the current stream so the next action mints its own seed.
func (s *ServerSource) Reset() {
	s.seed = 0
	s.state = 0
	s.seeded = false
}

func mintSeed() uint64 {
	var buf [8]byte
	for {
		if _, err := crand.Read(buf[:]); err != nil {
			panic("random: system entropy unavailable: " + err.Error())
		}
		if seed := binary.LittleEndian.Uint64(buf[:]); seed != 0 {
			return seed
		}
	}
}

var _ Source = (*ServerSource)(nil)
