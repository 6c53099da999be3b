package random

// ClientSource is the replaying half of the RNG pair. It is seeded from the
// value broadcast with an action, serves the same stream the server drew
// from, and is cleared once the action has been applied. Draws while no seed
// is set panic with ErrNotSeeded: a reducer has no business drawing
// randomness on the client outside action replay.
type ClientSource struct {
	state  uint64
	seeded bool
}

// NewClientSource returns an unseeded client source.
func NewClientSource() *ClientSource {
	return &ClientSource{}
}

// SetSeed arms the source for one replay. A nil seed (action drew nothing)
// leaves the source unseeded.
func (s *ClientSource) SetSeed(seed *uint64) {
	if seed == nil {
		s.Reset()
		return
	}
	s.state = *seed
	s.seeded = true
}

// Reset disarms the source.
func (s *ClientSource) Reset() {
	s.state = 0
	s.seeded = false
}

func (s *ClientSource) Int(max int) int {
	return s.IntBetween(0, max-1)
}

func (s *ClientSource) IntBetween(min, max int) int {
	if !s.seeded {
		panic(ErrNotSeeded)
	}
	return intBetween(&s.state, min, max)
}

var _ Source = (*ClientSource)(nil)
