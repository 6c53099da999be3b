package server

import "errors"

// Registry- and container-level failures. These cross the rpc boundary as
// plain messages, so the strings are part of the protocol surface.
var (
	ErrGameNotFound    = errors.New("game not found")
	ErrNotJoined       = errors.New("not joined to this game")
	ErrInvalidPassword = errors.New("invalid password")
	ErrSeatTaken       = errors.New("seat is taken")
	ErrNotAuthorized   = errors.New("not authorized")
)
