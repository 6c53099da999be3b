package connect4

import (
	"github.com/rs/zerolog"

	"github.com/gosuda/boardsync/server"
)

// NewServerComponent builds the connect4 container for a registry.
func NewServerComponent(registry *server.Registry, log zerolog.Logger) *server.Component[State, struct{}] {
	return server.NewComponent[State, struct{}](ComponentType, false, Reducer, Decoder, registry, log)
}
