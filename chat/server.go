package chat

import (
	"github.com/rs/zerolog"

	"github.com/gosuda/boardsync/board"
	"github.com/gosuda/boardsync/server"
)

// serverUser is the identity attached to server-originated messages.
var serverUser = board.UserInfo{ID: "server", Name: "server"}

// NewServerComponent builds the chat container for a registry.
func NewServerComponent(registry *server.Registry, log zerolog.Logger) *server.Component[State, struct{}] {
	return server.NewComponent[State, struct{}](ComponentType, false, Reducer, Decoder, registry, log)
}

// SendServerMessage posts an announcement into a room's chat, e.g. timeout
// notices from the timer component.
func SendServerMessage(c *server.Component[State, struct{}], roomID int64, text string) error {
	return c.SendServerAction(roomID, &SendMessage{Message: Message{User: serverUser, Text: text}})
}

// ConstructorWithCallback wires the chat into a room and reports every
// accepted message to cb, e.g. for moderation or logging.
func ConstructorWithCallback(c *server.Component[State, struct{}], options board.GameOptions, cb func(roomID int64, msg Message)) server.ComponentConstructor {
	after := func(roomID int64, state State, action board.Action) {
		if a, ok := action.(*SendMessage); ok && cb != nil {
			cb(roomID, a.Message)
		}
	}
	return c.Constructor(options, after)
}
