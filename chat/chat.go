// Package chat is the simplest component built on the framework: an
// append-only message log with no hidden state. It doubles as the reference
// for how a component declares its actions, reducer and wiring.
package chat

import (
	"errors"

	"github.com/gosuda/boardsync/board"
)

// ComponentType identifies the chat component on the wire.
const ComponentType = "chat"

// ErrSpoofedSender reports a message claiming an identity other than the
// sender's own.
var ErrSpoofedSender = errors.New("not allowed to send message")

// Message is one chat entry. Sender identity is carried in the action and
// checked against the validated caller, so the log itself is trustworthy.
type Message struct {
	User board.UserInfo `json:"user"`
	Text string         `json:"message"`
}

// State is the replicated chat log.
type State struct {
	Messages []Message `json:"messages"`
}

// SendMessage appends a message to the log.
type SendMessage struct {
	Message Message `json:"message"`
}

func (*SendMessage) ActionType() string { return "message" }

// Decoder understands the chat action set.
var Decoder = board.DecoderFor(map[string]func() board.Action{
	"message": func() board.Action { return &SendMessage{} },
})

// Reducer applies chat actions. Anyone in the room may chat, seated or not,
// but only as themselves.
func Reducer(ctx board.Context[struct{}], state State, action board.Action) (State, error) {
	switch a := action.(type) {
	case *board.NewGame:
		return State{}, nil
	case *SendMessage:
		if !ctx.Validation.IsUser(a.Message.User.ID, a.Message.User.Name) && !ctx.Validation.IsServerOriginating() {
			return state, ErrSpoofedSender
		}
		next := state
		next.Messages = append(append([]Message(nil), state.Messages...), a.Message)
		return next, nil
	default:
		return state, errors.New("chat: unsupported action")
	}
}
