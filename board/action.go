// Package board holds the shared contract between the server-side component
// container and the client-side replication mirror: actions, the reducer
// signature, player validation and room data. Both halves derive game state
// exclusively through these types, which is what keeps their derivations
// identical.
package board

import (
	"encoding/json"
	"fmt"
)

// Action is a single, discriminated game input. Actions are the only way to
// mutate component state; everything else is derived.
type Action interface {
	ActionType() string
}

// Envelope is the wire form of an action: a type tag plus the marshalled
// concrete action.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decoder reconstructs a concrete action from its wire envelope.
type Decoder func(env Envelope) (Action, error)

// Encode wraps a concrete action into its wire envelope.
func Encode(a Action) (Envelope, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode action %q: %w", a.ActionType(), err)
	}
	return Envelope{Type: a.ActionType(), Payload: payload}, nil
}

// DecoderFor builds a Decoder out of a set of per-type constructors, with the
// standard newGame action always understood.
func DecoderFor(constructors map[string]func() Action) Decoder {
	return func(env Envelope) (Action, error) {
		var a Action
		switch {
		case env.Type == ActionNewGame:
			a = &NewGame{}
		case constructors[env.Type] != nil:
			a = constructors[env.Type]()
		default:
			return nil, fmt.Errorf("unknown action type %q", env.Type)
		}
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, a); err != nil {
				return nil, fmt.Errorf("decode action %q: %w", env.Type, err)
			}
		}
		return a, nil
	}
}

// ActionNewGame is the one standard action every component must handle: it
// (re)initializes the component's state for the given options.
const ActionNewGame = "newGame"

// GameOptions configures a fresh game. Components that need more settings
// embed their own options in their newGame payloads.
type GameOptions struct {
	Players int `json:"players"`
}

// NewGame is the standard (re)initialization action.
type NewGame struct {
	Options GameOptions `json:"options"`
}

func (*NewGame) ActionType() string { return ActionNewGame }
