// Package timer is a per-player chess clock component. The active player's
// clock runs against wall-clock timestamps, so unlike the other components
// its replicated timestamps are approximate across machines; only the
// server's view arms deadlines.
package timer

import (
	"errors"
	"time"

	"github.com/gosuda/boardsync/board"
)

// ComponentType identifies the timer component on the wire.
const ComponentType = "timer"

// ErrNotServerOriginating reports a clock action submitted by a client.
// Clocks are switched by the game server, never by players directly.
var ErrNotServerOriginating = errors.New("not server originating")

// nowMillis is swapped out in tests.
var nowMillis = func() int64 { return time.Now().UnixMilli() }

// PlayerClock is one player's accumulated time. Times are milliseconds.
type PlayerClock struct {
	ElapsedTime    int64  `json:"elapsedTime"`
	Activations    int    `json:"activations"`
	LastActivation *int64 `json:"lastActivationTimestamp,omitempty"`
}

// State is the replicated clock state. MaxTime and Increment travel in the
// state so a fetched replica carries the room's actual configuration.
type State struct {
	ActivePlayer *int          `json:"activePlayer,omitempty"`
	MaxTime      int64         `json:"maxTime"`
	Increment    int64         `json:"perActivationTimeIncrement"`
	Players      []PlayerClock `json:"players"`
}

// SetActivePlayer switches whose clock runs. A nil player pauses all clocks.
type SetActivePlayer struct {
	Player *int `json:"player,omitempty"`
}

func (*SetActivePlayer) ActionType() string { return "setActivePlayer" }

// Restart zeroes every clock, keeping the configuration.
type Restart struct{}

func (*Restart) ActionType() string { return "restart" }

// Decoder understands the timer action set.
var Decoder = board.DecoderFor(map[string]func() board.Action{
	"setActivePlayer": func() board.Action { return &SetActivePlayer{} },
	"restart":         func() board.Action { return &Restart{} },
})

// TimeLeft returns the remaining milliseconds for a player, counting a
// running clock against the current time. Never negative.
func TimeLeft(state State, player int) int64 {
	return timeLeftAt(state, player, nowMillis())
}

func timeLeftAt(state State, player int, now int64) int64 {
	if player < 0 || player >= len(state.Players) {
		return 0
	}
	clock := state.Players[player]
	elapsed := clock.ElapsedTime
	if clock.LastActivation != nil {
		elapsed += now - *clock.LastActivation
	}

	var increment int64
	if clock.Activations > 0 {
		increment = int64(clock.Activations-1) * state.Increment
	}
	left := state.MaxTime + increment - elapsed
	if left < 0 {
		return 0
	}
	return left
}

// NewReducer builds the timer reducer for a fixed time budget and
// per-activation increment. Server and replicating clients must construct it
// with identical settings, since a restart rebuilds clocks from them.
func NewReducer(maxTime, increment time.Duration) board.Reducer[State, struct{}] {
	return func(ctx board.Context[struct{}], state State, action board.Action) (State, error) {
		switch a := action.(type) {
		case *board.NewGame:
			return State{
				MaxTime:   maxTime.Milliseconds(),
				Increment: increment.Milliseconds(),
				Players:   make([]PlayerClock, a.Options.Players),
			}, nil
		case *Restart:
			next := state
			next.ActivePlayer = nil
			next.Players = make([]PlayerClock, len(state.Players))
			return next, nil
		case *SetActivePlayer:
			if !ctx.Validation.IsServerOriginating() {
				return state, ErrNotServerOriginating
			}
			return setActivePlayer(state, a.Player), nil
		default:
			return state, errors.New("timer: unsupported action")
		}
	}
}

func setActivePlayer(state State, player *int) State {
	now := nowMillis()
	players := append([]PlayerClock(nil), state.Players...)

	if cur := state.ActivePlayer; cur != nil && players[*cur].LastActivation != nil {
		players[*cur].ElapsedTime += now - *players[*cur].LastActivation
		players[*cur].LastActivation = nil
	}
	if player != nil {
		players[*player].Activations++
		ts := now
		players[*player].LastActivation = &ts
	}

	next := state
	next.ActivePlayer = player
	next.Players = players
	return next
}
