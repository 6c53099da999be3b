package timer

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gosuda/boardsync/board"
	"github.com/gosuda/boardsync/server"
)

// Expiry is called when the active player's clock hits zero. It runs on a
// timer goroutine; implementations typically inject a game action such as a
// forced surrender.
type Expiry func(roomID int64, player int)

// NewServerComponent builds the timer container for a registry.
func NewServerComponent(registry *server.Registry, maxTime, increment time.Duration, log zerolog.Logger) *server.Component[State, struct{}] {
	return server.NewComponent[State, struct{}](ComponentType, false, NewReducer(maxTime, increment), Decoder, registry, log)
}

// SetActive injects a server-originated clock switch. Pass nil to pause.
func SetActive(c *server.Component[State, struct{}], roomID int64, player *int) error {
	return c.SendServerAction(roomID, &SetActivePlayer{Player: player})
}

// RestartClocks injects a server-originated reset of all clocks.
func RestartClocks(c *server.Component[State, struct{}], roomID int64) error {
	return c.SendServerAction(roomID, &Restart{})
}

// Constructor wires the timer into another component's room creation. Each
// room gets a deadline that re-arms on every clock switch and fires onExpire
// if the active player's remaining time runs out first. Room teardown stops
// the deadline.
func Constructor(c *server.Component[State, struct{}], options board.GameOptions, onExpire Expiry) server.ComponentConstructor {
	var mu sync.Mutex
	var deadline *time.Timer

	after := func(roomID int64, state State, action board.Action) {
		a, ok := action.(*SetActivePlayer)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if deadline != nil {
			deadline.Stop()
			deadline = nil
		}
		if a.Player == nil {
			return
		}
		player := *a.Player
		left := TimeLeft(state, player)
		deadline = time.AfterFunc(time.Duration(left)*time.Millisecond, func() {
			onExpire(roomID, player)
		})
	}

	inner := c.Constructor(options, after)
	return func(roomID int64) (string, func()) {
		typ, teardown := inner(roomID)
		return typ, func() {
			mu.Lock()
			if deadline != nil {
				deadline.Stop()
				deadline = nil
			}
			mu.Unlock()
			teardown()
		}
	}
}
