package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gosuda/boardsync/board"
	"github.com/gosuda/boardsync/hidden"
	"github.com/gosuda/boardsync/random"
	"github.com/gosuda/boardsync/wire"
)

// Component replicates one game component of the joined room. Broadcast
// actions run through the same reducer as on the server, with the
// server's seed replayed and hidden lookups answered from the recorded
// responses, so both sides compute identical states.
type Component[S, H any] struct {
	room    *Room
	typ     string
	reducer board.Reducer[S, H]
	decode  board.Decoder
	random  *random.ClientSource
	log     zerolog.Logger

	mu       sync.Mutex
	hasState bool
	state    S
	view     *hidden.View[H]
	cancels  []func()

	afterMu sync.Mutex
	afterID int
	after   map[int]func(board.Action)
}

// NewComponent builds a replication client for the given component type.
func NewComponent[S, H any](room *Room, typ string, reducer board.Reducer[S, H], decode board.Decoder, log zerolog.Logger) *Component[S, H] {
	return &Component[S, H]{
		room:    room,
		typ:     typ,
		reducer: reducer,
		decode:  decode,
		random:  random.NewClientSource(),
		log:     log.With().Str("component", typ+"-client").Logger(),
		view:    hidden.NewView[H](),
		after:   map[int]func(board.Action){},
	}
}

// Room returns the room this component replicates within.
func (c *Component[S, H]) Room() *Room {
	return c.room
}

// Initialize subscribes to action broadcasts and fetches the current
// state. It also re-fetches after every re-authorization, since actions
// broadcast while disconnected are lost, not queued.
func (c *Component[S, H]) Initialize(ctx context.Context) error {
	c.Deinitialize()

	caller := c.room.Caller()
	c.mu.Lock()
	c.cancels = append(c.cancels,
		caller.On(c.typ+"/onAction", c.handleAction),
		caller.OnAuthorized(func() {
			if err := c.Resync(context.Background()); err != nil {
				c.log.Error().Err(err).Msg("resync after reauthorization failed")
			}
		}),
	)
	c.mu.Unlock()

	return c.Resync(ctx)
}

// Deinitialize unsubscribes the component's handlers and drops its state.
func (c *Component[S, H]) Deinitialize() {
	c.mu.Lock()
	cancels := c.cancels
	c.cancels = nil
	c.hasState = false
	c.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// Resync fetches the full state and visible hidden objects, replacing
// whatever the client held before.
func (c *Component[S, H]) Resync(ctx context.Context) error {
	var resp wire.StateResponse[S, H]
	err := c.room.Caller().Call(ctx, c.typ+"/getGameState",
		wire.StateRequest{RoomID: c.room.RoomID()}, &resp)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.state = resp.State
	c.view.ApplyState(resp.Hidden)
	c.hasState = true
	c.mu.Unlock()
	return nil
}

// SendAction submits an action to the server. The local state is not
// touched; it changes only when the server broadcasts the action back.
func (c *Component[S, H]) SendAction(ctx context.Context, action board.Action) error {
	env, err := board.Encode(action)
	if err != nil {
		return err
	}
	return c.room.Caller().Call(ctx, c.typ+"/action",
		wire.ActionRequest{RoomID: c.room.RoomID(), Action: env}, nil)
}

// RestartGame submits a newGame action with the given options.
func (c *Component[S, H]) RestartGame(ctx context.Context, options board.GameOptions) error {
	return c.SendAction(ctx, &board.NewGame{Options: options})
}

// HasState reports whether the component holds a state in sync with the
// server. It turns false after a replay failure until the next Resync.
func (c *Component[S, H]) HasState() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasState
}

// State returns the replicated state.
func (c *Component[S, H]) State() S {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HiddenObject returns a hidden object by id, if it is visible to this
// client.
func (c *Component[S, H]) HiddenObject(id int) (H, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.Get(id)
}

// HiddenObjects returns all hidden objects visible to this client.
func (c *Component[S, H]) HiddenObjects() map[int]H {
	c.mu.Lock()
	defer c.mu.Unlock()
	objects := make(map[int]H, len(c.view.Objects()))
	for id, obj := range c.view.Objects() {
		objects[id] = obj
	}
	return objects
}

// OnAfterAction registers an observer called after each successfully
// replayed action. The returned function unregisters it.
func (c *Component[S, H]) OnAfterAction(fn func(board.Action)) func() {
	c.afterMu.Lock()
	defer c.afterMu.Unlock()
	c.afterID++
	id := c.afterID
	c.after[id] = fn
	return func() {
		c.afterMu.Lock()
		defer c.afterMu.Unlock()
		delete(c.after, id)
	}
}

func (c *Component[S, H]) handleAction(body json.RawMessage) {
	var ev wire.ActionEvent[H]
	if err := json.Unmarshal(body, &ev); err != nil {
		c.log.Error().Err(err).Msg("malformed action broadcast")
		return
	}

	c.mu.Lock()
	if !c.hasState || ev.RoomID != c.room.RoomID() {
		c.mu.Unlock()
		return
	}

	action, err := c.decode(ev.Action)
	if err != nil {
		// The server broadcast an action this build cannot decode. The
		// replica cannot apply it, so it has diverged and must be rebuilt
		// from a full fetch.
		c.log.Error().Err(err).Str("type", ev.Action.Type).Msg("unknown action broadcast, state out of sync")
		c.hasState = false
		c.mu.Unlock()
		return
	}

	var objects board.Objects[H]
	if ev.Hidden != nil {
		c.view.ApplyDelta(ev.Hidden.Delta)
		objects = hidden.NewReplay[H](ev.Hidden.Responses)
	}
	c.random.SetSeed(ev.Seed)

	ctx := board.Context[H]{
		Validation: board.TrustingValidation(),
		Random:     c.random,
		Objects:    objects,
	}
	next, err := c.replay(ctx, action)
	c.random.Reset()
	if err != nil {
		// The server accepted this action; a local failure means the
		// replica has diverged and must be rebuilt from a full fetch.
		c.log.Error().Err(err).Str("type", action.ActionType()).Msg("replay failed, state out of sync")
		c.hasState = false
		c.mu.Unlock()
		return
	}
	c.state = next
	c.mu.Unlock()

	c.afterMu.Lock()
	observers := make([]func(board.Action), 0, len(c.after))
	for _, fn := range c.after {
		observers = append(observers, fn)
	}
	c.afterMu.Unlock()
	for _, fn := range observers {
		fn(action)
	}
}

func (c *Component[S, H]) replay(ctx board.Context[H], action board.Action) (next S, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("reducer panic: %v", r)
			}
		}
	}()
	return c.reducer(ctx, c.state, action)
}
