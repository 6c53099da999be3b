package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gosuda/boardsync/board"
	"github.com/gosuda/boardsync/hidden"
	"github.com/gosuda/boardsync/random"
	"github.com/gosuda/boardsync/rpc"
	"github.com/gosuda/boardsync/wire"
)

// AfterAction runs after an action has been applied and broadcast. The timer
// component uses it to re-arm its deadline after every state change.
type AfterAction[S any] func(roomID int64, state S, action board.Action)

// BeforeAction is an extension point invoked ahead of every reducer call,
// e.g. for auditing. Returning an error aborts the action.
type BeforeAction func(roomID int64, action board.Action, v board.Validation) error

// Component is the per-component-type container: a registry of live game
// instances keyed by room id, orchestrating validation, reduction, RNG seed
// capture, hidden-object deltas and broadcast.
type Component[S, H any] struct {
	typ       string
	hasHidden bool
	reducer   board.Reducer[S, H]
	decode    board.Decoder
	registry  *Registry
	log       zerolog.Logger
	before    BeforeAction

	mu    sync.RWMutex
	games map[int64]*instance[S, H]
}

// instance is one room's live component. Its mutex serializes the (state,
// hidden queue, RNG) triple: at most one in-flight reducer invocation per
// room, ever.
type instance[S, H any] struct {
	mu      sync.Mutex
	state   S
	objects *hidden.Container[H]
	random  *random.ServerSource
	after   AfterAction[S]
}

// NewComponent creates a container for one component type. hasHidden
// declares whether instances carry a hidden-object container.
func NewComponent[S, H any](typ string, hasHidden bool, reducer board.Reducer[S, H], decode board.Decoder, registry *Registry, log zerolog.Logger) *Component[S, H] {
	return &Component[S, H]{
		typ:       typ,
		hasHidden: hasHidden,
		reducer:   reducer,
		decode:    decode,
		registry:  registry,
		log:       log.With().Str("component", typ).Logger(),
		games:     make(map[int64]*instance[S, H]),
	}
}

// SetBeforeAction installs the pre-reducer hook.
func (c *Component[S, H]) SetBeforeAction(hook BeforeAction) {
	c.before = hook
}

// AddGame creates a fresh instance for the room by running the reducer with
// a synthetic newGame action under trust-all validation.
func (c *Component[S, H]) AddGame(roomID int64, options board.GameOptions, after AfterAction[S]) error {
	inst := &instance[S, H]{
		random: random.NewServerSource(),
		after:  after,
	}
	if c.hasHidden {
		inst.objects = hidden.NewContainer[H]()
	}

	ctx := board.Context[H]{
		Validation: board.TrustingValidation(),
		Random:     inst.random,
		Objects:    objectsOrNil(inst),
	}
	state, err := c.reducer(ctx, inst.state, &board.NewGame{Options: options})
	if err != nil {
		return fmt.Errorf("initialize %s for room %d: %w", c.typ, roomID, err)
	}
	inst.state = state
	inst.random.Reset()
	if inst.objects != nil {
		inst.objects.Flush()
	}

	c.mu.Lock()
	c.games[roomID] = inst
	c.mu.Unlock()
	return nil
}

// DeleteGame drops the room's instance.
func (c *Component[S, H]) DeleteGame(roomID int64) {
	c.mu.Lock()
	delete(c.games, roomID)
	c.mu.Unlock()
}

// Constructor adapts the component into the registry's per-room constructor
// form, for wiring auxiliary components into another component's createGame.
func (c *Component[S, H]) Constructor(options board.GameOptions, after AfterAction[S]) ComponentConstructor {
	return func(roomID int64) (string, func()) {
		if err := c.AddGame(roomID, options, after); err != nil {
			c.log.Error().Err(err).Int64("room", roomID).Msg("component init failed")
		}
		return c.typ, func() { c.DeleteGame(roomID) }
	}
}

// State returns the committed state snapshot for a room.
func (c *Component[S, H]) State(roomID int64) (S, error) {
	inst, err := c.get(roomID)
	if err != nil {
		var zero S
		return zero, err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.state, nil
}

// SendServerAction injects a server-originated action, bypassing caller
// identity checks. Used by internally triggered moves such as timer expiry.
func (c *Component[S, H]) SendServerAction(roomID int64, action board.Action) error {
	env, err := board.Encode(action)
	if err != nil {
		return err
	}
	return c.apply(roomID, action, env, board.ServerValidation())
}

// Register exposes `<type>/action` and `<type>/getGameState` on the bus.
func (c *Component[S, H]) Register(bus rpc.Registrar) {
	bus.RegisterFunc(c.typ+"/action", func(p rpc.Peer, body json.RawMessage) (any, error) {
		var req wire.ActionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("decode action request: %w", err)
		}
		v, err := c.registry.ClientValidation(p.User(), req.RoomID)
		if err != nil {
			return nil, err
		}
		action, err := c.decode(req.Action)
		if err != nil {
			return nil, err
		}
		return nil, c.apply(req.RoomID, action, req.Action, v)
	})

	bus.RegisterFunc(c.typ+"/getGameState", func(p rpc.Peer, body json.RawMessage) (any, error) {
		var req wire.StateRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("decode state request: %w", err)
		}
		v, err := c.registry.ClientValidation(p.User(), req.RoomID)
		if err != nil {
			return nil, err
		}
		inst, err := c.get(req.RoomID)
		if err != nil {
			return nil, err
		}

		inst.mu.Lock()
		defer inst.mu.Unlock()
		resp := wire.StateResponse[S, H]{State: inst.state}
		if inst.objects != nil {
			resp.Hidden = inst.objects.State(v)
		}
		return resp, nil
	})
}

// CreationSettings configures RegisterWithCreation.
type CreationSettings[S any] struct {
	// Components constructs auxiliary components (chat, timer) created
	// alongside this one for every new room.
	Components func(options board.GameOptions) []ComponentConstructor
	// AfterAction is installed on every instance this registration creates.
	AfterAction AfterAction[S]
	// Timeout overrides DefaultRoomTimeout for idle-room teardown.
	Timeout time.Duration
}

// RegisterWithCreation additionally exposes `<type>/createGame`, making this
// component the room-owning one.
func (c *Component[S, H]) RegisterWithCreation(bus rpc.Registrar, settings CreationSettings[S]) {
	c.Register(bus)

	timeout := settings.Timeout
	if timeout == 0 {
		timeout = DefaultRoomTimeout
	}

	bus.RegisterFunc(c.typ+"/createGame", func(p rpc.Peer, body json.RawMessage) (any, error) {
		var req wire.CreateGameRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("decode createGame request: %w", err)
		}

		components := []ComponentConstructor{c.Constructor(req.Options, settings.AfterAction)}
		if settings.Components != nil {
			components = append(components, settings.Components(req.Options)...)
		}

		return c.registry.CreateRoomAndJoin(p, req.Options, c.typ, components, timeout), nil
	})
}

func (c *Component[S, H]) get(roomID int64) (*instance[S, H], error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst := c.games[roomID]
	if inst == nil {
		return nil, ErrGameNotFound
	}
	return inst, nil
}

// apply is the action pipeline: reduce under the instance lock, then either
// roll the hidden queue back and report the error to the caller only, or
// capture the seed, broadcast per-observer deltas, flush, and run the
// post-action hook.
func (c *Component[S, H]) apply(roomID int64, action board.Action, env board.Envelope, v board.Validation) error {
	inst, err := c.get(roomID)
	if err != nil {
		return err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if c.before != nil {
		if err := c.before(roomID, action, v); err != nil {
			return err
		}
	}

	ctx := board.Context[H]{
		Validation: v,
		Random:     inst.random,
		Objects:    objectsOrNil(inst),
	}
	next, err := c.reducer(ctx, inst.state, action)
	if err != nil {
		if inst.objects != nil {
			inst.objects.Revert()
		}
		inst.random.Reset()
		c.log.Debug().Err(err).Int64("room", roomID).Str("action", action.ActionType()).Msg("action rejected")
		return err
	}
	inst.state = next

	seed := inst.random.Seed()
	inst.random.Reset()

	group := GroupOf(roomID)
	if inst.objects != nil {
		responses := inst.objects.Responses()
		c.registry.bus.IterateGroup(group, func(p rpc.Peer) {
			observer := c.registry.ObserverValidation(p.User(), roomID)
			info := hidden.Info[H]{
				Delta:     inst.objects.StateDelta(observer),
				Responses: responses,
			}
			p.Emit(c.typ+"/onAction", wire.ActionEvent[H]{
				RoomID: roomID,
				Action: env,
				Seed:   seed,
				Hidden: &info,
			})
		})
		inst.objects.Flush()
	} else {
		c.registry.bus.EmitToGroup(group, c.typ+"/onAction", wire.ActionEvent[H]{
			RoomID: roomID,
			Action: env,
			Seed:   seed,
		})
	}

	if inst.after != nil {
		inst.after(roomID, inst.state, action)
	}
	return nil
}

func objectsOrNil[S, H any](inst *instance[S, H]) board.Objects[H] {
	if inst.objects == nil {
		return nil
	}
	return inst.objects
}
