// Package server hosts the authoritative side of the framework: the
// game-room registry (creation, seating, join gating, idle teardown) and the
// per-component-type container that validates, reduces and broadcasts
// actions.
package server

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gosuda/boardsync/board"
	"github.com/gosuda/boardsync/rpc"
	"github.com/gosuda/boardsync/wire"
)

// DefaultRoomTimeout is how long an empty room survives before it is torn
// down, unless creation settings override it.
const DefaultRoomTimeout = 5 * time.Minute

// ComponentConstructor instantiates one component for a freshly created
// room and returns the component type plus its teardown.
type ComponentConstructor func(roomID int64) (componentType string, teardown func())

// GroupOf names the broadcast group scoping a room's members.
func GroupOf(roomID int64) string {
	return fmt.Sprintf("game/%d", roomID)
}

type gameRoom struct {
	data      board.RoomData
	joined    map[string]int
	teardowns map[string]func()
}

// Registry owns every live room. It is an explicit object rather than
// process-wide state so that several independent servers can coexist in one
// process (and in tests).
type Registry struct {
	bus rpc.Registrar
	log zerolog.Logger

	mu     sync.Mutex
	rooms  map[int64]*gameRoom
	lastID int64
}

// NewRegistry creates a registry and registers the game/* rpc surface on the
// bus.
func NewRegistry(bus rpc.Registrar, log zerolog.Logger) *Registry {
	r := &Registry{
		bus:   bus,
		log:   log.With().Str("component", "registry").Logger(),
		rooms: make(map[int64]*gameRoom),
	}
	r.register()
	return r
}

// CreateRoom allocates a room, generates its join password, and instantiates
// every given component for it.
func (r *Registry) CreateRoom(options board.GameOptions, gameType string, components []ComponentConstructor, timeout time.Duration) board.RoomData {
	r.mu.Lock()
	r.lastID++
	id := r.lastID

	room := &gameRoom{
		data: board.RoomData{
			ID:             id,
			Seats:          make([]*board.UserInfo, options.Players),
			Type:           gameType,
			TimeoutToClose: timeout,
			Password:       randomPassword(8),
		},
		joined:    make(map[string]int),
		teardowns: make(map[string]func()),
	}
	r.mu.Unlock()

	for _, construct := range components {
		typ, teardown := construct(id)
		room.teardowns[typ] = teardown
	}

	r.mu.Lock()
	r.rooms[id] = room
	r.mu.Unlock()

	r.armIdleTimeout(id, timeout)
	r.log.Info().Int64("room", id).Str("type", gameType).Int("seats", options.Players).Msg("room created")
	return room.data
}

// CreateRoomAndJoin creates a room and joins the creating peer to it.
func (r *Registry) CreateRoomAndJoin(p rpc.Peer, options board.GameOptions, gameType string, components []ComponentConstructor, timeout time.Duration) board.RoomData {
	data := r.CreateRoom(options, gameType, components, timeout)

	r.mu.Lock()
	if room := r.rooms[data.ID]; room != nil {
		room.joined[p.User().ID]++
	}
	r.mu.Unlock()

	p.Join(GroupOf(data.ID))
	return data
}

// RoomData returns a snapshot of the room's seating state.
func (r *Registry) RoomData(roomID int64) (board.RoomData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[roomID]
	if room == nil {
		return board.RoomData{}, ErrGameNotFound
	}
	return snapshotData(room), nil
}

// BroadcastSeatsState pushes the current seating snapshot to every member.
// Seat changes already broadcast incrementally; this is for application code
// that rearranged seats directly.
func (r *Registry) BroadcastSeatsState(roomID int64) error {
	data, err := r.RoomData(roomID)
	if err != nil {
		return err
	}
	r.bus.EmitToGroup(GroupOf(roomID), "game/sendSeatsState", wire.SeatsStateEvent{RoomID: roomID, Data: data})
	return nil
}

// CloseRoom removes a room and tears down all its components.
func (r *Registry) CloseRoom(roomID int64) {
	r.mu.Lock()
	room := r.rooms[roomID]
	delete(r.rooms, roomID)
	r.mu.Unlock()
	if room == nil {
		return
	}

	for _, teardown := range room.teardowns {
		teardown()
	}
	r.bus.OnGroupEmptied(GroupOf(roomID), nil)
	r.log.Info().Int64("room", roomID).Msg("room closed")
}

// ClientValidation builds the validation for an action sent by user against
// a room: identity match plus live seat-occupancy checks. Fails when the
// room is gone or the user never joined it.
func (r *Registry) ClientValidation(user board.UserInfo, roomID int64) (board.Validation, error) {
	r.mu.Lock()
	room := r.rooms[roomID]
	if room == nil {
		r.mu.Unlock()
		return board.Validation{}, ErrGameNotFound
	}
	if room.joined[user.ID] == 0 {
		r.mu.Unlock()
		return board.Validation{}, ErrNotJoined
	}
	r.mu.Unlock()

	return board.ClientValidation(user, func(seat int) bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		room := r.rooms[roomID]
		if room == nil {
			return false
		}
		return board.CanUserMoveAsPlayer(user.ID, room.data, seat)
	}), nil
}

// ObserverValidation is ClientValidation for a peer already known to be a
// group member, used when fanning out per-recipient hidden deltas.
func (r *Registry) ObserverValidation(user board.UserInfo, roomID int64) board.Validation {
	return board.ClientValidation(user, func(seat int) bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		room := r.rooms[roomID]
		if room == nil {
			return false
		}
		return board.CanUserMoveAsPlayer(user.ID, room.data, seat)
	})
}

func (r *Registry) register() {
	r.bus.RegisterFunc("game/join", func(p rpc.Peer, body json.RawMessage) (any, error) {
		var req wire.JoinRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("decode join request: %w", err)
		}
		if err := r.join(p, req.RoomID, req.Password); err != nil {
			return nil, err
		}
		return req.RoomID, nil
	})

	r.bus.RegisterFunc("game/takeSeat", func(p rpc.Peer, body json.RawMessage) (any, error) {
		var req wire.SeatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("decode seat request: %w", err)
		}
		return nil, r.takeSeat(p, req.RoomID, req.Seat)
	})

	r.bus.RegisterFunc("game/leaveSeat", func(p rpc.Peer, body json.RawMessage) (any, error) {
		var req wire.SeatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("decode seat request: %w", err)
		}
		return nil, r.leaveSeat(p, req.RoomID, req.Seat)
	})

	r.bus.RegisterFunc("game/takeAvailableSeat", func(p rpc.Peer, body json.RawMessage) (any, error) {
		var req wire.RoomRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("decode room request: %w", err)
		}
		return r.takeAvailableSeat(p, req.RoomID)
	})

	r.bus.RegisterFunc("game/getSeatsState", func(p rpc.Peer, body json.RawMessage) (any, error) {
		var req wire.RoomRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("decode room request: %w", err)
		}
		return r.seatsState(p, req.RoomID)
	})

	r.bus.RegisterFunc("game/close", func(p rpc.Peer, body json.RawMessage) (any, error) {
		var req wire.RoomRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("decode room request: %w", err)
		}
		return nil, r.close(p, req.RoomID)
	})
}

func (r *Registry) join(p rpc.Peer, roomID int64, password string) error {
	r.mu.Lock()
	room := r.rooms[roomID]
	if room == nil {
		r.mu.Unlock()
		return ErrGameNotFound
	}
	if room.data.Password != "" && room.data.Password != password {
		r.mu.Unlock()
		return ErrInvalidPassword
	}
	room.joined[p.User().ID]++
	r.mu.Unlock()

	p.Join(GroupOf(roomID))
	return nil
}

func (r *Registry) takeSeat(p rpc.Peer, roomID int64, seat int) error {
	user := p.User()

	r.mu.Lock()
	room, err := r.joinedRoom(user.ID, roomID)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if seat < 0 || seat >= len(room.data.Seats) {
		r.mu.Unlock()
		return ErrSeatTaken
	}
	if room.data.Seats[seat] != nil {
		r.mu.Unlock()
		return ErrSeatTaken
	}
	occupant := user
	room.data.Seats[seat] = &occupant
	r.mu.Unlock()

	r.bus.EmitToGroup(GroupOf(roomID), "game/tookSeat", wire.TookSeatEvent{RoomID: roomID, User: user, Seat: seat})
	return nil
}

func (r *Registry) leaveSeat(p rpc.Peer, roomID int64, seat int) error {
	user := p.User()

	r.mu.Lock()
	room, err := r.joinedRoom(user.ID, roomID)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if seat < 0 || seat >= len(room.data.Seats) {
		r.mu.Unlock()
		return ErrNotAuthorized
	}
	occupant := room.data.Seats[seat]
	if occupant == nil || occupant.ID != user.ID {
		r.mu.Unlock()
		return ErrNotAuthorized
	}
	room.data.Seats[seat] = nil
	r.mu.Unlock()

	r.bus.EmitToGroup(GroupOf(roomID), "game/leftSeat", wire.LeftSeatEvent{RoomID: roomID, Seat: seat})
	return nil
}

func (r *Registry) takeAvailableSeat(p rpc.Peer, roomID int64) (int, error) {
	user := p.User()

	r.mu.Lock()
	room, err := r.joinedRoom(user.ID, roomID)
	if err != nil {
		r.mu.Unlock()
		return -1, err
	}

	if already := board.SeatOf(user.ID, room.data); already != -1 {
		r.mu.Unlock()
		return already, nil
	}

	seat := -1
	for i, occupant := range room.data.Seats {
		if occupant == nil {
			seat = i
			break
		}
	}
	if seat == -1 {
		r.mu.Unlock()
		return -1, nil
	}
	occupant := user
	room.data.Seats[seat] = &occupant
	r.mu.Unlock()

	r.bus.EmitToGroup(GroupOf(roomID), "game/tookSeat", wire.TookSeatEvent{RoomID: roomID, User: user, Seat: seat})
	return seat, nil
}

func (r *Registry) seatsState(p rpc.Peer, roomID int64) (board.RoomData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, err := r.joinedRoom(p.User().ID, roomID)
	if err != nil {
		return board.RoomData{}, err
	}
	return snapshotData(room), nil
}

func (r *Registry) close(p rpc.Peer, roomID int64) error {
	if !p.User().IsAdmin {
		return ErrNotAuthorized
	}

	r.mu.Lock()
	_, err := r.joinedRoom(p.User().ID, roomID)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	r.CloseRoom(roomID)
	r.bus.EmitToGroup(GroupOf(roomID), "game/closed", wire.ClosedEvent{RoomID: roomID})
	return nil
}

// joinedRoom looks up a room and checks membership. Callers hold r.mu.
func (r *Registry) joinedRoom(userID string, roomID int64) (*gameRoom, error) {
	room := r.rooms[roomID]
	if room == nil {
		return nil, ErrGameNotFound
	}
	if room.joined[userID] == 0 {
		return nil, ErrNotJoined
	}
	return room, nil
}

// armIdleTimeout schedules deletion for when the room's group stays empty
// for the configured lifetime. Membership coming back before the timer
// fires keeps the room alive.
func (r *Registry) armIdleTimeout(roomID int64, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	group := GroupOf(roomID)
	r.bus.OnGroupEmptied(group, func() {
		time.AfterFunc(timeout, func() {
			if r.bus.GroupMembers(group) > 0 {
				return
			}
			r.log.Info().Int64("room", roomID).Msg("deleting idle room")
			r.CloseRoom(roomID)
		})
	})
}

func snapshotData(room *gameRoom) board.RoomData {
	data := room.data
	data.Seats = make([]*board.UserInfo, len(room.data.Seats))
	for i, occupant := range room.data.Seats {
		if occupant != nil {
			copied := *occupant
			data.Seats[i] = &copied
		}
	}
	return data
}

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomPassword(length int) string {
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = passwordAlphabet[rand.Intn(len(passwordAlphabet))]
	}
	return string(buf)
}
