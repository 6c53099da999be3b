// Package client mirrors the server container on the other side of the
// wire: a room client tracking seats and session, and a component client
// that re-applies broadcast actions through the same reducer, seeded
// identically, to reconstruct the same state.
package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gosuda/boardsync/board"
	"github.com/gosuda/boardsync/rpc"
	"github.com/gosuda/boardsync/wire"
)

// Room tracks one joined game room: its id, join password and a local
// mirror of the seating state, updated from game/* broadcasts.
type Room struct {
	caller rpc.Caller
	log    zerolog.Logger

	mu       sync.Mutex
	hasRoom  bool
	roomID   int64
	password string
	data     board.RoomData
	cancels  []func()
}

// NewRoom wraps a connected caller and subscribes to seating broadcasts.
func NewRoom(caller rpc.Caller, log zerolog.Logger) *Room {
	r := &Room{
		caller: caller,
		log:    log.With().Str("component", "room-client").Logger(),
	}

	r.cancels = append(r.cancels,
		caller.On("game/tookSeat", func(body json.RawMessage) {
			var ev wire.TookSeatEvent
			if err := json.Unmarshal(body, &ev); err != nil {
				return
			}
			r.mu.Lock()
			defer r.mu.Unlock()
			if !r.hasRoom || ev.RoomID != r.roomID {
				return
			}
			if ev.Seat >= 0 && ev.Seat < len(r.data.Seats) {
				user := ev.User
				r.data.Seats[ev.Seat] = &user
			}
		}),
		caller.On("game/leftSeat", func(body json.RawMessage) {
			var ev wire.LeftSeatEvent
			if err := json.Unmarshal(body, &ev); err != nil {
				return
			}
			r.mu.Lock()
			defer r.mu.Unlock()
			if !r.hasRoom || ev.RoomID != r.roomID {
				return
			}
			if ev.Seat >= 0 && ev.Seat < len(r.data.Seats) {
				r.data.Seats[ev.Seat] = nil
			}
		}),
		caller.On("game/sendSeatsState", func(body json.RawMessage) {
			var ev wire.SeatsStateEvent
			if err := json.Unmarshal(body, &ev); err != nil {
				return
			}
			r.mu.Lock()
			defer r.mu.Unlock()
			if !r.hasRoom || ev.RoomID != r.roomID {
				return
			}
			r.data = ev.Data
		}),
		caller.On("game/closed", func(body json.RawMessage) {
			var ev wire.ClosedEvent
			if err := json.Unmarshal(body, &ev); err != nil {
				return
			}
			r.mu.Lock()
			defer r.mu.Unlock()
			if !r.hasRoom || ev.RoomID != r.roomID {
				return
			}
			r.data.Closed = true
		}),
	)

	return r
}

// Caller exposes the underlying connection, for component clients.
func (r *Room) Caller() rpc.Caller {
	return r.caller
}

// Create asks the room-owning component to create a room and records the
// returned id and generated password.
func (r *Room) Create(ctx context.Context, gameType string, options board.GameOptions) (int64, string, error) {
	var data board.RoomData
	err := r.caller.Call(ctx, gameType+"/createGame", wire.CreateGameRequest{Options: options}, &data)
	if err != nil {
		return 0, "", err
	}

	r.mu.Lock()
	r.hasRoom = true
	r.roomID = data.ID
	r.password = data.Password
	r.data = data
	r.mu.Unlock()
	return data.ID, data.Password, nil
}

// Join joins a room and fetches its seating state.
func (r *Room) Join(ctx context.Context, roomID int64, password string) error {
	var joined int64
	if err := r.caller.Call(ctx, "game/join", wire.JoinRequest{RoomID: roomID, Password: password}, &joined); err != nil {
		return err
	}

	r.mu.Lock()
	r.hasRoom = true
	r.roomID = roomID
	r.password = password
	r.mu.Unlock()

	_, err := r.GetSeatsState(ctx)
	return err
}

// Rejoin re-enters the room after a reconnect, using the remembered
// password. State is re-fetched, never replayed.
func (r *Room) Rejoin(ctx context.Context) error {
	r.mu.Lock()
	hasRoom, roomID, password := r.hasRoom, r.roomID, r.password
	r.mu.Unlock()
	if !hasRoom {
		return nil
	}
	return r.Join(ctx, roomID, password)
}

// GetSeatsState fetches the room data and refreshes the local mirror.
func (r *Room) GetSeatsState(ctx context.Context) (board.RoomData, error) {
	r.mu.Lock()
	roomID := r.roomID
	r.mu.Unlock()

	var data board.RoomData
	if err := r.caller.Call(ctx, "game/getSeatsState", wire.RoomRequest{RoomID: roomID}, &data); err != nil {
		return board.RoomData{}, err
	}

	r.mu.Lock()
	r.data = data
	r.mu.Unlock()
	return data, nil
}

// TakeSeat claims the given seat.
func (r *Room) TakeSeat(ctx context.Context, seat int) error {
	return r.caller.Call(ctx, "game/takeSeat", wire.SeatRequest{RoomID: r.RoomID(), Seat: seat}, nil)
}

// LeaveSeat releases the given seat.
func (r *Room) LeaveSeat(ctx context.Context, seat int) error {
	return r.caller.Call(ctx, "game/leaveSeat", wire.SeatRequest{RoomID: r.RoomID(), Seat: seat}, nil)
}

// TakeAvailableSeat claims the first free seat, returning its index or -1
// when the room is full.
func (r *Room) TakeAvailableSeat(ctx context.Context) (int, error) {
	seat := -1
	err := r.caller.Call(ctx, "game/takeAvailableSeat", wire.RoomRequest{RoomID: r.RoomID()}, &seat)
	return seat, err
}

// Close tears the room down (admin only).
func (r *Room) Close(ctx context.Context) error {
	return r.caller.Call(ctx, "game/close", wire.RoomRequest{RoomID: r.RoomID()}, nil)
}

// RoomID returns the joined room's id, or 0 if none.
func (r *Room) RoomID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomID
}

// Data returns the local mirror of the room's seating state.
func (r *Room) Data() board.RoomData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

// SeatOf returns the seat this client's user occupies, or -1.
func (r *Room) SeatOf() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return board.SeatOf(r.caller.User().ID, r.data)
}

// HasSeat reports whether this client's user occupies the given seat.
func (r *Room) HasSeat(seat int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return board.CanUserMoveAsPlayer(r.caller.User().ID, r.data, seat)
}

// IsSeatEmpty reports whether the given seat is free.
func (r *Room) IsSeatEmpty(seat int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return seat >= 0 && seat < len(r.data.Seats) && r.data.Seats[seat] == nil
}

// DetachEvents unsubscribes the room's broadcast handlers.
func (r *Room) DetachEvents() {
	for _, cancel := range r.cancels {
		cancel()
	}
	r.cancels = nil
}
