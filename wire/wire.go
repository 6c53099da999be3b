// Package wire defines the payloads exchanged over the rpc transport, shared
// verbatim by the server container and the client replication mirror.
package wire

import (
	"github.com/gosuda/boardsync/board"
	"github.com/gosuda/boardsync/hidden"
)

// ActionRequest is the body of a `<componentType>/action` call.
type ActionRequest struct {
	RoomID int64          `json:"roomId"`
	Action board.Envelope `json:"action"`
}

// ActionEvent is the body of a `<componentType>/onAction` broadcast: the
// accepted action, the RNG seed the server drew it under (nil when the
// reducer drew nothing), and the hidden-object delta computed for this
// recipient.
type ActionEvent[H any] struct {
	RoomID int64           `json:"roomId"`
	Action board.Envelope  `json:"action"`
	Seed   *uint64         `json:"seed"`
	Hidden *hidden.Info[H] `json:"hidden,omitempty"`
}

// StateRequest is the body of a `<componentType>/getGameState` call.
type StateRequest struct {
	RoomID int64 `json:"roomId"`
}

// StateResponse answers getGameState: the committed snapshot plus the hidden
// slice visible to the requesting observer.
type StateResponse[S, H any] struct {
	State  S                        `json:"state"`
	Hidden map[int]hidden.Wrapper[H] `json:"hidden,omitempty"`
}

// CreateGameRequest is the body of a `<componentType>/createGame` call.
type CreateGameRequest struct {
	Options board.GameOptions `json:"options"`
}

// JoinRequest is the body of a `game/join` call.
type JoinRequest struct {
	RoomID   int64  `json:"roomId"`
	Password string `json:"password,omitempty"`
}

// SeatRequest addresses one seat of one room (`game/takeSeat`,
// `game/leaveSeat`).
type SeatRequest struct {
	RoomID int64 `json:"roomId"`
	Seat   int   `json:"seat"`
}

// RoomRequest addresses a whole room (`game/takeAvailableSeat`,
// `game/getSeatsState`, `game/close`).
type RoomRequest struct {
	RoomID int64 `json:"roomId"`
}

// TookSeatEvent is the body of a `game/tookSeat` broadcast.
type TookSeatEvent struct {
	RoomID int64          `json:"roomId"`
	User   board.UserInfo `json:"user"`
	Seat   int            `json:"seat"`
}

// LeftSeatEvent is the body of a `game/leftSeat` broadcast.
type LeftSeatEvent struct {
	RoomID int64 `json:"roomId"`
	Seat   int   `json:"seat"`
}

// SeatsStateEvent is the body of a `game/sendSeatsState` broadcast.
type SeatsStateEvent struct {
	RoomID int64          `json:"roomId"`
	Data   board.RoomData `json:"data"`
}

// ClosedEvent is the body of a `game/closed` broadcast.
type ClosedEvent struct {
	RoomID int64 `json:"roomId"`
}
