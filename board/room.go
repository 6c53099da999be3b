package board

import "time"

// UserInfo is the external identity attached to a connection by the
// authentication collaborator. The core treats it as opaque.
type UserInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"isAdmin,omitempty"`
}

// RoomData is the seating/session state of one running game instance.
type RoomData struct {
	ID             int64         `json:"id"`
	Seats          []*UserInfo   `json:"seats"`
	Type           string        `json:"type"`
	TimeoutToClose time.Duration `json:"timeoutToClose,omitempty"`
	Closed         bool          `json:"closed"`
	Password       string        `json:"password,omitempty"`
}

// CanUserMoveAsPlayer reports whether the given user occupies the given seat.
func CanUserMoveAsPlayer(userID string, room RoomData, seat int) bool {
	if seat < 0 || seat >= len(room.Seats) {
		return false
	}
	occupant := room.Seats[seat]
	return occupant != nil && occupant.ID == userID
}

// SeatOf returns the seat index the user occupies, or -1.
func SeatOf(userID string, room RoomData) int {
	for i, occupant := range room.Seats {
		if occupant != nil && occupant.ID == userID {
			return i
		}
	}
	return -1
}
