package board

type validationOrigin int

const (
	originClient validationOrigin = iota
	originServer
	originUnvalidated
)

// Validation tells a reducer who is behind the action it is applying. The
// three origins cover client calls (checked against connection identity and
// seat occupancy), server-injected actions (timers and other internal logic)
// and unvalidated applications (component initialization and client-side
// replay of already-validated broadcasts).
type Validation struct {
	origin    validationOrigin
	user      UserInfo
	seatCheck func(seat int) bool
}

// ClientValidation validates actions sent by a connected user over a room.
// seatCheck reports whether that user currently occupies a seat.
func ClientValidation(user UserInfo, seatCheck func(seat int) bool) Validation {
	return Validation{origin: originClient, user: user, seatCheck: seatCheck}
}

// ServerValidation marks an action as injected by server-side logic. It
// matches no user and no seat.
func ServerValidation() Validation {
	return Validation{origin: originServer}
}

// TrustingValidation accepts everything. Used when no caller identity exists:
// newGame initialization, and client replay of server-validated broadcasts.
func TrustingValidation() Validation {
	return Validation{origin: originUnvalidated}
}

// IsUser reports whether the acting identity matches the given id and name.
func (v Validation) IsUser(id, name string) bool {
	switch v.origin {
	case originClient:
		return v.user.ID == id && v.user.Name == name
	case originServer:
		return false
	default:
		return true
	}
}

// CanMoveAsPlayer reports whether the acting identity occupies the given
// seat. Turn legality is the reducer's business, not this predicate's.
func (v Validation) CanMoveAsPlayer(seat int) bool {
	switch v.origin {
	case originClient:
		return v.seatCheck != nil && v.seatCheck(seat)
	case originServer:
		return false
	default:
		return true
	}
}

// IsServerOriginating reports whether the action was injected by server-side
// logic rather than a client call.
func (v Validation) IsServerOriginating() bool {
	return v.origin != originClient
}
