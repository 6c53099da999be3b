// Package rpc is the wire layer under the game framework: JSON frames over a
// websocket, giving request/response calls, pub/sub group broadcast, and
// connection lifecycle events. The server half hands authenticated peers to
// registered handlers; the client half mirrors calls and event
// subscriptions. An in-process implementation of the same contracts backs
// the tests.
package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gosuda/boardsync/board"
)

// Frame kinds. The first frame on a connection must be an auth frame; after
// a successful auth, calls flow client → server and events server → client.
const (
	kindAuth   = "auth"
	kindCall   = "call"
	kindResult = "result"
	kindError  = "error"
	kindEvent  = "event"
)

type frame struct {
	Kind   string          `json:"kind"`
	ID     uint64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type authRequest struct {
	Token string `json:"token"`
}

// ErrMethodNotFound reports a call to an unregistered method.
var ErrMethodNotFound = errors.New("rpc: method not found")

// ErrNotAuthorized reports a rejected or missing authentication.
var ErrNotAuthorized = errors.New("rpc: not authorized")

// ErrDisconnected reports a call attempted on a closed connection.
var ErrDisconnected = errors.New("rpc: disconnected")

// AuthFunc maps an opaque token to a user identity, or rejects it. Supplied
// by the consuming application.
type AuthFunc func(token string) (board.UserInfo, error)

// Peer is one authenticated connection as seen by server-side handlers.
type Peer interface {
	// User returns the identity the auth collaborator attached.
	User() board.UserInfo
	// Join adds the peer to a broadcast group.
	Join(group string)
	// Leave removes the peer from a broadcast group.
	Leave(group string)
	// Emit sends an event to this peer only.
	Emit(method string, body any)
}

// Handler serves one registered method. The returned value is marshalled
// back to the caller; an error is returned to the caller only and reaches no
// one else.
type Handler func(peer Peer, body json.RawMessage) (any, error)

// Registrar is the server surface the framework registers itself against.
// Implemented by Server and by the in-process Local transport.
type Registrar interface {
	RegisterFunc(method string, h Handler)
	// OnGroupEmptied installs a callback fired whenever the group's
	// membership drops to zero. A nil fn removes the callback.
	OnGroupEmptied(group string, fn func())
	GroupMembers(group string) int
	EmitToGroup(group, method string, body any)
	// IterateGroup visits every current member, for per-recipient payloads.
	IterateGroup(group string, fn func(p Peer))
}

// Caller is the client surface the replication layer talks through.
// Implemented by Client and by in-process local peers.
type Caller interface {
	// Call invokes a server method and unmarshals the result into out (out
	// may be nil). Server-side handler errors come back as plain errors.
	Call(ctx context.Context, method string, in, out any) error
	// On subscribes to a server event. The returned func unsubscribes.
	On(method string, fn func(body json.RawMessage)) (cancel func())
	// OnDisconnected registers a connection-loss observer.
	OnDisconnected(fn func(err error)) (cancel func())
	// OnAuthorized registers an observer fired after each successful
	// (re)authorization.
	OnAuthorized(fn func()) (cancel func())
	// User returns the identity granted at authorization.
	User() board.UserInfo
}

func marshalBody(body any) (json.RawMessage, error) {
	if body == nil {
		return nil, nil
	}
	if raw, ok := body.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(body)
}
