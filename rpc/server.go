package rpc

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gosuda/boardsync/board"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 64
)

// Server accepts websocket connections, authenticates them, and dispatches
// call frames to registered handlers. It implements http.Handler; mount it
// on whatever router serves the rest of the application.
type Server struct {
	log      zerolog.Logger
	auth     AuthFunc
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	handlers map[string]Handler
	groups   map[string]map[*Conn]struct{}
	emptied  map[string]func()
}

// NewServer creates a server using auth to admit connections.
func NewServer(auth AuthFunc, log zerolog.Logger) *Server {
	return &Server{
		log:      log,
		auth:     auth,
		handlers: make(map[string]Handler),
		groups:   make(map[string]map[*Conn]struct{}),
		emptied:  make(map[string]func()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Conn is one authenticated websocket connection.
type Conn struct {
	id     uuid.UUID
	server *Server
	ws     *websocket.Conn
	user   board.UserInfo
	send   chan frame
	quit   chan struct{}

	mu     sync.Mutex
	groups map[string]struct{}
	closed bool
}

var _ Peer = (*Conn)(nil)

// RegisterFunc registers a handler for a method name.
func (s *Server) RegisterFunc(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// OnGroupEmptied installs fn to run whenever the group's membership drops to
// zero. A nil fn removes the callback.
func (s *Server) OnGroupEmptied(group string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		delete(s.emptied, group)
		return
	}
	s.emptied[group] = fn
}

// GroupMembers returns the group's current membership count.
func (s *Server) GroupMembers(group string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.groups[group])
}

// EmitToGroup broadcasts an event to every member of the group.
func (s *Server) EmitToGroup(group, method string, body any) {
	raw, err := marshalBody(body)
	if err != nil {
		s.log.Error().Err(err).Str("method", method).Msg("marshal group event")
		return
	}

	s.mu.RLock()
	members := make([]*Conn, 0, len(s.groups[group]))
	for c := range s.groups[group] {
		members = append(members, c)
	}
	s.mu.RUnlock()

	for _, c := range members {
		c.push(frame{Kind: kindEvent, Method: method, Body: raw})
	}
}

// IterateGroup visits every current member of the group.
func (s *Server) IterateGroup(group string, fn func(p Peer)) {
	s.mu.RLock()
	members := make([]*Conn, 0, len(s.groups[group]))
	for c := range s.groups[group] {
		members = append(members, c)
	}
	s.mu.RUnlock()

	for _, c := range members {
		fn(c)
	}
}

// ServeHTTP upgrades the request and runs the connection until it drops.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade")
		return
	}

	conn := &Conn{
		id:     uuid.New(),
		server: s,
		ws:     ws,
		send:   make(chan frame, sendBuffer),
		quit:   make(chan struct{}),
		groups: make(map[string]struct{}),
	}

	go conn.writePump()
	conn.readPump()
}

// User returns the identity attached at authorization.
func (c *Conn) User() board.UserInfo {
	return c.user
}

// Join adds the connection to a broadcast group.
func (c *Conn) Join(group string) {
	s := c.server
	s.mu.Lock()
	members := s.groups[group]
	if members == nil {
		members = make(map[*Conn]struct{})
		s.groups[group] = members
	}
	members[c] = struct{}{}
	s.mu.Unlock()

	c.mu.Lock()
	c.groups[group] = struct{}{}
	c.mu.Unlock()
}

// Leave removes the connection from a broadcast group, firing the emptied
// callback if it was the last member.
func (c *Conn) Leave(group string) {
	c.mu.Lock()
	delete(c.groups, group)
	c.mu.Unlock()

	c.server.dropFromGroup(c, group)
}

// Emit sends an event to this connection only.
func (c *Conn) Emit(method string, body any) {
	raw, err := marshalBody(body)
	if err != nil {
		c.server.log.Error().Err(err).Str("method", method).Msg("marshal event")
		return
	}
	c.push(frame{Kind: kindEvent, Method: method, Body: raw})
}

func (c *Conn) push(f frame) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	select {
	case c.send <- f:
	default:
		// Slow consumer; it will resync via getState after reconnecting.
		c.server.log.Warn().Stringer("conn", c.id).Str("method", f.Method).Msg("send buffer full, dropping frame")
	}
}

func (s *Server) dropFromGroup(c *Conn, group string) {
	s.mu.Lock()
	members := s.groups[group]
	delete(members, c)
	empty := members != nil && len(members) == 0
	if empty {
		delete(s.groups, group)
	}
	fn := s.emptied[group]
	s.mu.Unlock()

	if empty && fn != nil {
		fn()
	}
}

func (c *Conn) readPump() {
	defer c.teardown()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	authorized := false
	for {
		var f frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.log.Debug().Err(err).Stringer("conn", c.id).Msg("read error")
			}
			return
		}

		switch f.Kind {
		case kindAuth:
			var req authRequest
			if err := json.Unmarshal(f.Body, &req); err != nil {
				c.push(frame{Kind: kindError, ID: f.ID, Error: "malformed auth frame"})
				return
			}
			user, err := c.server.auth(req.Token)
			if err != nil {
				c.push(frame{Kind: kindError, ID: f.ID, Error: ErrNotAuthorized.Error()})
				return
			}
			c.user = user
			authorized = true
			body, _ := json.Marshal(user)
			c.push(frame{Kind: kindResult, ID: f.ID, Body: body})

		case kindCall:
			if !authorized {
				c.push(frame{Kind: kindError, ID: f.ID, Error: ErrNotAuthorized.Error()})
				continue
			}
			c.dispatch(f)

		default:
			c.server.log.Warn().Str("kind", f.Kind).Stringer("conn", c.id).Msg("unexpected frame kind")
		}
	}
}

func (c *Conn) dispatch(f frame) {
	c.server.mu.RLock()
	h := c.server.handlers[f.Method]
	c.server.mu.RUnlock()

	if h == nil {
		c.push(frame{Kind: kindError, ID: f.ID, Error: ErrMethodNotFound.Error()})
		return
	}

	result, err := h(c, f.Body)
	if err != nil {
		c.push(frame{Kind: kindError, ID: f.ID, Error: err.Error()})
		return
	}

	raw, err := marshalBody(result)
	if err != nil {
		c.server.log.Error().Err(err).Str("method", f.Method).Msg("marshal result")
		c.push(frame{Kind: kindError, ID: f.ID, Error: "internal error"})
		return
	}
	c.push(frame{Kind: kindResult, ID: f.ID, Body: raw})
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.quit:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, nil)
			return
		case f := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	groups := make([]string, 0, len(c.groups))
	for g := range c.groups {
		groups = append(groups, g)
	}
	c.groups = make(map[string]struct{})
	c.mu.Unlock()

	close(c.quit)
	for _, g := range groups {
		c.server.dropFromGroup(c, g)
	}
	_ = c.ws.Close()
}
