package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gosuda/boardsync/board"
)

// Client is the websocket side of the transport. Connect, then Authorize
// with a token; after that Call and On work until the connection drops.
// Reconnect re-dials; the consuming application decides the backoff and must
// re-authorize and re-join afterwards.
type Client struct {
	url string
	log zerolog.Logger

	mu       sync.Mutex
	ws       *websocket.Conn
	user     board.UserInfo
	nextID   uint64
	pending  map[uint64]chan frame
	events   map[string]map[uint64]func(json.RawMessage)
	nextSub  uint64
	onDrop   map[uint64]func(error)
	onAuth   map[uint64]func()
	closed   bool
}

var _ Caller = (*Client)(nil)

// NewClient creates a client for the given websocket URL.
func NewClient(url string, log zerolog.Logger) *Client {
	return &Client{
		url:     url,
		log:     log,
		pending: make(map[uint64]chan frame),
		events:  make(map[string]map[uint64]func(json.RawMessage)),
		onDrop:  make(map[uint64]func(error)),
		onAuth:  make(map[uint64]func()),
	}
}

// Connect dials the server and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.ws = ws
	c.closed = false
	c.mu.Unlock()

	go c.readLoop(ws)
	return nil
}

// Authorize presents a token and blocks until the server accepts or rejects
// it. On success the granted identity is remembered and authorized
// observers fire.
func (c *Client) Authorize(ctx context.Context, token string) (board.UserInfo, error) {
	body, _ := json.Marshal(authRequest{Token: token})
	resp, err := c.roundTrip(ctx, frame{Kind: kindAuth, Body: body})
	if err != nil {
		return board.UserInfo{}, err
	}

	var user board.UserInfo
	if err := json.Unmarshal(resp, &user); err != nil {
		return board.UserInfo{}, fmt.Errorf("decode auth response: %w", err)
	}

	c.mu.Lock()
	c.user = user
	observers := make([]func(), 0, len(c.onAuth))
	for _, fn := range c.onAuth {
		observers = append(observers, fn)
	}
	c.mu.Unlock()

	for _, fn := range observers {
		fn()
	}
	return user, nil
}

// Disconnect closes the connection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	ws := c.ws
	c.closed = true
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
}

// Reconnect re-dials after a drop. Authorization and group membership do not
// survive; the caller must Authorize and re-join.
func (c *Client) Reconnect(ctx context.Context) error {
	c.Disconnect()
	return c.Connect(ctx)
}

// User returns the identity granted at authorization.
func (c *Client) User() board.UserInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Call invokes a server method and unmarshals the result into out.
func (c *Client) Call(ctx context.Context, method string, in, out any) error {
	body, err := marshalBody(in)
	if err != nil {
		return fmt.Errorf("marshal call %s: %w", method, err)
	}

	resp, err := c.roundTrip(ctx, frame{Kind: kindCall, Method: method, Body: body})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp, out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

// On subscribes to a server event; the returned func unsubscribes.
func (c *Client) On(method string, fn func(body json.RawMessage)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := c.events[method]
	if subs == nil {
		subs = make(map[uint64]func(json.RawMessage))
		c.events[method] = subs
	}
	c.nextSub++
	id := c.nextSub
	subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.events[method], id)
	}
}

// OnDisconnected registers a connection-loss observer.
func (c *Client) OnDisconnected(fn func(err error)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.onDrop[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.onDrop, id)
	}
}

// OnAuthorized registers an observer fired after each successful
// authorization.
func (c *Client) OnAuthorized(fn func()) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.onAuth[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.onAuth, id)
	}
}

func (c *Client) roundTrip(ctx context.Context, f frame) (json.RawMessage, error) {
	c.mu.Lock()
	if c.ws == nil || c.closed {
		c.mu.Unlock()
		return nil, ErrDisconnected
	}
	c.nextID++
	f.ID = c.nextID
	ch := make(chan frame, 1)
	c.pending[f.ID] = ch
	ws := c.ws
	err := ws.WriteJSON(f)
	c.mu.Unlock()

	if err != nil {
		c.forget(f.ID)
		return nil, fmt.Errorf("write frame: %w", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrDisconnected
		}
		if resp.Kind == kindError {
			return nil, errors.New(resp.Error)
		}
		return resp.Body, nil
	case <-ctx.Done():
		c.forget(f.ID)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop(ws *websocket.Conn) {
	var readErr error
	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			readErr = err
			break
		}

		switch f.Kind {
		case kindResult, kindError:
			c.mu.Lock()
			ch := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if ch != nil {
				ch <- f
			}

		case kindEvent:
			c.mu.Lock()
			handlers := make([]func(json.RawMessage), 0, len(c.events[f.Method]))
			for _, fn := range c.events[f.Method] {
				handlers = append(handlers, fn)
			}
			c.mu.Unlock()
			for _, fn := range handlers {
				fn(f.Body)
			}

		default:
			c.log.Warn().Str("kind", f.Kind).Msg("unexpected frame kind")
		}
	}

	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]chan frame)
	observers := make([]func(error), 0, len(c.onDrop))
	for _, fn := range c.onDrop {
		observers = append(observers, fn)
	}
	intentional := c.closed
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	if !intentional {
		c.log.Debug().Err(readErr).Msg("connection dropped")
	}
	for _, fn := range observers {
		fn(readErr)
	}
}
