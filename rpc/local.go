package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gosuda/boardsync/board"
)

// Local is an in-process transport implementing the same Registrar contract
// as Server and handing out peers that implement Caller. Calls and event
// deliveries are synchronous, which keeps tests deterministic.
type Local struct {
	mu       sync.Mutex
	handlers map[string]Handler
	groups   map[string]map[*LocalPeer]struct{}
	emptied  map[string]func()
}

var _ Registrar = (*Local)(nil)

// NewLocal creates an empty in-process transport.
func NewLocal() *Local {
	return &Local{
		handlers: make(map[string]Handler),
		groups:   make(map[string]map[*LocalPeer]struct{}),
		emptied:  make(map[string]func()),
	}
}

func (l *Local) RegisterFunc(method string, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[method] = h
}

func (l *Local) OnGroupEmptied(group string, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if fn == nil {
		delete(l.emptied, group)
		return
	}
	l.emptied[group] = fn
}

func (l *Local) GroupMembers(group string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.groups[group])
}

func (l *Local) EmitToGroup(group, method string, body any) {
	raw, err := marshalBody(body)
	if err != nil {
		panic(fmt.Sprintf("rpc: marshal group event %s: %v", method, err))
	}
	for _, p := range l.members(group) {
		p.deliver(method, raw)
	}
}

func (l *Local) IterateGroup(group string, fn func(p Peer)) {
	for _, p := range l.members(group) {
		fn(p)
	}
}

func (l *Local) members(group string) []*LocalPeer {
	l.mu.Lock()
	defer l.mu.Unlock()
	members := make([]*LocalPeer, 0, len(l.groups[group]))
	for p := range l.groups[group] {
		members = append(members, p)
	}
	return members
}

// Connect attaches a peer with the given identity, as if a connection had
// authenticated with it.
func (l *Local) Connect(user board.UserInfo) *LocalPeer {
	return &LocalPeer{
		local:  l,
		user:   user,
		events: make(map[string]map[uint64]func(json.RawMessage)),
		onDrop: make(map[uint64]func(error)),
		onAuth: make(map[uint64]func()),
	}
}

// LocalPeer is one in-process connection: a Peer on the server side and a
// Caller on the client side.
type LocalPeer struct {
	local *Local
	user  board.UserInfo

	mu      sync.Mutex
	events  map[string]map[uint64]func(json.RawMessage)
	nextSub uint64
	onDrop  map[uint64]func(error)
	onAuth  map[uint64]func()
}

var (
	_ Peer   = (*LocalPeer)(nil)
	_ Caller = (*LocalPeer)(nil)
)

func (p *LocalPeer) User() board.UserInfo {
	return p.user
}

func (p *LocalPeer) Join(group string) {
	l := p.local
	l.mu.Lock()
	defer l.mu.Unlock()
	members := l.groups[group]
	if members == nil {
		members = make(map[*LocalPeer]struct{})
		l.groups[group] = members
	}
	members[p] = struct{}{}
}

func (p *LocalPeer) Leave(group string) {
	l := p.local
	l.mu.Lock()
	members := l.groups[group]
	delete(members, p)
	empty := members != nil && len(members) == 0
	if empty {
		delete(l.groups, group)
	}
	fn := l.emptied[group]
	l.mu.Unlock()

	if empty && fn != nil {
		fn()
	}
}

func (p *LocalPeer) Emit(method string, body any) {
	raw, err := marshalBody(body)
	if err != nil {
		panic(fmt.Sprintf("rpc: marshal event %s: %v", method, err))
	}
	p.deliver(method, raw)
}

// Disconnect detaches the peer from every group and fires disconnect
// observers.
func (p *LocalPeer) Disconnect() {
	l := p.local
	l.mu.Lock()
	var groups []string
	for g, members := range l.groups {
		if _, ok := members[p]; ok {
			groups = append(groups, g)
		}
	}
	l.mu.Unlock()

	for _, g := range groups {
		p.Leave(g)
	}

	p.mu.Lock()
	observers := make([]func(error), 0, len(p.onDrop))
	for _, fn := range p.onDrop {
		observers = append(observers, fn)
	}
	p.mu.Unlock()
	for _, fn := range observers {
		fn(errors.New("local peer disconnected"))
	}
}

func (p *LocalPeer) Call(_ context.Context, method string, in, out any) error {
	l := p.local
	l.mu.Lock()
	h := l.handlers[method]
	l.mu.Unlock()
	if h == nil {
		return fmt.Errorf("%w: %s", ErrMethodNotFound, method)
	}

	body, err := marshalBody(in)
	if err != nil {
		return fmt.Errorf("marshal call %s: %w", method, err)
	}

	result, err := h(p, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	raw, err := marshalBody(result)
	if err != nil {
		return fmt.Errorf("marshal %s result: %w", method, err)
	}
	if raw == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (p *LocalPeer) On(method string, fn func(body json.RawMessage)) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	subs := p.events[method]
	if subs == nil {
		subs = make(map[uint64]func(json.RawMessage))
		p.events[method] = subs
	}
	p.nextSub++
	id := p.nextSub
	subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.events[method], id)
	}
}

func (p *LocalPeer) OnDisconnected(fn func(err error)) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSub++
	id := p.nextSub
	p.onDrop[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.onDrop, id)
	}
}

func (p *LocalPeer) OnAuthorized(fn func()) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSub++
	id := p.nextSub
	p.onAuth[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.onAuth, id)
	}
}

func (p *LocalPeer) deliver(method string, body json.RawMessage) {
	p.mu.Lock()
	handlers := make([]func(json.RawMessage), 0, len(p.events[method]))
	for _, fn := range p.events[method] {
		handlers = append(handlers, fn)
	}
	p.mu.Unlock()
	for _, fn := range handlers {
		fn(body)
	}
}
