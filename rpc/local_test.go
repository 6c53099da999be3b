package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/gosuda/boardsync/board"
)

func TestLocalCallRoundTrip(t *testing.T) {
	bus := NewLocal()
	bus.RegisterFunc("math/double", func(p Peer, body json.RawMessage) (any, error) {
		var n int
		if err := json.Unmarshal(body, &n); err != nil {
			return nil, err
		}
		return n * 2, nil
	})

	p := bus.Connect(board.UserInfo{ID: "alice"})
	var out int
	if err := p.Call(context.Background(), "math/double", 21, &out); err != nil {
		t.Fatalf("call: %v", err)
	}
	if out != 42 {
		t.Fatalf("out = %d, want 42", out)
	}

	if err := p.Call(context.Background(), "math/halve", 10, &out); !errors.Is(err, ErrMethodNotFound) {
		t.Fatalf("unknown method: %v", err)
	}
}

func TestLocalHandlerErrorsReachOnlyCaller(t *testing.T) {
	bus := NewLocal()
	boom := errors.New("boom")
	bus.RegisterFunc("fail", func(Peer, json.RawMessage) (any, error) {
		return nil, boom
	})

	p := bus.Connect(board.UserInfo{ID: "alice"})
	if err := p.Call(context.Background(), "fail", nil, nil); !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
}

func TestLocalGroupBroadcast(t *testing.T) {
	bus := NewLocal()
	a := bus.Connect(board.UserInfo{ID: "alice"})
	b := bus.Connect(board.UserInfo{ID: "bob"})
	c := bus.Connect(board.UserInfo{ID: "carol"})

	a.Join("room")
	b.Join("room")

	var aGot, bGot, cGot []string
	a.On("news", func(body json.RawMessage) { aGot = append(aGot, string(body)) })
	b.On("news", func(body json.RawMessage) { bGot = append(bGot, string(body)) })
	c.On("news", func(body json.RawMessage) { cGot = append(cGot, string(body)) })

	bus.EmitToGroup("room", "news", "hello")
	if len(aGot) != 1 || len(bGot) != 1 {
		t.Fatalf("members missed the broadcast: %v / %v", aGot, bGot)
	}
	if len(cGot) != 0 {
		t.Fatalf("non-member received the broadcast: %v", cGot)
	}

	if got := bus.GroupMembers("room"); got != 2 {
		t.Fatalf("members = %d, want 2", got)
	}
}

func TestLocalSubscriptionCancel(t *testing.T) {
	bus := NewLocal()
	p := bus.Connect(board.UserInfo{ID: "alice"})
	p.Join("room")

	count := 0
	cancel := p.On("tick", func(json.RawMessage) { count++ })
	bus.EmitToGroup("room", "tick", nil)
	cancel()
	bus.EmitToGroup("room", "tick", nil)

	if count != 1 {
		t.Fatalf("handler ran %d times, want 1", count)
	}
}

func TestLocalGroupEmptiedCallback(t *testing.T) {
	bus := NewLocal()
	emptied := 0
	bus.OnGroupEmptied("room", func() { emptied++ })

	a := bus.Connect(board.UserInfo{ID: "alice"})
	b := bus.Connect(board.UserInfo{ID: "bob"})
	a.Join("room")
	b.Join("room")

	a.Leave("room")
	if emptied != 0 {
		t.Fatalf("emptied fired with a member left")
	}
	b.Leave("room")
	if emptied != 1 {
		t.Fatalf("emptied = %d, want 1", emptied)
	}

	// Disconnect empties every group the peer is in.
	c := bus.Connect(board.UserInfo{ID: "carol"})
	c.Join("room")
	c.Disconnect()
	if emptied != 2 {
		t.Fatalf("emptied after disconnect = %d, want 2", emptied)
	}
}

func TestLocalDisconnectObservers(t *testing.T) {
	bus := NewLocal()
	p := bus.Connect(board.UserInfo{ID: "alice"})

	var seen error
	p.OnDisconnected(func(err error) { seen = err })
	p.Disconnect()
	if seen == nil {
		t.Fatal("disconnect observer never fired")
	}
}

func TestLocalIterateGroupPerRecipient(t *testing.T) {
	bus := NewLocal()
	a := bus.Connect(board.UserInfo{ID: "alice"})
	b := bus.Connect(board.UserInfo{ID: "bob"})
	a.Join("room")
	b.Join("room")

	var aGot, bGot string
	a.On("whisper", func(body json.RawMessage) { aGot = string(body) })
	b.On("whisper", func(body json.RawMessage) { bGot = string(body) })

	bus.IterateGroup("room", func(p Peer) {
		p.Emit("whisper", "for "+p.User().ID)
	})

	if aGot != `"for alice"` || bGot != `"for bob"` {
		t.Fatalf("per-recipient payloads = %q / %q", aGot, bGot)
	}
}
