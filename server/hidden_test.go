package server_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gosuda/boardsync/board"
	"github.com/gosuda/boardsync/rpc"
	"github.com/gosuda/boardsync/server"
	"github.com/gosuda/boardsync/wire"
)

// cards is a minimal hidden-object component: deal places a card face down
// for one seat, reveal turns it face up for everyone, misdeal fails after
// staging a card.
type cardsState struct {
	Dealt    int    `json:"dealt"`
	Revealed string `json:"revealed,omitempty"`
}

type dealCard struct {
	ID    int    `json:"id"`
	Value string `json:"value"`
	Seat  int    `json:"seat"`
}

func (*dealCard) ActionType() string { return "deal" }

type revealCard struct {
	ID int `json:"id"`
}

func (*revealCard) ActionType() string { return "reveal" }

type misdeal struct{}

func (*misdeal) ActionType() string { return "misdeal" }

var errMisdeal = errors.New("misdeal")

var cardsDecoder = board.DecoderFor(map[string]func() board.Action{
	"deal":    func() board.Action { return &dealCard{} },
	"reveal":  func() board.Action { return &revealCard{} },
	"misdeal": func() board.Action { return &misdeal{} },
})

func cardsReducer(ctx board.Context[string], state cardsState, action board.Action) (cardsState, error) {
	switch a := action.(type) {
	case *board.NewGame:
		return cardsState{}, nil
	case *dealCard:
		ctx.Objects.Add(a.ID, a.Value)
		if err := ctx.Objects.SetVisibleOnlyFor(a.ID, a.Seat); err != nil {
			return state, err
		}
		state.Dealt++
		return state, nil
	case *revealCard:
		value, err := ctx.Objects.GetVisible(a.ID)
		if err != nil {
			return state, err
		}
		state.Revealed = value
		return state, nil
	case *misdeal:
		ctx.Objects.Add(99, "leaked")
		return state, errMisdeal
	default:
		return state, errors.New("cards: unsupported action")
	}
}

func newCardsFixture(t *testing.T) (*rpc.Local, *server.Component[cardsState, string], board.RoomData, *rpc.LocalPeer, *rpc.LocalPeer) {
	t.Helper()
	bus := rpc.NewLocal()
	registry := server.NewRegistry(bus, zerolog.Nop())
	comp := server.NewComponent[cardsState, string]("cards", true, cardsReducer, cardsDecoder, registry, zerolog.Nop())
	comp.RegisterWithCreation(bus, server.CreationSettings[cardsState]{})

	a := bus.Connect(alice)
	b := bus.Connect(bob)

	var room board.RoomData
	mustCall(t, a, "cards/createGame", wire.CreateGameRequest{Options: board.GameOptions{Players: 2}}, &room)
	var joined int64
	mustCall(t, b, "game/join", wire.JoinRequest{RoomID: room.ID, Password: room.Password}, &joined)
	mustCall(t, a, "game/takeSeat", wire.SeatRequest{RoomID: room.ID, Seat: 0}, nil)
	mustCall(t, b, "game/takeSeat", wire.SeatRequest{RoomID: room.ID, Seat: 1}, nil)
	return bus, comp, room, a, b
}

func TestHiddenDeltaPerSeat(t *testing.T) {
	_, comp, room, a, b := newCardsFixture(t)

	var aliceEvent, bobEvent wire.ActionEvent[string]
	a.On("cards/onAction", func(body json.RawMessage) {
		_ = json.Unmarshal(body, &aliceEvent)
	})
	b.On("cards/onAction", func(body json.RawMessage) {
		_ = json.Unmarshal(body, &bobEvent)
	})

	if err := comp.SendServerAction(room.ID, &dealCard{ID: 7, Value: "K♠", Seat: 0}); err != nil {
		t.Fatalf("deal: %v", err)
	}

	if aliceEvent.Hidden == nil || bobEvent.Hidden == nil {
		t.Fatal("broadcast carried no hidden info")
	}
	aw := aliceEvent.Hidden.Delta[7]
	if aw == nil || aw.Object != "K♠" {
		t.Fatalf("seat 0 delta = %+v, want K♠", aw)
	}
	if bw, ok := bobEvent.Hidden.Delta[7]; !ok || bw != nil {
		t.Fatalf("seat 1 delta = %+v (present=%v), want tombstone", bw, ok)
	}

	var forAlice, forBob wire.StateResponse[cardsState, string]
	mustCall(t, a, "cards/getGameState", wire.StateRequest{RoomID: room.ID}, &forAlice)
	mustCall(t, b, "cards/getGameState", wire.StateRequest{RoomID: room.ID}, &forBob)
	if w, ok := forAlice.Hidden[7]; !ok || w.Object != "K♠" {
		t.Fatalf("seat 0 state slice = %+v", forAlice.Hidden)
	}
	if _, ok := forBob.Hidden[7]; ok {
		t.Fatalf("seat 1 can see the card: %+v", forBob.Hidden)
	}
}

func TestHiddenRevealRecordsResponse(t *testing.T) {
	_, comp, room, _, b := newCardsFixture(t)

	if err := comp.SendServerAction(room.ID, &dealCard{ID: 3, Value: "A♦", Seat: 0}); err != nil {
		t.Fatalf("deal: %v", err)
	}

	var bobEvent wire.ActionEvent[string]
	b.On("cards/onAction", func(body json.RawMessage) {
		_ = json.Unmarshal(body, &bobEvent)
	})

	if err := comp.SendServerAction(room.ID, &revealCard{ID: 3}); err != nil {
		t.Fatalf("reveal: %v", err)
	}

	if bobEvent.Hidden == nil || len(bobEvent.Hidden.Responses) != 1 {
		t.Fatalf("reveal broadcast = %+v, want one response", bobEvent.Hidden)
	}
	resp := bobEvent.Hidden.Responses[0]
	if resp.ID != 3 || resp.Object != "A♦" {
		t.Fatalf("response = %+v, want id 3 A♦", resp)
	}
	// The reveal lifts visibility, so the other seat's delta now carries
	// the value.
	if w := bobEvent.Hidden.Delta[3]; w == nil || w.Object != "A♦" {
		t.Fatalf("delta after reveal = %+v, want A♦", w)
	}

	state, err := comp.State(room.ID)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Revealed != "A♦" {
		t.Fatalf("revealed = %q, want A♦", state.Revealed)
	}
}

func TestFailedActionLeaksNothing(t *testing.T) {
	_, comp, room, a, _ := newCardsFixture(t)

	events := 0
	a.On("cards/onAction", func(json.RawMessage) { events++ })

	err := comp.SendServerAction(room.ID, &misdeal{})
	if !errors.Is(err, errMisdeal) {
		t.Fatalf("misdeal: got %v, want errMisdeal", err)
	}
	if events != 0 {
		t.Fatalf("failed action was broadcast %d times", events)
	}

	var resp wire.StateResponse[cardsState, string]
	mustCall(t, a, "cards/getGameState", wire.StateRequest{RoomID: room.ID}, &resp)
	if _, ok := resp.Hidden[99]; ok {
		t.Fatalf("staged object survived the failed action: %+v", resp.Hidden)
	}
	if resp.State.Dealt != 0 {
		t.Fatalf("state mutated by failed action: %+v", resp.State)
	}

	// The container still works after the rollback.
	if err := comp.SendServerAction(room.ID, &dealCard{ID: 1, Value: "2♣", Seat: 1}); err != nil {
		t.Fatalf("deal after rollback: %v", err)
	}
}
