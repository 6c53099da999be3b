package timer_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gosuda/boardsync/board"
	"github.com/gosuda/boardsync/rpc"
	"github.com/gosuda/boardsync/server"
	"github.com/gosuda/boardsync/timer"
)

func intp(v int) *int { return &v }

type expiryFixture struct {
	registry *server.Registry
	clock    *server.Component[timer.State, struct{}]
	roomID   int64
	expired  chan int
}

func newExpiryFixture(t *testing.T, budget time.Duration) *expiryFixture {
	t.Helper()
	bus := rpc.NewLocal()
	registry := server.NewRegistry(bus, zerolog.Nop())
	clock := timer.NewServerComponent(registry, budget, 0, zerolog.Nop())
	clock.Register(bus)

	f := &expiryFixture{
		registry: registry,
		clock:    clock,
		expired:  make(chan int, 1),
	}
	onExpire := func(roomID int64, player int) {
		f.expired <- player
	}

	options := board.GameOptions{Players: 2}
	room := registry.CreateRoom(options, "timer", []server.ComponentConstructor{
		timer.Constructor(clock, options, onExpire),
	}, time.Minute)
	f.roomID = room.ID
	return f
}

func TestDeadlineFiresOnExpiry(t *testing.T) {
	f := newExpiryFixture(t, 30*time.Millisecond)

	if err := timer.SetActive(f.clock, f.roomID, intp(1)); err != nil {
		t.Fatalf("activate: %v", err)
	}

	select {
	case player := <-f.expired:
		if player != 1 {
			t.Fatalf("expired player = %d, want 1", player)
		}
	case <-time.After(time.Second):
		t.Fatal("deadline never fired")
	}
}

func TestPauseDisarmsDeadline(t *testing.T) {
	f := newExpiryFixture(t, 40*time.Millisecond)

	if err := timer.SetActive(f.clock, f.roomID, intp(0)); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := timer.SetActive(f.clock, f.roomID, nil); err != nil {
		t.Fatalf("pause: %v", err)
	}

	select {
	case player := <-f.expired:
		t.Fatalf("paused clock expired for player %d", player)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestRoomTeardownStopsDeadline(t *testing.T) {
	f := newExpiryFixture(t, 40*time.Millisecond)

	if err := timer.SetActive(f.clock, f.roomID, intp(0)); err != nil {
		t.Fatalf("activate: %v", err)
	}
	f.registry.CloseRoom(f.roomID)

	select {
	case player := <-f.expired:
		t.Fatalf("closed room expired for player %d", player)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSwitchReArmsForNewPlayer(t *testing.T) {
	f := newExpiryFixture(t, 30*time.Millisecond)

	if err := timer.SetActive(f.clock, f.roomID, intp(0)); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := timer.SetActive(f.clock, f.roomID, intp(1)); err != nil {
		t.Fatalf("switch: %v", err)
	}

	select {
	case player := <-f.expired:
		if player != 1 {
			t.Fatalf("expired player = %d, want 1", player)
		}
	case <-time.After(time.Second):
		t.Fatal("deadline never fired")
	}
}
