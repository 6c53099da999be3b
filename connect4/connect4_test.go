package connect4

import (
	"errors"
	"testing"

	"github.com/gosuda/boardsync/board"
)

// scriptedRandom feeds predetermined draws into a reducer.
type scriptedRandom struct {
	draws []int
}

func (r *scriptedRandom) Int(max int) int {
	v := r.draws[0]
	r.draws = r.draws[1:]
	return v % max
}

func (r *scriptedRandom) IntBetween(min, max int) int {
	return min + r.Int(max-min+1)
}

func trustingCtx(draws ...int) board.Context[struct{}] {
	return board.Context[struct{}]{
		Validation: board.TrustingValidation(),
		Random:     &scriptedRandom{draws: draws},
	}
}

func newGame(t *testing.T, starter int) State {
	t.Helper()
	state, err := Reducer(trustingCtx(starter), State{}, &board.NewGame{Options: board.GameOptions{Players: 2}})
	if err != nil {
		t.Fatalf("newGame: %v", err)
	}
	return state
}

func mustMove(t *testing.T, state State, column int) State {
	t.Helper()
	next, err := Reducer(trustingCtx(), state, &Move{Column: column})
	if err != nil {
		t.Fatalf("move column %d: %v", column, err)
	}
	return next
}

func TestNewGameDrawsStarter(t *testing.T) {
	state := newGame(t, 1)
	if state.CurrentPlayer != 1 {
		t.Fatalf("starter = %d, want 1", state.CurrentPlayer)
	}
	if state.VictoriousPlayer != -1 || state.LastMoveRow != -1 || state.LastMoveColumn != -1 {
		t.Fatalf("fresh state = %+v", state)
	}
	if len(state.Board) != Rows || len(state.Board[0]) != Columns {
		t.Fatalf("board is %dx%d", len(state.Board), len(state.Board[0]))
	}
}

func TestMovesStackFromBottom(t *testing.T) {
	state := newGame(t, 0)
	state = mustMove(t, state, 3)
	if state.LastMoveRow != Rows-1 || state.Board[Rows-1][3] != X {
		t.Fatalf("first drop landed at %d: %+v", state.LastMoveRow, state.Board)
	}
	if state.CurrentPlayer != 1 {
		t.Fatalf("turn did not pass: %d", state.CurrentPlayer)
	}

	state = mustMove(t, state, 3)
	if state.LastMoveRow != Rows-2 || state.Board[Rows-2][3] != O {
		t.Fatalf("second drop landed at %d", state.LastMoveRow)
	}
}

func TestMoveRejections(t *testing.T) {
	state := newGame(t, 0)

	if _, err := Reducer(trustingCtx(), state, &Move{Column: -1}); !errors.Is(err, ErrInvalidColumn) {
		t.Fatalf("column -1: %v", err)
	}
	if _, err := Reducer(trustingCtx(), state, &Move{Column: Columns}); !errors.Is(err, ErrInvalidColumn) {
		t.Fatalf("column %d: %v", Columns, err)
	}

	for i := 0; i < Rows; i++ {
		state = mustMove(t, state, 0)
	}
	if _, err := Reducer(trustingCtx(), state, &Move{Column: 0}); !errors.Is(err, ErrColumnFull) {
		t.Fatalf("full column: %v", err)
	}
}

func TestTurnEnforcement(t *testing.T) {
	state := newGame(t, 0)

	// Validation for a user seated only at seat 1; it is player 0's turn.
	v := board.ClientValidation(board.UserInfo{ID: "bob"}, func(seat int) bool { return seat == 1 })
	ctx := board.Context[struct{}]{Validation: v, Random: &scriptedRandom{}}

	if _, err := Reducer(ctx, state, &Move{Column: 0}); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("out-of-turn move: %v", err)
	}
	if _, err := Reducer(ctx, state, &Surrender{Player: 0}); !errors.Is(err, ErrNotYourPlayer) {
		t.Fatalf("surrender for someone else: %v", err)
	}

	next, err := Reducer(ctx, state, &Surrender{Player: 1})
	if err != nil {
		t.Fatalf("own surrender: %v", err)
	}
	if next.VictoriousPlayer != 0 {
		t.Fatalf("surrender winner = %d, want 0", next.VictoriousPlayer)
	}
}

func TestWinDetection(t *testing.T) {
	t.Run("horizontal", func(t *testing.T) {
		state := newGame(t, 0)
		// X: 0,1,2,3 on the bottom row; O wastes moves in column 6.
		for _, col := range []int{0, 6, 1, 6, 2, 6} {
			state = mustMove(t, state, col)
		}
		state = mustMove(t, state, 3)
		if state.VictoriousPlayer != 0 {
			t.Fatalf("winner = %d, want 0", state.VictoriousPlayer)
		}
	})

	t.Run("diagonal", func(t *testing.T) {
		state := newGame(t, 0)
		// Build a rising diagonal for X at columns 0..3.
		for _, col := range []int{0, 1, 1, 2, 2, 3, 2, 3, 3, 5} {
			state = mustMove(t, state, col)
		}
		state = mustMove(t, state, 3)
		if state.VictoriousPlayer != 0 {
			t.Fatalf("winner = %d, want 0\nboard: %v", state.VictoriousPlayer, state.Board)
		}
	})

	t.Run("game over blocks moves", func(t *testing.T) {
		state := newGame(t, 0)
		state.VictoriousPlayer = 1
		if _, err := Reducer(trustingCtx(), state, &Move{Column: 0}); !errors.Is(err, ErrGameOver) {
			t.Fatalf("move after win: %v", err)
		}
	})
}

func TestMoveDoesNotMutatePriorState(t *testing.T) {
	state := newGame(t, 0)
	next := mustMove(t, state, 0)
	if state.Board[Rows-1][0] != Empty {
		t.Fatal("move wrote through to the previous state's board")
	}
	if next.Board[Rows-1][0] != X {
		t.Fatal("move missing from the next state's board")
	}
}
