// Package connect4 implements Connect Four on the framework: a 6x7 board,
// alternating turns with a randomly drawn starting player, four-in-a-row win
// detection and surrender. It has no hidden state; the interesting part is
// that the starting-player draw replicates exactly through the seed replay.
package connect4

import (
	"errors"

	"github.com/gosuda/boardsync/board"
)

// ComponentType identifies the connect4 component on the wire.
const ComponentType = "connect4"

// Board dimensions.
const (
	Rows    = 6
	Columns = 7
)

// Field is one cell of the board.
type Field int

const (
	Empty Field = iota
	X
	O
)

// Move drops a piece into a column.
type Move struct {
	Column int `json:"column"`
}

func (*Move) ActionType() string { return "move" }

// Surrender concedes the game for the given player.
type Surrender struct {
	Player int `json:"player"`
}

func (*Surrender) ActionType() string { return "surrender" }

// Decoder understands the connect4 action set.
var Decoder = board.DecoderFor(map[string]func() board.Action{
	"move":      func() board.Action { return &Move{} },
	"surrender": func() board.Action { return &Surrender{} },
})

var (
	ErrGameOver      = errors.New("game is already over")
	ErrInvalidColumn = errors.New("invalid column")
	ErrColumnFull    = errors.New("column is full")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrNotYourPlayer = errors.New("not your player")
)

// State is the replicated game state. VictoriousPlayer is -1 while the game
// is running. Board is row-major with row 0 at the top; pieces stack toward
// Rows-1.
type State struct {
	CurrentPlayer    int       `json:"currentPlayer"`
	VictoriousPlayer int       `json:"victoriousPlayer"`
	Board            [][]Field `json:"board"`
	LastMoveRow      int       `json:"lastMoveRow"`
	LastMoveColumn   int       `json:"lastMoveColumn"`
}

// Reducer applies connect4 actions.
func Reducer(ctx board.Context[struct{}], state State, action board.Action) (State, error) {
	switch a := action.(type) {
	case *board.NewGame:
		cells := make([][]Field, Rows)
		for i := range cells {
			cells[i] = make([]Field, Columns)
		}
		return State{
			CurrentPlayer:    ctx.Random.Int(2),
			VictoriousPlayer: -1,
			Board:            cells,
			LastMoveRow:      -1,
			LastMoveColumn:   -1,
		}, nil
	case *Move:
		return makeMove(ctx.Validation, state, a.Column)
	case *Surrender:
		if !ctx.Validation.CanMoveAsPlayer(a.Player) {
			return state, ErrNotYourPlayer
		}
		next := state
		next.VictoriousPlayer = 1 - a.Player
		return next, nil
	default:
		return state, errors.New("connect4: unsupported action")
	}
}

func makeMove(v board.Validation, state State, column int) (State, error) {
	if state.VictoriousPlayer != -1 {
		return state, ErrGameOver
	}
	if column < 0 || column >= Columns {
		return state, ErrInvalidColumn
	}
	if !v.CanMoveAsPlayer(state.CurrentPlayer) {
		return state, ErrNotYourTurn
	}

	piece := X
	if state.CurrentPlayer == 1 {
		piece = O
	}
	for row := Rows - 1; row >= 0; row-- {
		if state.Board[row][column] != Empty {
			continue
		}
		cells := make([][]Field, Rows)
		for i := range cells {
			cells[i] = append([]Field(nil), state.Board[i]...)
		}
		cells[row][column] = piece

		next := State{
			CurrentPlayer:    1 - state.CurrentPlayer,
			VictoriousPlayer: -1,
			Board:            cells,
			LastMoveRow:      row,
			LastMoveColumn:   column,
		}
		if isWinningMove(cells, row, column) {
			next.VictoriousPlayer = state.CurrentPlayer
		}
		return next, nil
	}
	return state, ErrColumnFull
}

// isWinningMove scans the four line directions through the placed piece for
// four in a row.
func isWinningMove(cells [][]Field, row, column int) bool {
	placed := cells[row][column]
	directions := [4][2]int{{1, 0}, {0, 1}, {1, 1}, {1, -1}}

	for _, d := range directions {
		count := 0
		for i := -3; i <= 3; i++ {
			x := column + i*d[0]
			y := row + i*d[1]
			if x < 0 || x >= Columns || y < 0 || y >= Rows {
				continue
			}
			if cells[y][x] == placed {
				count++
				if count == 4 {
					return true
				}
			} else {
				count = 0
			}
		}
	}
	return false
}
