// Package rules implements the game rules for 4x4x4 Connect Four: move
// generation, gravity-based move application, bitboard win detection over
// the 76 precomputed winning lines, board symmetries, and the hex
// bitboard interchange format.
//
// All functions are pure: they take a game.State by value and never
// mutate shared data. The winning-pattern table is computed once at
// package init and is read-only afterwards, so everything here is safe
// for concurrent use.
package rules

import (
	"fmt"

	"github.com/scorefour/scorefour/game"
)

// ActionCoords converts a flat action index in [0, 16) to its (row, col)
// column coordinates.
func ActionCoords(action int) (row, col int, err error) {
	if action < 0 || action >= game.NumActions {
		return 0, 0, fmt.Errorf("action must be between 0 and %d, got %d", game.NumActions-1, action)
	}
	return action / game.Cols, action % game.Cols, nil
}

// ValidMoves returns a 16-entry vector where entry a is true iff column a
// can still accept a piece. A column is open iff its top layer (depth 0)
// cell is empty.
func ValidMoves(s game.State) [game.NumActions]bool {
	var valid [game.NumActions]bool
	for a := 0; a < game.NumActions; a++ {
		valid[a] = s.Cells[a] == game.Empty
	}
	return valid
}

// NumValidMoves returns how many columns are still open.
func NumValidMoves(s game.State) int {
	n := 0
	for a := 0; a < game.NumActions; a++ {
		if s.Cells[a] == game.Empty {
			n++
		}
	}
	return n
}

// Position is a board coordinate, used for landing-position lookups.
type Position struct {
	Depth int
	Row   int
	Col   int
}

// LandingPosition returns where a piece dropped into the action's column
// would land. The second return is false when the action is out of range
// or the column is full; callers must branch on it rather than treat a
// full column as an error.
func LandingPosition(s game.State, action int) (Position, bool) {
	row, col, err := ActionCoords(action)
	if err != nil {
		return Position{}, false
	}
	for z := game.Depth - 1; z >= 0; z-- {
		if s.At(z, row, col) == game.Empty {
			return Position{Depth: z, Row: row, Col: col}, true
		}
	}
	return Position{}, false
}

// NextState returns a copy of s with a piece for the current player
// dropped into the action's column. It fails if the action is out of
// range or the column is full; callers are expected to consult
// ValidMoves first.
func NextState(s game.State, action int) (game.State, error) {
	row, col, err := ActionCoords(action)
	if err != nil {
		return s, err
	}
	pos, ok := LandingPosition(s, action)
	if !ok {
		return s, fmt.Errorf("column (%d,%d) is full", row, col)
	}
	next := s
	next.Set(pos.Depth, pos.Row, pos.Col, s.CurrentPlayer())
	return next, nil
}

// StatesFromMoves replays a move sequence from the initial state,
// validating each move in turn. It stops at the first move that is out
// of range, illegal for the then-current state, or that ends the game,
// and returns the resulting state with the prefix of moves actually
// applied. Callers detect truncation by comparing lengths; a partial
// replay is not an error.
func StatesFromMoves(moves []int) (game.State, []int) {
	state := game.NewState()
	applied := make([]int, 0, len(moves))
	for _, action := range moves {
		if action < 0 || action >= game.NumActions {
			break
		}
		if !ValidMoves(state)[action] {
			break
		}
		next, err := NextState(state, action)
		if err != nil {
			break
		}
		state = next
		applied = append(applied, action)
		if CheckGameOver(state) {
			break
		}
	}
	return state, applied
}
