// Package game defines the board state for 4x4x4 Connect Four.
//
// The board is a depth x row x col grid of int8 cells. There is no stored
// "current player" field: whose turn it is derives from the piece counts,
// so a State is fully described by its cells and is cheap to copy by value
// for MCTS tree exploration.
package game

import (
	"fmt"
	"strings"
)

const (
	Depth = 4
	Rows  = 4
	Cols  = 4

	// NumCells is the total cell count (64), which is also the maximum
	// game length in plies.
	NumCells = Depth * Rows * Cols

	// NumActions is the number of droppable columns (16). An action is a
	// flat (row, col) index; gravity decides the depth.
	NumActions = Rows * Cols
)

// Cell values.
const (
	PlayerA int8 = 1
	PlayerB int8 = -1
	Empty   int8 = 0
)

// State is the complete board state. The zero value is the empty board.
//
// Cells are stored z-major: index = z*16 + y*4 + x for depth z, row y,
// col x. Depth 0 is the top of a column; pieces land at the highest
// empty z (the bottom).
type State struct {
	Cells [NumCells]int8
}

// Index converts (z, y, x) coordinates to a flat cell index.
func Index(z, y, x int) int {
	return z*Rows*Cols + y*Cols + x
}

// At returns the cell value at (z, y, x).
func (s State) At(z, y, x int) int8 {
	return s.Cells[Index(z, y, x)]
}

// Set writes the cell value at (z, y, x).
func (s *State) Set(z, y, x int, v int8) {
	s.Cells[Index(z, y, x)] = v
}

// NewState returns the initial empty board.
func NewState() State {
	return State{}
}

// NumPieces returns the total number of pieces on the board.
func (s State) NumPieces() int {
	n := 0
	for _, c := range s.Cells {
		if c != Empty {
			n++
		}
	}
	return n
}

// CountPieces returns the piece count for a single player.
func (s State) CountPieces(player int8) int {
	n := 0
	for _, c := range s.Cells {
		if c == player {
			n++
		}
	}
	return n
}

// CurrentPlayer returns whose turn it is: PlayerA when both players have
// placed the same number of pieces, PlayerB otherwise. A piece-count
// difference greater than one means the state is corrupt.
func (s State) CurrentPlayer() int8 {
	if s.CountPieces(PlayerA) == s.CountPieces(PlayerB) {
		return PlayerA
	}
	return PlayerB
}

// String renders a human-readable layer-by-layer view of the board.
func (s State) String() string {
	var b strings.Builder
	b.WriteString("--- 3D Connect Four Board ---\n")
	for z := 0; z < Depth; z++ {
		fmt.Fprintf(&b, "\nLayer %d:\n", z)
		for y := 0; y < Rows; y++ {
			for x := 0; x < Cols; x++ {
				if x > 0 {
					b.WriteByte(' ')
				}
				fmt.Fprintf(&b, "%2d", s.At(z, y, x))
			}
			b.WriteByte('\n')
		}
	}
	player := "1 (X)"
	if s.CurrentPlayer() == PlayerB {
		player = "2 (O)"
	}
	fmt.Fprintf(&b, "\nTurn: Player %s\n", player)
	b.WriteString("-----------------------------\n")
	return b.String()
}
