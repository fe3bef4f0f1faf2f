package rules

import (
	"testing"

	"github.com/scorefour/scorefour/game"
)

func TestWinningPatterns_Count(t *testing.T) {
	patterns := WinningPatterns()
	if len(patterns) != 76 {
		t.Fatalf("expected 76 winning patterns, got %d", len(patterns))
	}

	seen := make(map[uint64]bool)
	for _, p := range patterns {
		if seen[p] {
			t.Fatalf("duplicate pattern %016x", p)
		}
		seen[p] = true

		bits := 0
		for v := p; v != 0; v &= v - 1 {
			bits++
		}
		if bits != 4 {
			t.Errorf("pattern %016x has %d bits, expected 4", p, bits)
		}
	}
}

// lineState places four PlayerA pieces along a direction from an origin.
func lineState(t *testing.T, z, y, x, dz, dy, dx int) game.State {
	t.Helper()
	var s game.State
	for i := 0; i < 4; i++ {
		s.Set(z+i*dz, y+i*dy, x+i*dx, game.PlayerA)
	}
	return s
}

func TestCheckWin_AllDirections(t *testing.T) {
	// One representative line per direction, chosen to fit the cube.
	cases := []struct {
		name               string
		z, y, x, dz, dy, dx int
	}{
		{"col+x", 0, 0, 0, 0, 0, 1},
		{"row+y", 0, 0, 0, 0, 1, 0},
		{"depth+z", 0, 0, 0, 1, 0, 0},
		{"face xy", 0, 0, 0, 0, 1, 1},
		{"face xy anti", 0, 3, 0, 0, -1, 1},
		{"face xz", 0, 0, 0, 1, 0, 1},
		{"face xz anti", 0, 0, 3, 1, 0, -1},
		{"face yz", 0, 0, 0, 1, 1, 0},
		{"face yz anti", 0, 3, 0, 1, -1, 0},
		{"space diag", 0, 0, 0, 1, 1, 1},
		{"space diag -y", 0, 3, 0, 1, -1, 1},
		{"space diag -x", 0, 0, 3, 1, 1, -1},
		{"space diag -y-x", 0, 3, 3, 1, -1, -1},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := lineState(t, c.z, c.y, c.x, c.dz, c.dy, c.dx)
			if !CheckWin(s) {
				t.Errorf("four in a row along (%d,%d,%d) not detected", c.dz, c.dy, c.dx)
			}
			if !CheckGameOver(s) {
				t.Error("winning state not reported game over")
			}
		})
	}
}

func TestCheckWin_BlockedLine(t *testing.T) {
	// Three A pieces with B occupying the fourth cell of the line.
	var s game.State
	for i := 0; i < 3; i++ {
		s.Set(3, 0, i, game.PlayerA)
	}
	s.Set(3, 0, 3, game.PlayerB)

	if CheckWin(s) {
		t.Error("blocked line reported as a win")
	}
	if CheckGameOver(s) {
		t.Error("blocked line reported game over")
	}
}

func TestValueAndTerminated_Exclusive(t *testing.T) {
	// Ongoing game.
	s, _ := StatesFromMoves([]int{0, 1, 2})
	if v, term := ValueAndTerminated(s); v != 0 || term {
		t.Errorf("ongoing game: expected (0,false), got (%v,%v)", v, term)
	}

	// Win: value is -1 from the loser's (side to move) perspective.
	winState, _ := StatesFromMoves([]int{0, 1, 0, 1, 0, 1, 0})
	if v, term := ValueAndTerminated(winState); v != -1 || !term {
		t.Errorf("won game: expected (-1,true), got (%v,%v)", v, term)
	}
}

func TestCheckGameOver_CurrentMoverWin(t *testing.T) {
	// A hand-built corrupt state where the side to move already has a
	// line. CheckWin only looks at the last mover, but CheckGameOver
	// keeps the secondary check. Equal piece counts make A the current
	// mover, so A's line is invisible to CheckWin.
	var s game.State
	for i := 0; i < 4; i++ {
		s.Set(3, 0, i, game.PlayerA)
	}
	s.Set(3, 1, 0, game.PlayerB)
	s.Set(3, 1, 1, game.PlayerB)
	s.Set(3, 2, 2, game.PlayerB)
	s.Set(3, 3, 3, game.PlayerB)

	if s.CurrentPlayer() != game.PlayerA {
		t.Fatalf("setup wrong: expected A to move, got %d", s.CurrentPlayer())
	}
	if CheckWin(s) {
		t.Error("last mover (B) should not have a winning line")
	}
	if !CheckGameOver(s) {
		t.Error("current-mover line should still end the game")
	}
}

// drawnFullBoard is a full 32/32 board with no four-in-a-row for either
// player, laid out layer by layer in z-major cell order.
var drawnFullBoard = [game.NumCells]int8{
	-1, -1, -1, 1, 1, 1, 1, -1, 1, -1, 1, 1, -1, -1, -1, 1,
	1, 1, -1, 1, 1, -1, 1, -1, 1, 1, -1, -1, -1, 1, 1, -1,
	1, -1, -1, -1, 1, -1, 1, -1, -1, 1, 1, 1, 1, 1, 1, -1,
	1, -1, 1, -1, -1, 1, -1, 1, -1, 1, -1, -1, -1, 1, -1, -1,
}

func TestCheckGameOver_FullBoardDraw(t *testing.T) {
	s := game.State{Cells: drawnFullBoard}

	if s.NumPieces() != game.NumCells {
		t.Fatal("setup wrong: board not full")
	}
	if s.CountPieces(game.PlayerA) != 32 || s.CountPieces(game.PlayerB) != 32 {
		t.Fatal("setup wrong: piece counts not balanced")
	}
	if hasWinningLine(Bitboard(s, game.PlayerA)) || hasWinningLine(Bitboard(s, game.PlayerB)) {
		t.Fatal("setup wrong: drawn board contains a line")
	}
	if !CheckGameOver(s) {
		t.Error("full board should be game over")
	}
	if v, term := ValueAndTerminated(s); v != 0 || !term {
		t.Errorf("full drawn board: expected (0,true), got (%v,%v)", v, term)
	}
}

func TestBitboard(t *testing.T) {
	var s game.State
	s.Set(0, 0, 0, game.PlayerA) // bit 0
	s.Set(3, 3, 3, game.PlayerA) // bit 63
	s.Set(1, 2, 3, game.PlayerB) // bit 27

	if bb := Bitboard(s, game.PlayerA); bb != (1|uint64(1)<<63) {
		t.Errorf("A bitboard = %016x", bb)
	}
	if bb := Bitboard(s, game.PlayerB); bb != uint64(1)<<27 {
		t.Errorf("B bitboard = %016x", bb)
	}
}

func BenchmarkCheckWin(b *testing.B) {
	s, _ := StatesFromMoves([]int{0, 1, 5, 6, 10, 11, 12, 2, 7})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		CheckWin(s)
	}
}
