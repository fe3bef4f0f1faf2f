package rules

import "github.com/scorefour/scorefour/game"

// The 13 line directions on a 4x4x4 cube: 3 axis-aligned, 6 face
// diagonals, 4 space diagonals.
var lineDirections = [13][3]int{
	{1, 0, 0}, {0, 1, 0}, {0, 0, 1},
	{1, 1, 0}, {1, -1, 0}, {1, 0, 1},
	{1, 0, -1}, {0, 1, 1}, {0, 1, -1},
	{1, 1, 1}, {1, -1, 1}, {1, 1, -1}, {1, -1, -1},
}

// winningPatterns holds one 64-bit mask per winning line (76 total).
// Computed once at init and shared read-only by all callers.
var winningPatterns = generateWinningPatterns()

// WinningPatterns returns the shared winning-line mask table. Callers
// must not modify it.
func WinningPatterns() []uint64 {
	return winningPatterns
}

func generateWinningPatterns() []uint64 {
	seen := make(map[uint64]bool)
	patterns := make([]uint64, 0, 76)

	for z := 0; z < game.Depth; z++ {
		for y := 0; y < game.Rows; y++ {
			for x := 0; x < game.Cols; x++ {
				for _, d := range lineDirections {
					dx, dy, dz := d[0], d[1], d[2]
					endX, endY, endZ := x+3*dx, y+3*dy, z+3*dz
					if endX < 0 || endX >= game.Cols ||
						endY < 0 || endY >= game.Rows ||
						endZ < 0 || endZ >= game.Depth {
						continue
					}

					var mask uint64
					for i := 0; i < 4; i++ {
						pos := game.Index(z+i*dz, y+i*dy, x+i*dx)
						mask |= uint64(1) << uint(pos)
					}
					if !seen[mask] {
						seen[mask] = true
						patterns = append(patterns, mask)
					}
				}
			}
		}
	}

	return patterns
}

// Bitboard packs the given player's pieces into a 64-bit bitboard using
// bit index z*16 + y*4 + x.
func Bitboard(s game.State, player int8) uint64 {
	var bb uint64
	for i, c := range s.Cells {
		if c == player {
			bb |= uint64(1) << uint(i)
		}
	}
	return bb
}

func hasWinningLine(bb uint64) bool {
	for _, pattern := range winningPatterns {
		if bb&pattern == pattern {
			return true
		}
	}
	return false
}

// CheckWin reports whether the player who made the last move completed a
// winning line.
func CheckWin(s game.State) bool {
	lastPlayer := -s.CurrentPlayer()
	return hasWinningLine(Bitboard(s, lastPlayer))
}

// CheckGameOver reports whether the game has ended by a win or a full
// board. Both players' bitboards are checked against the pattern table;
// a current-mover win should be unreachable under correct move
// sequencing, but the secondary check guards against corrupt states fed
// in from outside (hex interchange, replays).
func CheckGameOver(s game.State) bool {
	current := s.CurrentPlayer()
	if hasWinningLine(Bitboard(s, -current)) {
		return true
	}
	if hasWinningLine(Bitboard(s, current)) {
		return true
	}
	return s.NumPieces() == game.NumCells
}

// ValueAndTerminated evaluates s from the perspective of the player
// about to move: -1 when the last mover just won (the side to move has
// lost), 0 for a draw or an ongoing game. The second return is true iff
// the game has ended.
func ValueAndTerminated(s game.State) (float32, bool) {
	if CheckWin(s) {
		return -1, true
	}
	if NumValidMoves(s) == 0 {
		return 0, true
	}
	return 0, false
}
