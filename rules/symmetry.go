package rules

import "github.com/scorefour/scorefour/game"

// Symmetry is a transformed (state, policy) pair produced for training
// data augmentation.
type Symmetry struct {
	State  game.State
	Policy [game.NumActions]float32
}

// rotate90 rotates the row/col axes of every depth layer a quarter turn
// counterclockwise: out[z, i, j] = in[z, j, 3-i].
func rotate90(s game.State) game.State {
	var out game.State
	for z := 0; z < game.Depth; z++ {
		for i := 0; i < game.Rows; i++ {
			for j := 0; j < game.Cols; j++ {
				out.Set(z, i, j, s.At(z, j, game.Rows-1-i))
			}
		}
	}
	return out
}

// flipCols mirrors every depth layer across its column axis.
func flipCols(s game.State) game.State {
	var out game.State
	for z := 0; z < game.Depth; z++ {
		for y := 0; y < game.Rows; y++ {
			for x := 0; x < game.Cols; x++ {
				out.Set(z, y, x, s.At(z, y, game.Cols-1-x))
			}
		}
	}
	return out
}

// rotatePolicy90 applies the same quarter turn to the policy's 4x4
// (row, col) reshape.
func rotatePolicy90(p [game.NumActions]float32) [game.NumActions]float32 {
	var out [game.NumActions]float32
	for i := 0; i < game.Rows; i++ {
		for j := 0; j < game.Cols; j++ {
			out[i*game.Cols+j] = p[j*game.Cols+(game.Rows-1-i)]
		}
	}
	return out
}

func flipPolicyCols(p [game.NumActions]float32) [game.NumActions]float32 {
	var out [game.NumActions]float32
	for y := 0; y < game.Rows; y++ {
		for x := 0; x < game.Cols; x++ {
			out[y*game.Cols+x] = p[y*game.Cols+(game.Cols-1-x)]
		}
	}
	return out
}

// Symmetries generates the 8 symmetries of the square acting on the
// row/col axes (4 rotations x {identity, horizontal flip}), applying the
// same transform to state and policy. Gravity acts along the depth axis,
// so all 8 transforms map legal positions to legal positions. Duplicate
// states are removed, keeping the first occurrence, so highly symmetric
// boards yield fewer than 8 pairs.
func Symmetries(s game.State, policy [game.NumActions]float32) []Symmetry {
	out := make([]Symmetry, 0, 8)
	seen := make(map[game.State]bool, 8)

	add := func(st game.State, p [game.NumActions]float32) {
		if seen[st] {
			return
		}
		seen[st] = true
		out = append(out, Symmetry{State: st, Policy: p})
	}

	rotState, rotPolicy := s, policy
	for k := 0; k < 4; k++ {
		if k > 0 {
			rotState = rotate90(rotState)
			rotPolicy = rotatePolicy90(rotPolicy)
		}
		add(rotState, rotPolicy)
		add(flipCols(rotState), flipPolicyCols(rotPolicy))
	}

	return out
}
