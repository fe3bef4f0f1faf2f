package convert

import (
	"testing"

	"github.com/scorefour/scorefour/game"
	"github.com/scorefour/scorefour/rules"
)

func TestEncode_EmptyBoard(t *testing.T) {
	ptr := Encode(game.NewState())
	defer PutFloatBuffer(ptr)
	data := *ptr

	if len(data) != FloatSize {
		t.Fatalf("expected %d floats, got %d", FloatSize, len(data))
	}

	// Planes 0 and 1 all zero, plane 2 all ones (everything empty),
	// plane 3 all ones (player A to move).
	for i := 0; i < game.NumCells; i++ {
		if data[i] != 0 || data[game.NumCells+i] != 0 {
			t.Fatalf("cell %d: occupancy planes should be zero on empty board", i)
		}
		if data[2*game.NumCells+i] != 1 {
			t.Fatalf("cell %d: empty plane should be 1", i)
		}
		if data[3*game.NumCells+i] != 1 {
			t.Fatalf("cell %d: turn plane should be 1 when player A moves", i)
		}
	}
}

func TestEncode_Planes(t *testing.T) {
	state, _ := rules.StatesFromMoves([]int{0, 5, 2})
	ptr := Encode(state)
	defer PutFloatBuffer(ptr)
	data := *ptr

	for i, c := range state.Cells {
		wantA, wantB, wantEmpty := float32(0), float32(0), float32(0)
		switch c {
		case game.PlayerA:
			wantA = 1
		case game.PlayerB:
			wantB = 1
		default:
			wantEmpty = 1
		}
		if data[i] != wantA {
			t.Fatalf("cell %d: plane 0 = %v, want %v", i, data[i], wantA)
		}
		if data[game.NumCells+i] != wantB {
			t.Fatalf("cell %d: plane 1 = %v, want %v", i, data[game.NumCells+i], wantB)
		}
		if data[2*game.NumCells+i] != wantEmpty {
			t.Fatalf("cell %d: plane 2 = %v, want %v", i, data[2*game.NumCells+i], wantEmpty)
		}
	}

	// 3 pieces placed: player B to move, so the turn plane is all zero.
	for i := 0; i < game.NumCells; i++ {
		if data[3*game.NumCells+i] != 0 {
			t.Fatalf("cell %d: turn plane should be 0 when player B moves", i)
		}
	}
}

func TestEncodeCopy_Independent(t *testing.T) {
	a := EncodeCopy(game.NewState())
	b := EncodeCopy(game.NewState())
	a[0] = 42
	if b[0] == 42 {
		t.Error("EncodeCopy results should not share memory")
	}
}

func BenchmarkEncode(b *testing.B) {
	state, _ := rules.StatesFromMoves([]int{0, 5, 2, 9, 14, 3})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		PutFloatBuffer(Encode(state))
	}
}
