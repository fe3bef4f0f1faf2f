// Package convert encodes board states into the float tensor consumed by
// the policy/value network.
package convert

import (
	"sync"

	"github.com/scorefour/scorefour/game"
)

const (
	// Planes is the channel count of the encoded tensor:
	// 0: player A occupancy, 1: player B occupancy, 2: empty cells,
	// 3: constant side-to-move plane (all 1 when A moves, else all 0).
	Planes = 4

	// FloatSize is the flattened tensor length: (C, D, H, W) = (4,4,4,4).
	FloatSize = Planes * game.NumCells
)

var floatPool = sync.Pool{
	New: func() interface{} {
		b := make([]float32, FloatSize)
		return &b
	},
}

// GetFloatBuffer returns an encode buffer from the pool.
func GetFloatBuffer() *[]float32 {
	return floatPool.Get().(*[]float32)
}

// PutFloatBuffer returns a buffer to the pool.
func PutFloatBuffer(b *[]float32) {
	floatPool.Put(b)
}

// Encode fills a pooled float32 slice with the 4-plane representation of
// state, laid out plane-major with cells in z-major order inside each
// plane. Caller must return the buffer using PutFloatBuffer.
func Encode(state game.State) *[]float32 {
	dataPtr := GetFloatBuffer()
	data := *dataPtr
	clear(data)

	for i, c := range state.Cells {
		switch c {
		case game.PlayerA:
			data[i] = 1
		case game.PlayerB:
			data[game.NumCells+i] = 1
		default:
			data[2*game.NumCells+i] = 1
		}
	}

	if state.CurrentPlayer() == game.PlayerA {
		turn := data[3*game.NumCells : 4*game.NumCells]
		for i := range turn {
			turn[i] = 1
		}
	}

	return dataPtr
}

// EncodeCopy returns the encoded tensor in a freshly allocated slice,
// for callers that keep the encoding around (training rows).
func EncodeCopy(state game.State) []float32 {
	ptr := Encode(state)
	out := make([]float32, FloatSize)
	copy(out, *ptr)
	PutFloatBuffer(ptr)
	return out
}
