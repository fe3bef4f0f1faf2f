package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/scorefour/scorefour/game"
)

// The hex interchange format stores each player's pieces as a 64-bit
// bitboard with bit index pos = (3-z)*16 + y*4 + x. The z-axis is
// reversed relative to the internal layout, so decode must un-reverse it.
// This matches the browser-side encoder and must not change.

func parseHexBoard(h string) (uint64, error) {
	h = strings.TrimPrefix(strings.TrimSpace(h), "0x")
	if h == "" {
		return 0, fmt.Errorf("empty hex bitboard")
	}
	v, err := strconv.ParseUint(h, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hex bitboard %q: %w", h, err)
	}
	return v, nil
}

// StateFromHex reconstructs a board from the two per-player hex
// bitboards. Later bits win if the inputs overlap, matching the
// reference decoder; callers that care should validate piece counts.
func StateFromHex(hexA, hexB string) (game.State, error) {
	var state game.State

	bbA, err := parseHexBoard(hexA)
	if err != nil {
		return state, err
	}
	bbB, err := parseHexBoard(hexB)
	if err != nil {
		return state, err
	}

	for i := 0; i < game.NumCells; i++ {
		bit := uint64(1) << uint(i)
		z := 3 - i/16
		y := (i % 16) / 4
		x := i % 4
		if bbA&bit != 0 {
			state.Set(z, y, x, game.PlayerA)
		}
		if bbB&bit != 0 {
			state.Set(z, y, x, game.PlayerB)
		}
	}

	return state, nil
}

// HexFromState encodes both players' bitboards in the interchange
// format, as zero-padded 16-digit hex strings.
func HexFromState(s game.State) (hexA, hexB string) {
	var bbA, bbB uint64
	for z := 0; z < game.Depth; z++ {
		for y := 0; y < game.Rows; y++ {
			for x := 0; x < game.Cols; x++ {
				pos := uint((3-z)*16 + y*4 + x)
				switch s.At(z, y, x) {
				case game.PlayerA:
					bbA |= uint64(1) << pos
				case game.PlayerB:
					bbB |= uint64(1) << pos
				}
			}
		}
	}
	return fmt.Sprintf("%016x", bbA), fmt.Sprintf("%016x", bbB)
}
