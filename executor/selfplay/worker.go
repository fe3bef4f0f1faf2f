// Package selfplay plays complete games of the engine against itself
// and turns them into training rows.
package selfplay

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/exp/rand"

	"github.com/scorefour/scorefour/executor/convert"
	"github.com/scorefour/scorefour/executor/mcts"
	"github.com/scorefour/scorefour/game"
	"github.com/scorefour/scorefour/rules"
	"github.com/scorefour/scorefour/store"
)

type GameResult struct {
	// Winner is game.PlayerA, game.PlayerB, or 0 for a draw.
	Winner int8
	Steps  int
}

type Options struct {
	// TemperatureMoves is how many opening plies are sampled with the
	// given temperature; afterwards the worker plays the argmax move.
	TemperatureMoves int
	Temperature      float64

	// Augment enables symmetry augmentation of the recorded rows.
	Augment bool

	Verbose bool
}

func DefaultOptions() Options {
	return Options{
		TemperatureMoves: 12,
		Temperature:      1.0,
		Augment:          true,
	}
}

// position is one recorded search result awaiting its outcome label.
type position struct {
	state  game.State
	policy [game.NumActions]float32
	player int8
}

// PlayGame runs one self-play game to completion and returns the
// training rows for every position, augmented through the board
// symmetries when enabled. Every search runs with root exploration
// noise so repeated games diverge.
//
// A cancelled context aborts the game; no partial rows are returned.
func PlayGame(ctx context.Context, workerID int, cfg mcts.Config, client mcts.Predictor, rng *rand.Rand, opts Options, onStep func()) ([]store.TrainingRow, GameResult, error) {
	if opts.Temperature <= 0 {
		opts.Temperature = 1.0
	}

	engine := &mcts.MCTS{
		Config: cfg,
		Client: client,
		Rng:    rng,
	}

	gameID := fmt.Sprintf("selfplay_%d_%d", time.Now().UnixNano(), workerID)
	state := game.NewState()
	positions := make([]position, 0, game.NumCells)

	for {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return nil, GameResult{Steps: len(positions)}, ctx.Err()
			default:
			}
		}

		if _, terminated := rules.ValueAndTerminated(state); terminated {
			break
		}

		policy, err := engine.Search(ctx, state, true)
		if err != nil {
			return nil, GameResult{Steps: len(positions)}, fmt.Errorf("search at ply %d: %w", len(positions), err)
		}

		var recorded [game.NumActions]float32
		copy(recorded[:], policy)
		positions = append(positions, position{
			state:  state,
			policy: recorded,
			player: state.CurrentPlayer(),
		})

		playBest := len(positions) > opts.TemperatureMoves
		action, err := mcts.SelectMove(rng, policy, opts.Temperature, playBest)
		if err != nil {
			return nil, GameResult{Steps: len(positions)}, fmt.Errorf("select move at ply %d: %w", len(positions), err)
		}

		state, err = rules.NextState(state, action)
		if err != nil {
			return nil, GameResult{Steps: len(positions)}, fmt.Errorf("apply move %d at ply %d: %w", action, len(positions), err)
		}

		if opts.Verbose {
			log.Printf("worker %d ply %d move %d\n%s", workerID, len(positions), action, state)
		}
		if onStep != nil {
			onStep()
		}
	}

	result := GameResult{Steps: len(positions)}
	if value, _ := rules.ValueAndTerminated(state); value == -1 {
		// The side to move has lost; the previous mover won.
		result.Winner = -state.CurrentPlayer()
	}

	return buildRows(gameID, positions, result, opts.Augment), result, nil
}

// buildRows labels every recorded position with the final outcome from
// that position's mover's perspective and expands each one through the
// board symmetries.
func buildRows(gameID string, positions []position, result GameResult, augment bool) []store.TrainingRow {
	rows := make([]store.TrainingRow, 0, len(positions)*8)

	for turn, p := range positions {
		var value float32
		switch {
		case result.Winner == 0:
			value = 0
		case p.player == result.Winner:
			value = 1
		default:
			value = -1
		}

		if !augment {
			rows = append(rows, store.TrainingRow{
				GameID: gameID,
				Turn:   int32(turn),
				Player: int32(p.player),
				State:  convert.EncodeCopy(p.state),
				Policy: append([]float32(nil), p.policy[:]...),
				Value:  value,
				Source: "selfplay",
			})
			continue
		}

		for symIdx, sym := range rules.Symmetries(p.state, p.policy) {
			rows = append(rows, store.TrainingRow{
				GameID:   gameID,
				Turn:     int32(turn),
				Player:   int32(p.player),
				Symmetry: int32(symIdx),
				State:    convert.EncodeCopy(sym.State),
				Policy:   append([]float32(nil), sym.Policy[:]...),
				Value:    value,
				Source:   "selfplay",
			})
		}
	}

	return rows
}
