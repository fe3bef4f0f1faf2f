// Command analyze runs a single search on a given position and prints
// the visit distribution. Positions come in either as a move list or
// as the two hex bitboards the web frontend exchanges.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/rand"

	"github.com/scorefour/scorefour/executor/inference"
	"github.com/scorefour/scorefour/executor/mcts"
	"github.com/scorefour/scorefour/game"
	"github.com/scorefour/scorefour/rules"
)

func main() {
	modelPath := flag.String("model", filepath.Join("models", "scorefour_net.onnx"), "Path to ONNX model")
	moves := flag.String("moves", "", "Comma-separated action list to replay from the empty board")
	hexA := flag.String("hex-a", "", "Hex bitboard for player 1 (overrides -moves, requires -hex-b)")
	hexB := flag.String("hex-b", "", "Hex bitboard for player 2")
	sims := flag.Int("sims", 600, "Number of MCTS simulations")
	cpuct := flag.Float64("cpuct", 2.0, "PUCT exploration constant")
	cuda := flag.Bool("cuda", true, "Enable CUDA for inference")
	flag.Parse()

	if !*cuda {
		os.Setenv("SCOREFOUR_ORT_DISABLE_CUDA", "1")
	}

	state, err := buildState(*moves, *hexA, *hexB)
	if err != nil {
		log.Fatalf("Failed to build position: %v", err)
	}

	log.Printf("Loading model: %s", *modelPath)
	client, err := inference.NewOnnxClient(*modelPath)
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	defer client.Close()

	engine := &mcts.MCTS{
		Config: mcts.Config{
			Cpuct:       float32(*cpuct),
			Simulations: *sims,
		},
		Client: client,
		Rng:    rand.New(rand.NewSource(uint64(time.Now().UnixNano()))),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Println(state)

	if value, terminated := rules.ValueAndTerminated(state); terminated {
		if value == -1 {
			fmt.Printf("Game over: player %d has won.\n", -state.CurrentPlayer())
		} else {
			fmt.Println("Game over: draw.")
		}
		return
	}

	start := time.Now()
	policy, err := engine.Search(ctx, state, false)
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}
	elapsed := time.Since(start)

	fmt.Printf("Search: %d sims in %s (%.0f sims/s)\n\n", *sims, elapsed.Round(time.Millisecond), float64(*sims)/elapsed.Seconds())

	best := 0
	for a := 1; a < game.NumActions; a++ {
		if policy[a] > policy[best] {
			best = a
		}
	}

	fmt.Println("Action  (row,col)  Visits")
	for a, p := range policy {
		row, col, _ := rules.ActionCoords(a)
		marker := ""
		if a == best {
			marker = "  <- best"
		}
		fmt.Printf("  %2d     (%d,%d)    %5.1f%%%s\n", a, row, col, p*100, marker)
	}

	a1, b1 := rules.HexFromState(state)
	fmt.Printf("\nPosition: hex-a=%s hex-b=%s\n", a1, b1)
}

func buildState(moves, hexA, hexB string) (game.State, error) {
	if hexA != "" || hexB != "" {
		if hexA == "" || hexB == "" {
			return game.State{}, fmt.Errorf("-hex-a and -hex-b must be given together")
		}
		return rules.StateFromHex(hexA, hexB)
	}

	state := game.NewState()
	if moves == "" {
		return state, nil
	}

	for _, field := range strings.Split(moves, ",") {
		action, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return game.State{}, fmt.Errorf("bad action %q: %w", field, err)
		}
		state, err = rules.NextState(state, action)
		if err != nil {
			return game.State{}, err
		}
	}
	return state, nil
}
