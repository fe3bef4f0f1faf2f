// Package mcts implements AlphaZero-style Monte-Carlo Tree Search over
// the 4x4x4 Connect Four rules, guided by an external policy/value
// oracle.
package mcts

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/scorefour/scorefour/executor/convert"
	"github.com/scorefour/scorefour/game"
	"github.com/scorefour/scorefour/rules"
)

// Predictor is the policy/value oracle contract. Given an encoded state
// (convert.Encode layout) it returns a 16-entry non-negative action
// prior vector and a scalar value in [-1, 1] from the perspective of the
// side to move. The engine masks illegal actions and renormalizes, so
// the oracle need not. Implementations must tolerate concurrent calls.
type Predictor interface {
	Predict(encoded []float32) (policy []float32, value float32, err error)
}

// Config holds the search hyperparameters.
type Config struct {
	// Cpuct is the PUCT exploration constant.
	Cpuct float32

	// Simulations is the number of selection/evaluation/backprop passes
	// per Search call.
	Simulations int

	// DirichletAlpha and DirichletEpsilon control root exploration
	// noise: policy = (1-eps)*priors + eps*Dir(alpha).
	DirichletAlpha   float64
	DirichletEpsilon float32
}

// MCTS holds the search context. The tree is rebuilt from scratch on
// every Search call; only Config, Client and Rng persist across calls.
type MCTS struct {
	Config Config
	Client Predictor
	Rng    *rand.Rand
}

// Search runs Config.Simulations MCTS simulations from state and returns
// the normalized visit-count distribution over the 16 actions. Actions
// whose root child was never created stay exactly 0.
//
// With addExplorationNoise the root is pre-expanded with
// Dirichlet-perturbed priors, which self-play uses to diversify games.
//
// The loop is sequential: each simulation's statistics feed the next
// selection. Search checks ctx between simulations and returns the
// distribution accumulated so far together with ctx.Err() when
// cancelled.
func (m *MCTS) Search(ctx context.Context, state game.State, addExplorationNoise bool) ([]float32, error) {
	root := NewNode(state, nil, -1, 0)

	if addExplorationNoise {
		// The noise mixes into the masked but not-yet-normalized priors,
		// matching the reference behavior exactly.
		policy, _, err := m.predictMasked(root.State)
		if err != nil {
			return nil, err
		}
		m.mixDirichletNoise(policy, rules.ValidMoves(root.State))
		if err := root.Expand(policy); err != nil {
			return nil, err
		}
	}

	for i := 0; i < m.Config.Simulations; i++ {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return rootPolicy(root), ctx.Err()
			default:
			}
		}

		// Selection
		node := root
		for node.IsExpanded() {
			node = node.Select(m.Config.Cpuct)
		}

		// Evaluation: terminal values come straight from the rules, other
		// leaves are expanded with oracle priors and scored by the oracle.
		value, terminal := rules.ValueAndTerminated(node.State)
		if !terminal {
			policy, leafValue, err := m.evaluateLeaf(node.State)
			if err != nil {
				return nil, err
			}
			if err := node.Expand(policy); err != nil {
				return nil, err
			}
			value = leafValue
		}

		// Backpropagation
		node.Backpropagate(value)
	}

	return rootPolicy(root), nil
}

// predictMasked queries the oracle and zeroes illegal entries of the
// returned priors without renormalizing.
func (m *MCTS) predictMasked(state game.State) ([]float32, float32, error) {
	encodedPtr := convert.Encode(state)
	rawPolicy, value, err := m.Client.Predict(*encodedPtr)
	convert.PutFloatBuffer(encodedPtr)
	if err != nil {
		return nil, 0, fmt.Errorf("oracle predict: %w", err)
	}
	if len(rawPolicy) < game.NumActions {
		return nil, 0, fmt.Errorf("oracle returned %d priors, want %d", len(rawPolicy), game.NumActions)
	}

	policy := make([]float32, game.NumActions)
	copy(policy, rawPolicy[:game.NumActions])
	valid := rules.ValidMoves(state)
	for i := range policy {
		if !valid[i] {
			policy[i] = 0
		}
	}
	return policy, value, nil
}

// evaluateLeaf queries the oracle and returns the legality-masked,
// renormalized policy plus the oracle value. A policy that sums to zero
// after masking is replaced by a uniform distribution over legal moves,
// never surfaced as an error.
func (m *MCTS) evaluateLeaf(state game.State) ([]float32, float32, error) {
	policy, value, err := m.predictMasked(state)
	if err != nil {
		return nil, 0, err
	}
	maskAndNormalize(policy, rules.ValidMoves(state))
	return policy, value, nil
}

// mixDirichletNoise perturbs a masked policy in place with Dirichlet
// noise, re-masks and renormalizes. Degenerate zero-sum results fall
// back to uniform over legal moves.
func (m *MCTS) mixDirichletNoise(policy []float32, valid [game.NumActions]bool) {
	alpha := make([]float64, game.NumActions)
	for i := range alpha {
		alpha[i] = m.Config.DirichletAlpha
	}
	noise := distmv.NewDirichlet(alpha, m.Rng).Rand(nil)

	eps := m.Config.DirichletEpsilon
	for i := range policy {
		policy[i] = (1-eps)*policy[i] + eps*float32(noise[i])
	}
	maskAndNormalize(policy, valid)
}

// maskAndNormalize zeroes illegal entries and rescales the rest to sum
// to 1, substituting a uniform distribution over legal moves when the
// masked sum is zero.
func maskAndNormalize(policy []float32, valid [game.NumActions]bool) {
	var sum float32
	for i := range policy {
		if !valid[i] {
			policy[i] = 0
		}
		sum += policy[i]
	}

	if sum > 0 {
		inv := 1 / sum
		for i := range policy {
			policy[i] *= inv
		}
		return
	}

	legal := 0
	for _, v := range valid {
		if v {
			legal++
		}
	}
	if legal == 0 {
		return
	}
	uniform := 1 / float32(legal)
	for i := range policy {
		if valid[i] {
			policy[i] = uniform
		}
	}
}

// rootPolicy converts root child visit counts into an action probability
// vector. Never-expanded actions stay 0.
func rootPolicy(root *Node) []float32 {
	probs := make([]float32, game.NumActions)
	total := 0
	for _, child := range root.Children {
		total += child.VisitCount
	}
	if total == 0 {
		return probs
	}
	for _, child := range root.Children {
		probs[child.Action] = float32(child.VisitCount) / float32(total)
	}
	return probs
}

// SelectMove picks an action from a search policy. With playBest it
// returns the argmax (first maximum wins). Otherwise each probability is
// raised to 1/temperature, renormalized, and one action is sampled;
// temperature must be positive for stochastic selection.
func SelectMove(rng *rand.Rand, policy []float32, temperature float64, playBest bool) (int, error) {
	if playBest {
		best := 0
		for i := 1; i < len(policy); i++ {
			if policy[i] > policy[best] {
				best = i
			}
		}
		return best, nil
	}

	if temperature <= 0 {
		return 0, fmt.Errorf("temperature must be greater than 0 for stochastic selection, got %v", temperature)
	}

	adjusted := make([]float64, len(policy))
	var sum float64
	for i, p := range policy {
		adjusted[i] = math.Pow(float64(p), 1/temperature)
		sum += adjusted[i]
	}
	if sum <= 0 {
		return 0, fmt.Errorf("policy has no positive mass")
	}

	r := rng.Float64() * sum
	var cumulative float64
	for i, p := range adjusted {
		cumulative += p
		if r < cumulative {
			return i, nil
		}
	}
	// Float rounding can leave r at the very top of the range.
	return len(policy) - 1, nil
}
