package mcts

import (
	"context"
	"math"
	"testing"

	"golang.org/x/exp/rand"

	"github.com/scorefour/scorefour/game"
	"github.com/scorefour/scorefour/rules"
)

// MockPredictor returns uniform priors and a fixed value.
type MockPredictor struct {
	Value float32
	Calls int
}

func (m *MockPredictor) Predict(encoded []float32) ([]float32, float32, error) {
	m.Calls++
	policy := make([]float32, game.NumActions)
	for i := range policy {
		policy[i] = 1.0 / game.NumActions
	}
	return policy, m.Value, nil
}

// ZeroPredictor returns an all-zero policy, forcing the uniform
// fallback.
type ZeroPredictor struct{}

func (z *ZeroPredictor) Predict(encoded []float32) ([]float32, float32, error) {
	return make([]float32, game.NumActions), 0, nil
}

func newTestMCTS(client Predictor, sims int) *MCTS {
	return &MCTS{
		Config: Config{
			Cpuct:            2.0,
			Simulations:      sims,
			DirichletAlpha:   0.3,
			DirichletEpsilon: 0.25,
		},
		Client: client,
		Rng:    rand.New(rand.NewSource(42)),
	}
}

func TestSearch_PolicySumsToOne(t *testing.T) {
	m := newTestMCTS(&MockPredictor{Value: 0.5}, 100)

	probs, err := m.Search(context.Background(), game.NewState(), false)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(probs) != game.NumActions {
		t.Fatalf("expected %d probabilities, got %d", game.NumActions, len(probs))
	}

	var sum float32
	for _, p := range probs {
		if p < 0 {
			t.Fatalf("negative probability %v", p)
		}
		sum += p
	}
	if math.Abs(float64(sum)-1) > 1e-4 {
		t.Errorf("probabilities sum to %v, expected 1", sum)
	}
}

func TestSearch_IllegalActionsStayZero(t *testing.T) {
	// Fill column 0 so action 0 is illegal.
	state, applied := rules.StatesFromMoves([]int{0, 0, 0, 0})
	if len(applied) != 4 {
		t.Fatalf("setup wrong: %d moves applied", len(applied))
	}

	m := newTestMCTS(&MockPredictor{}, 200)
	probs, err := m.Search(context.Background(), state, false)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if probs[0] != 0 {
		t.Errorf("illegal action 0 got probability %v, expected exactly 0", probs[0])
	}
}

func TestSearch_WithExplorationNoise(t *testing.T) {
	m := newTestMCTS(&MockPredictor{Value: 0.1}, 50)

	probs, err := m.Search(context.Background(), game.NewState(), true)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	var sum float32
	for _, p := range probs {
		sum += p
	}
	if math.Abs(float64(sum)-1) > 1e-4 {
		t.Errorf("probabilities sum to %v, expected 1", sum)
	}
}

func TestSearch_ZeroPolicyFallsBackToUniform(t *testing.T) {
	m := newTestMCTS(&ZeroPredictor{}, 32)

	probs, err := m.Search(context.Background(), game.NewState(), false)
	if err != nil {
		t.Fatalf("Search should recover from an all-zero policy, got: %v", err)
	}

	var sum float32
	for _, p := range probs {
		sum += p
	}
	if math.Abs(float64(sum)-1) > 1e-4 {
		t.Errorf("probabilities sum to %v, expected 1", sum)
	}
}

func TestSearch_TerminalRoot(t *testing.T) {
	// A already won; the tree has nothing to expand.
	state, _ := rules.StatesFromMoves([]int{0, 1, 0, 1, 0, 1, 0})
	if !rules.CheckWin(state) {
		t.Fatal("setup wrong: expected a won state")
	}

	client := &MockPredictor{}
	m := newTestMCTS(client, 10)
	probs, err := m.Search(context.Background(), state, false)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for a, p := range probs {
		if p != 0 {
			t.Errorf("terminal root produced probability %v for action %d", p, a)
		}
	}
	if client.Calls != 0 {
		t.Errorf("terminal states must not hit the oracle, got %d calls", client.Calls)
	}
}

func TestSearch_PrefersImmediateWin(t *testing.T) {
	// A has three pieces stacked in column 0; dropping there again wins.
	state, _ := rules.StatesFromMoves([]int{0, 1, 0, 1, 0, 1})

	m := newTestMCTS(&MockPredictor{}, 400)
	probs, err := m.Search(context.Background(), state, false)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	best := 0
	for i := range probs {
		if probs[i] > probs[best] {
			best = i
		}
	}
	if best != 0 {
		t.Errorf("expected the winning drop (action 0) to dominate, got action %d (%v)", best, probs)
	}
}

func TestSearch_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := newTestMCTS(&MockPredictor{}, 1000)
	probs, err := m.Search(ctx, game.NewState(), false)
	if err == nil {
		t.Fatal("expected a context error")
	}
	if probs == nil {
		t.Fatal("cancelled search should still return the partial distribution")
	}
}

func TestSearch_Deterministic(t *testing.T) {
	// No noise, fixed oracle: two searches must agree bit for bit.
	state, _ := rules.StatesFromMoves([]int{5, 9})

	a, err := newTestMCTS(&MockPredictor{Value: 0.3}, 150).Search(context.Background(), state, false)
	if err != nil {
		t.Fatal(err)
	}
	b, err := newTestMCTS(&MockPredictor{Value: 0.3}, 150).Search(context.Background(), state, false)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("action %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestSelectMove_PlayBest(t *testing.T) {
	policy := make([]float32, game.NumActions)
	policy[3] = 0.2
	policy[7] = 0.5
	policy[12] = 0.3

	for _, temp := range []float64{-1, 0, 0.5, 10} {
		move, err := SelectMove(nil, policy, temp, true)
		if err != nil {
			t.Fatalf("temp %v: %v", temp, err)
		}
		if move != 7 {
			t.Errorf("temp %v: expected argmax 7, got %d", temp, move)
		}
	}
}

func TestSelectMove_PlayBestFirstMaximum(t *testing.T) {
	policy := make([]float32, game.NumActions)
	policy[2] = 0.5
	policy[9] = 0.5

	move, err := SelectMove(nil, policy, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if move != 2 {
		t.Errorf("ties must resolve to the first maximum, got %d", move)
	}
}

func TestSelectMove_InvalidTemperature(t *testing.T) {
	policy := make([]float32, game.NumActions)
	policy[0] = 1

	rng := rand.New(rand.NewSource(1))
	if _, err := SelectMove(rng, policy, 0, false); err == nil {
		t.Error("expected error for temperature 0")
	}
	if _, err := SelectMove(rng, policy, -2, false); err == nil {
		t.Error("expected error for negative temperature")
	}
}

func TestSelectMove_UniformSampling(t *testing.T) {
	// Four equally likely actions sampled at temperature 1 should come
	// out roughly uniform.
	policy := make([]float32, game.NumActions)
	actions := []int{1, 4, 8, 13}
	for _, a := range actions {
		policy[a] = 0.25
	}

	rng := rand.New(rand.NewSource(7))
	const trials = 8000
	counts := make(map[int]int)
	for i := 0; i < trials; i++ {
		move, err := SelectMove(rng, policy, 1, false)
		if err != nil {
			t.Fatal(err)
		}
		counts[move]++
	}

	for a, c := range counts {
		found := false
		for _, want := range actions {
			if a == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("sampled zero-probability action %d", a)
		}
		// Expected 2000 each; allow a wide statistical margin.
		if c < 1700 || c > 2300 {
			t.Errorf("action %d sampled %d times, expected ~%d", a, c, trials/len(actions))
		}
	}
}

func TestNode_BackpropagateAlternatesSign(t *testing.T) {
	root := NewNode(game.NewState(), nil, -1, 0)
	mid := NewNode(game.NewState(), root, 0, 1)
	leaf := NewNode(game.NewState(), mid, 1, 1)

	leaf.Backpropagate(1)

	if leaf.ValueSum != 1 || leaf.VisitCount != 1 {
		t.Errorf("leaf: W=%v N=%d", leaf.ValueSum, leaf.VisitCount)
	}
	if mid.ValueSum != -1 || mid.VisitCount != 1 {
		t.Errorf("mid: W=%v N=%d", mid.ValueSum, mid.VisitCount)
	}
	if root.ValueSum != 1 || root.VisitCount != 1 {
		t.Errorf("root: W=%v N=%d", root.ValueSum, root.VisitCount)
	}
}

func TestNode_ExpandAscendingOrder(t *testing.T) {
	root := NewNode(game.NewState(), nil, -1, 0)
	policy := make([]float32, game.NumActions)
	policy[2] = 0.5
	policy[5] = 0.25
	policy[11] = 0.25

	if err := root.Expand(policy); err != nil {
		t.Fatal(err)
	}
	if len(root.Children) != 3 {
		t.Fatalf("expected 3 children, got %d", len(root.Children))
	}
	wantActions := []int{2, 5, 11}
	for i, child := range root.Children {
		if child.Action != wantActions[i] {
			t.Errorf("child %d: action %d, want %d", i, child.Action, wantActions[i])
		}
		if child.Parent != root {
			t.Errorf("child %d: parent not set", i)
		}
	}
}

func TestNode_ExpandTwiceFails(t *testing.T) {
	root := NewNode(game.NewState(), nil, -1, 0)
	policy := make([]float32, game.NumActions)
	policy[0] = 1

	if err := root.Expand(policy); err != nil {
		t.Fatal(err)
	}
	if err := root.Expand(policy); err == nil {
		t.Error("re-expansion must fail")
	}
}

func TestNode_SelectTieBreaksOnFirstChild(t *testing.T) {
	root := NewNode(game.NewState(), nil, -1, 0)
	policy := make([]float32, game.NumActions)
	policy[3] = 0.5
	policy[8] = 0.5

	if err := root.Expand(policy); err != nil {
		t.Fatal(err)
	}

	// Zero visits everywhere: identical UCB scores, so the first child
	// (lowest action) must win.
	if got := root.Select(2.0); got.Action != 3 {
		t.Errorf("expected action 3 on tie, got %d", got.Action)
	}
}

func TestMixDirichletNoise_ProducesLegalDistribution(t *testing.T) {
	m := newTestMCTS(&MockPredictor{}, 1)

	state, _ := rules.StatesFromMoves([]int{0, 0, 0, 0})
	valid := rules.ValidMoves(state)

	policy := make([]float32, game.NumActions)
	for i := range policy {
		if valid[i] {
			policy[i] = 1.0 / 15
		}
	}

	m.mixDirichletNoise(policy, valid)

	var sum float32
	for a, p := range policy {
		if !valid[a] && p != 0 {
			t.Errorf("illegal action %d got noise mass %v", a, p)
		}
		if p < 0 {
			t.Errorf("action %d got negative mass %v", a, p)
		}
		sum += p
	}
	if math.Abs(float64(sum)-1) > 1e-5 {
		t.Errorf("noisy policy sums to %v, want 1", sum)
	}
}

func BenchmarkSearch(b *testing.B) {
	m := newTestMCTS(&MockPredictor{Value: 0.2}, 200)
	state := game.NewState()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Search(context.Background(), state, false); err != nil {
			b.Fatalf("Search failed: %v", err)
		}
	}
}
