package mcts

import (
	"fmt"
	"math"

	"github.com/scorefour/scorefour/game"
	"github.com/scorefour/scorefour/rules"
)

// Node represents a state in the MCTS tree.
//
// ValueSum accumulates simulation values from this node's own mover's
// perspective, so a parent reads a child's average value negated. A node
// is unexpanded until Expand gives it children; the transition happens
// once and never reverts.
type Node struct {
	State  game.State
	Parent *Node

	// Action is the move that produced this node from its parent, or -1
	// for the root.
	Action int

	PriorProb  float32
	Children   []*Node
	VisitCount int
	ValueSum   float32
}

// NewNode creates a new MCTS node.
func NewNode(state game.State, parent *Node, action int, prior float32) *Node {
	return &Node{
		State:     state,
		Parent:    parent,
		Action:    action,
		PriorProb: prior,
	}
}

// IsExpanded reports whether the node already has children.
func (n *Node) IsExpanded() bool {
	return len(n.Children) > 0
}

// Q returns the node's average value from its own mover's perspective,
// or 0 before any visit.
func (n *Node) Q() float32 {
	if n.VisitCount == 0 {
		return 0
	}
	return n.ValueSum / float32(n.VisitCount)
}

// Select returns the child maximizing the PUCT score
//
//	U(child) = Q + cpuct * P(child) * sqrt(N(self)) / (1 + N(child))
//
// where Q is the child's average value negated into the parent's
// perspective, or 0 for unvisited children. Ties go to the
// first-encountered child; children are stored in ascending action
// order, so selection is deterministic for identical inputs.
func (n *Node) Select(cpuct float32) *Node {
	var best *Node
	bestScore := float32(math.Inf(-1))

	sqrtN := float32(math.Sqrt(float64(n.VisitCount)))

	for _, child := range n.Children {
		q := float32(0)
		if child.VisitCount > 0 {
			q = -child.ValueSum / float32(child.VisitCount)
		}

		u := q + cpuct*child.PriorProb*sqrtN/(1+float32(child.VisitCount))

		if u > bestScore {
			bestScore = u
			best = child
		}
	}

	return best
}

// Expand creates one child per action with strictly positive prior, in
// ascending action order. Expanding an already-expanded node is a
// programming error and fails.
func (n *Node) Expand(policy []float32) error {
	if n.IsExpanded() {
		return fmt.Errorf("node already expanded")
	}

	for action, prob := range policy {
		if prob <= 0 {
			continue
		}
		childState, err := rules.NextState(n.State, action)
		if err != nil {
			return fmt.Errorf("expand action %d: %w", action, err)
		}
		n.Children = append(n.Children, NewNode(childState, n, action, prob))
	}

	return nil
}

// Backpropagate adds value to this node's statistics and walks the
// parent chain to the root, negating the value once per hop to flip it
// into each ancestor's mover perspective. The loop is bounded by the
// maximum game length (64 plies).
func (n *Node) Backpropagate(value float32) {
	for node := n; node != nil; node = node.Parent {
		node.ValueSum += value
		node.VisitCount++
		value = -value
	}
}
