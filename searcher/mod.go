// Package searcher holds the in-memory search graph for a neural-network
// guided MCTS over chess positions.
//
// Terminology:
//   - Edge    - a potential move with its policy prior.
//   - Node    - a realized edge with visit counts and evaluation, specific to
//     one parent.
//   - LowNode - a per-position record with visit counts, evaluation and the
//     edge array; shared by every path that transposes into the position.
//
// Potential edges live in a plain array inside the LowNode. Realized edges
// occupy the slot matching their edge index in a logical child array that is
// split between a small inline portion and an on-demand dynamic block. A
// Node keeps a copy of its Edge, its index among the parent's edges, and a
// pointer to the LowNode of the position the move leads to. Because several
// Nodes may point at one LowNode, the structure is a DAG, not a tree.
package searcher

import "github.com/Etcaqab/lazuli/game"

// Terminal classifies how a position's value became exact.
type Terminal uint8

const (
	NonTerminal Terminal = iota
	EndOfGame
	Tablebase
)

func (t Terminal) String() string {
	switch t {
	case EndOfGame:
		return "end of game"
	case Tablebase:
		return "tablebase"
	}
	return "non-terminal"
}

// Bounds are the proved best and worst outcomes for a position. They
// tighten monotonically and collapse to Lower == Upper on terminal
// resolution.
type Bounds struct {
	Lower game.GameResult
	Upper game.GameResult
}

// Flip converts bounds to the opponent's point of view.
func (b Bounds) Flip() Bounds {
	return Bounds{Lower: b.Upper.Flip(), Upper: b.Lower.Flip()}
}

// Eval is the value triple consumed by the selection policy.
type Eval struct {
	WL float32
	D  float32
	M  float32
}

// NNEval is the evaluator's output for one position. Q, D and M are from
// the point of view of the player who just moved into the position. Edges
// carry one entry per legal move with its policy prior already set.
// NumEdges == 0 marks a position with no legal moves; Q then holds the
// exact outcome.
type NNEval struct {
	Edges    []Edge
	Q        float32
	D        float32
	M        float32
	NumEdges uint8
}
