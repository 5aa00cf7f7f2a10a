package engine

import (
	"math"

	"github.com/Etcaqab/lazuli/game"
	"github.com/Etcaqab/lazuli/searcher"
)

// MoveSource lists the legal moves of the last position in a history. Move
// generation lives outside the engine; searches inject one.
type MoveSource func(history *game.PositionHistory) game.MoveList

// Evaluator produces the network output for the last position in a history.
// The move list is the one the engine obtained from its MoveSource, in
// canonical board orientation; the returned NNEval must carry one edge per
// move, in order, with moves in the mover's point of view.
type Evaluator interface {
	Evaluate(history *game.PositionHistory, moves game.MoveList) (*searcher.NNEval, error)
}

// MaterialEvaluator is a stand-in for a network: uniform policy over the
// legal moves and a squashed material count for the value. It lets the
// search run end to end without any inference backend.
type MaterialEvaluator struct {
	// MaterialScale divides the pawn-unit material sum before squashing.
	// Zero means the default of 10.
	MaterialScale float64
}

func (e MaterialEvaluator) Evaluate(history *game.PositionHistory, moves game.MoveList) (*searcher.NNEval, error) {
	scale := e.MaterialScale
	if scale == 0 {
		scale = 10
	}
	pos := history.Last()
	// Material is from the side to move; NNEval values are from the player
	// who just moved into the position.
	q := -math.Tanh(float64(pos.Material()) / scale)

	eval := &searcher.NNEval{
		Q: float32(q),
		D: float32(0.5 * (1 - math.Abs(q))),
		M: float32(len(moves)),
	}
	if len(moves) == 0 {
		return eval, nil
	}

	stored := moves
	if pos.IsBlackToMove() {
		stored = make(game.MoveList, len(moves))
		for i, m := range moves {
			stored[i] = m.Flip()
		}
	}
	eval.Edges = searcher.EdgesFromMoveList(stored)
	eval.NumEdges = uint8(len(moves))
	p := float32(1) / float32(len(moves))
	for i := range eval.Edges {
		eval.Edges[i].SetP(p)
	}
	return eval, nil
}
