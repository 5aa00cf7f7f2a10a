package searcher

import (
	"math"
	"sort"

	"github.com/Etcaqab/lazuli/game"
)

// Edge is a candidate move with its policy prior. Edges are owned by the
// LowNode that defined them and become read-only once Nodes refer to them,
// except that priors may be rewritten (noise) and the array sorted while
// the owning LowNode still has no visits.
type Edge struct {
	// Move from the point of view of the player making it; black's e7e5 is
	// stored as e2e4. The root node carries a1a1.
	move game.Move
	// Policy prior compressed to 16 bits: 5 exponent bits, 11 significand
	// bits.
	p uint16
}

// EdgesFromMoveList builds one zero-prior edge per legal move.
func EdgesFromMoveList(moves game.MoveList) []Edge {
	edges := make([]Edge, len(moves))
	for i, m := range moves {
		edges[i].move = m
	}
	return edges
}

// Move returns the move from the mover's point of view, or from the
// opponent's when asOpponent is set.
func (e *Edge) Move(asOpponent bool) game.Move {
	if asOpponent {
		return e.move.Flip()
	}
	return e.move
}

// P returns the policy prior in [0,1].
func (e *Edge) P() float32 { return decompressPolicy(e.p) }

// SetP stores the policy prior. Must be in [0,1].
func (e *Edge) SetP(p float32) {
	if p < 0 || p > 1 {
		panic("searcher: policy prior out of range")
	}
	e.p = compressPolicy(p)
}

// SortEdges stable-sorts edges by descending prior, so that unvisited edges
// always form a contiguous suffix once visits follow the sorted order.
// The compressed encoding is monotonic, so priors compare without decoding.
func SortEdges(edges []Edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		return edges[i].p > edges[j].p
	})
}

// The prior is kept as the middle 16 bits of the float32 representation:
// dropping the 12 low significand bits (with rounding) and the constant
// high exponent bits, which are 0b0011 for every value in [2^-31, 2);
// smaller priors clamp to zero. The mapping is monotonic, and
// decode(encode(x)) re-encodes to the same bits.
const policyRounding = int32(1)<<11 - int32(3)<<28

func compressPolicy(p float32) uint16 {
	bits := int32(math.Float32bits(p)) + policyRounding
	if bits < 0 {
		return 0
	}
	return uint16(bits >> 12)
}

func decompressPolicy(p uint16) float32 {
	if p == 0 {
		return 0
	}
	return math.Float32frombits(uint32(p)<<12 | uint32(3)<<28)
}
