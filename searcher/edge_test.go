package searcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Etcaqab/lazuli/game"
)

func TestEdgesFromMoveList(t *testing.T) {
	t.Run("one zero-prior edge per move", func(t *testing.T) {
		moves := game.MoveList{
			game.MustParseMove("e2e4"),
			game.MustParseMove("d2d4"),
			game.MustParseMove("g1f3"),
		}

		edges := EdgesFromMoveList(moves)

		require.Len(t, edges, 3, "Should build one edge per move")
		for i, move := range moves {
			require.Equal(t, move, edges[i].Move(false), "Edge should keep the move")
			require.Zero(t, edges[i].P(), "Prior should start at zero")
		}
	})

	t.Run("empty move list", func(t *testing.T) {
		require.Empty(t, EdgesFromMoveList(nil), "No moves should give no edges")
	})
}

func TestEdgeMove(t *testing.T) {
	edge := Edge{move: game.MustParseMove("e2e4")}

	require.Equal(t, game.MustParseMove("e2e4"), edge.Move(false),
		"Move should come back as stored")
	require.Equal(t, game.MustParseMove("e7e5"), edge.Move(true),
		"Opponent view should mirror the move vertically")
}

func TestPolicyCodec(t *testing.T) {
	t.Run("round trip is the identity on encoded values", func(t *testing.T) {
		for _, p := range []float32{0, 1e-6, 0.001, 0.1, 0.25, 0.5, 0.75, 0.9, 1} {
			encoded := compressPolicy(p)
			decoded := decompressPolicy(encoded)
			require.Equal(t, encoded, compressPolicy(decoded),
				"encode(decode(encode(%v))) should equal encode(%v)", p, p)
		}
	})

	t.Run("decode is within one step of the input", func(t *testing.T) {
		for _, p := range []float32{0.001, 0.1, 0.25, 0.5, 0.75, 0.9, 1} {
			decoded := decompressPolicy(compressPolicy(p))
			require.InDelta(t, p, decoded, float64(p)/1000,
				"Compressed prior should stay close to %v", p)
		}
	})

	t.Run("encoding is monotonic", func(t *testing.T) {
		priors := []float32{0, 1e-7, 1e-4, 0.01, 0.2, 0.3, 0.5, 0.7, 0.99, 1}
		for i := 1; i < len(priors); i++ {
			require.LessOrEqual(t,
				compressPolicy(priors[i-1]), compressPolicy(priors[i]),
				"Encoding should not invert the order of %v and %v",
				priors[i-1], priors[i])
		}
	})

	t.Run("compressed values compare like decoded ones", func(t *testing.T) {
		var a, b Edge
		a.SetP(0.4)
		b.SetP(0.6)
		require.Less(t, a.p, b.p, "Raw 16-bit priors should be ordered")
	})
}

func TestSetPRange(t *testing.T) {
	var edge Edge
	require.Panics(t, func() { edge.SetP(-0.1) }, "Negative prior should panic")
	require.Panics(t, func() { edge.SetP(1.1) }, "Prior above one should panic")
}

func TestSortEdges(t *testing.T) {
	t.Run("sorts by descending prior", func(t *testing.T) {
		edges := EdgesFromMoveList(game.MoveList{
			game.MustParseMove("a2a3"),
			game.MustParseMove("b2b3"),
			game.MustParseMove("c2c3"),
		})
		edges[0].SetP(0.1)
		edges[1].SetP(0.5)
		edges[2].SetP(0.4)

		SortEdges(edges)

		require.Equal(t, game.MustParseMove("b2b3"), edges[0].Move(false))
		require.Equal(t, game.MustParseMove("c2c3"), edges[1].Move(false))
		require.Equal(t, game.MustParseMove("a2a3"), edges[2].Move(false))
	})

	t.Run("stable for equal priors", func(t *testing.T) {
		edges := EdgesFromMoveList(game.MoveList{
			game.MustParseMove("a2a3"),
			game.MustParseMove("b2b3"),
			game.MustParseMove("c2c3"),
		})
		edges[0].SetP(0.3)
		edges[1].SetP(0.3)
		edges[2].SetP(0.9)

		SortEdges(edges)

		require.Equal(t, game.MustParseMove("c2c3"), edges[0].Move(false))
		require.Equal(t, game.MustParseMove("a2a3"), edges[1].Move(false),
			"Equal priors should keep their original order")
		require.Equal(t, game.MustParseMove("b2b3"), edges[2].Move(false))
	})
}
