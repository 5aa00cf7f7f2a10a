package searcher

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/Etcaqab/lazuli/game"
)

func TestLowNodeSize(t *testing.T) {
	require.LessOrEqual(t, unsafe.Sizeof(LowNode{}), uintptr(192),
		"LowNode should fit three cache lines")
}

func TestSetNNEval(t *testing.T) {
	t.Run("installs edges and evaluation", func(t *testing.T) {
		edges := EdgesFromMoveList(game.MoveList{
			game.MustParseMove("e2e4"),
			game.MustParseMove("d2d4"),
		})
		edges[0].SetP(0.6)
		edges[1].SetP(0.4)
		low := NewLowNode()

		low.SetNNEval(&NNEval{Edges: edges, NumEdges: 2, Q: 0.3, D: 0.2, M: 40})

		require.Equal(t, 2, low.NumEdges())
		require.InDelta(t, 0.3, low.WL(), 1e-6)
		require.InDelta(t, 0.2, low.D(), 1e-6)
		require.InDelta(t, 40.0, low.M(), 1e-6)
		require.Zero(t, low.N(), "Evaluation should not count as a visit")

		// Deep copy: mutating the evaluator's array must not reach the record.
		edges[0].SetP(0.1)
		require.InDelta(t, 0.6, low.EdgeAt(0).P(), 1e-3)
	})

	t.Run("second evaluation panics", func(t *testing.T) {
		low := newEvaluatedLowNode(t, []float32{1})
		require.Panics(t, func() {
			low.SetNNEval(&NNEval{Q: 0.5})
		}, "A record must be evaluated at most once")
	})

	t.Run("no legal moves", func(t *testing.T) {
		low := NewLowNode()
		low.SetNNEval(&NNEval{Q: -1})

		require.False(t, low.HasChildren(), "Moveless position should have no children")
		require.Zero(t, low.NumEdges())

		var node Node
		node.construct()
		node.SetLowNode(low)
		require.False(t, node.Edges().Ok(), "Edge iterator should be empty")
		require.False(t, node.VisitedNodes().Ok(), "Visited iterator should be empty")
	})
}

func TestChildStorage(t *testing.T) {
	t.Run("two edges stay inline", func(t *testing.T) {
		low := newEvaluatedLowNode(t, []float32{0.6, 0.4})

		first := low.InsertChildAt(0)
		second := low.InsertChildAt(1)

		require.NotNil(t, first)
		require.NotNil(t, second)
		require.Nil(t, low.dynamicChildren.Load(),
			"Two edges should not allocate a dynamic block")
	})

	t.Run("third edge allocates the dynamic block", func(t *testing.T) {
		low := newEvaluatedLowNode(t, []float32{0.5, 0.3, 0.2})

		child := low.InsertChildAt(2)

		require.NotNil(t, child)
		require.Equal(t, uint16(2), child.Index())
		require.NotNil(t, low.dynamicChildren.Load())
		require.Equal(t, uint32(3), low.allocatedChildren.Load())
	})

	t.Run("edge index 0 and 254 of 255 edges both work", func(t *testing.T) {
		moves := make(game.MoveList, 256)
		for i := range moves {
			moves[i] = game.Move(i + 1)
		}
		edges := EdgesFromMoveList(moves[:255])
		low := NewLowNode()
		low.SetNNEval(&NNEval{Edges: edges, NumEdges: 255})

		first := low.InsertChildAt(0)
		last := low.InsertChildAt(254)

		require.Equal(t, uint16(0), first.Index())
		require.Equal(t, uint16(254), last.Index())
		require.Same(t, last, low.GetChildAt(254))
	})

	t.Run("get without insert returns nil", func(t *testing.T) {
		low := newEvaluatedLowNode(t, []float32{0.5, 0.3, 0.2})

		require.Nil(t, low.GetChildAt(0), "Inline slot not realized")
		require.Nil(t, low.GetChildAt(2), "Dynamic block not allocated")
		require.Nil(t, low.GetChildAt(9), "Out of range")
	})
}

func TestInsertChildAt(t *testing.T) {
	t.Run("idempotent for the same index", func(t *testing.T) {
		low := newEvaluatedLowNode(t, []float32{0.6, 0.4})

		first := low.InsertChildAt(0)
		again := low.InsertChildAt(0)

		require.Same(t, first, again,
			"Repeated insert should return the same node")
	})

	t.Run("concurrent inserts produce one realized node", func(t *testing.T) {
		const workers = 16
		low := newEvaluatedLowNode(t, []float32{0.4, 0.3, 0.2, 0.1})

		var wg sync.WaitGroup
		results := make([]*Node, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				// Mix of indices; index 3 is contended by half the workers.
				index := uint16(3)
				if i%2 == 0 {
					index = uint16(i % 3)
				}
				results[i] = low.InsertChildAt(index)
			}(i)
		}
		wg.Wait()

		for i := 0; i < workers; i++ {
			require.NotNil(t, results[i])
			require.True(t, results[i].Realized())
		}
		var contended *Node
		for i := 1; i < workers; i += 2 {
			if contended == nil {
				contended = results[i]
			}
			require.Same(t, contended, results[i],
				"All workers racing on one index should get the same node")
		}
		require.Equal(t, uint16(3), contended.Index())
	})
}

func TestParentTracking(t *testing.T) {
	t.Run("transposition bit is sticky", func(t *testing.T) {
		low := NewLowNode()
		var a, b Node
		a.construct()
		b.construct()

		a.SetLowNode(low)
		require.False(t, low.IsTransposition())

		b.SetLowNode(low)
		require.Equal(t, uint16(2), low.NumParents())
		require.True(t, low.IsTransposition(),
			"Second parent should mark the transposition")

		a.UnsetLowNode()
		require.Equal(t, uint16(1), low.NumParents())
		require.True(t, low.IsTransposition(),
			"Transposition should survive losing a parent")
	})

	t.Run("removing from zero panics", func(t *testing.T) {
		low := NewLowNode()
		require.Panics(t, func() { low.RemoveParent() })
	})
}

func TestChildrenVisits(t *testing.T) {
	low := newEvaluatedLowNode(t, []float32{0.6, 0.4})
	require.Zero(t, low.ChildrenVisits(), "Unvisited record has no child visits")

	low.IncrementNInFlight(1)
	low.FinalizeScoreUpdate(0.1, 0.1, 1, 1)
	require.Zero(t, low.ChildrenVisits(), "The expansion visit is not a child visit")

	visit(t, low, 0)
	low.IncrementNInFlight(1)
	low.FinalizeScoreUpdate(-0.1, 0.1, 2, 1)
	require.Equal(t, uint32(1), low.ChildrenVisits())
}

func TestLowNodeSortEdges(t *testing.T) {
	t.Run("panics without edges", func(t *testing.T) {
		low := NewLowNode()
		require.Panics(t, func() { low.SortEdges() })
	})

	t.Run("panics once visited", func(t *testing.T) {
		low := newEvaluatedLowNode(t, []float32{0.6, 0.4})
		low.IncrementNInFlight(1)
		low.FinalizeScoreUpdate(0.1, 0.1, 1, 1)

		require.Panics(t, func() { low.SortEdges() },
			"Sorting after visits would break realized indices")
	})
}

func TestLowNodeMakeNotTerminal(t *testing.T) {
	t.Run("rebuilds the aggregate from visited children", func(t *testing.T) {
		low := newEvaluatedLowNode(t, []float32{0.6, 0.4})
		child := low.InsertChildAt(0)
		require.True(t, child.TryStartScoreUpdate())
		child.FinalizeScoreUpdate(0.2, 0.1, 10, 1)

		low.MakeTerminal(game.WhiteWon, 0, EndOfGame)
		var node Node
		node.construct()
		low.MakeNotTerminal(&node)

		require.False(t, low.IsTerminal())
		require.Equal(t, uint32(2), low.N(),
			"Expansion visit plus one child visit")
		require.InDelta(t, -0.1, low.WL(), 1e-6,
			"Child value flips sign and averages with the expansion visit")
		require.InDelta(t, 0.05, low.D(), 1e-6)
		require.InDelta(t, 5.5, low.M(), 1e-6,
			"Child plies shift one towards this position")
	})

	t.Run("falls back to the incoming node without visited children", func(t *testing.T) {
		low := newEvaluatedLowNode(t, []float32{1})
		low.MakeTerminal(game.BlackWon, 0, EndOfGame)

		var node Node
		node.construct()
		node.IncrementNInFlight(1)
		node.FinalizeScoreUpdate(0.4, 0.2, 6, 1)
		low.MakeNotTerminal(&node)

		require.Equal(t, uint32(1), low.N())
		require.InDelta(t, 0.4, low.WL(), 1e-6)
		require.InDelta(t, 0.2, low.D(), 1e-6)
		require.InDelta(t, 6.0, low.M(), 1e-6)
	})
}

func TestReleaseChildren(t *testing.T) {
	t.Run("drops realized children and their references", func(t *testing.T) {
		low := newEvaluatedLowNode(t, []float32{0.5, 0.3, 0.2})
		grand := NewLowNode()
		child := low.InsertChildAt(2)
		child.SetLowNode(grand)

		low.ReleaseChildren()

		require.Nil(t, low.GetChildAt(2))
		require.Zero(t, grand.NumParents(),
			"Released children should drop their low node references")
		require.Nil(t, low.dynamicChildren.Load())
	})

	t.Run("except one keeps the saved child in place", func(t *testing.T) {
		low := newEvaluatedLowNode(t, []float32{0.5, 0.3, 0.2})
		keep := low.InsertChildAt(2)
		other := NewLowNode()
		low.InsertChildAt(0).SetLowNode(other)

		low.ReleaseChildrenExceptOne(keep)

		require.Nil(t, low.GetChildAt(0), "Sibling should be released")
		require.Same(t, keep, low.GetChildAt(2), "Saved child should keep its slot")
		require.Zero(t, other.NumParents())
	})

	t.Run("except one with an inline save frees the dynamic block", func(t *testing.T) {
		low := newEvaluatedLowNode(t, []float32{0.5, 0.3, 0.2})
		keep := low.InsertChildAt(0)
		low.InsertChildAt(2)

		low.ReleaseChildrenExceptOne(keep)

		require.Same(t, keep, low.GetChildAt(0))
		require.Nil(t, low.dynamicChildren.Load(),
			"Dynamic block without the saved child should be freed")
	})
}
