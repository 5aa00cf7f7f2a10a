package searcher

import (
	"sync/atomic"

	"github.com/Etcaqab/lazuli/game"
)

// Child slots for the first staticChildrenCount edges are inlined in the
// LowNode; the rest live in a single dynamically allocated block, published
// once under a CAS on allocatedChildren. Logically there is one child array
// of length NumEdges indexed by edge index.
const staticChildrenCount = 2

// LowNode is the record for one position in the DAG. All transposing paths
// share it: the cached network evaluation, the edge list, the realized
// children and the per-position visit counts live here, while per-path
// statistics stay on the Nodes referencing it.
//
// nInFlight, allocatedChildren and the dynamic block pointer are atomic.
// Everything else is mutated only under the search's external
// synchronization.
type LowNode struct {
	staticChildren [staticChildrenCount]Node
	// Average W-L over all visits of the position, from the point of view
	// of the player who just moved into it.
	wl float64
	// Candidate moves with priors; nil until the evaluation lands.
	edges []Edge
	// Child slots for edge indices >= staticChildrenCount.
	dynamicChildren atomic.Pointer[[]Node]
	d               float32
	m               float32
	// Completed visits of the position, across all parents.
	n uint32
	// Descents currently in progress through the position, across all
	// parents.
	nInFlight atomic.Int32
	// Child slots allocated so far; grows under CAS and drops back to the
	// inline count only when the children are released. 16-bit payload held
	// in a 32-bit atomic.
	allocatedChildren atomic.Uint32
	// Nodes currently referencing this position.
	numParents uint16
	// Sticky: set once numParents has ever exceeded one.
	isTransposition bool
	terminalType    Terminal
	lowerBound      game.GameResult
	upperBound      game.GameResult
}

// NewLowNode returns an empty position record awaiting SetNNEval.
func NewLowNode() *LowNode {
	low := &LowNode{}
	low.init()
	return low
}

// NewLowNodeFromMoves returns a position record with zero-prior edges for
// the given moves and no evaluation.
func NewLowNodeFromMoves(moves game.MoveList) *LowNode {
	low := NewLowNode()
	low.edges = EdgesFromMoveList(moves)
	return low
}

// CloneLowNode copies src's evaluation and edges into a fresh record with
// no children, visits or parents, e.g. for applying root noise without
// corrupting the shared entry.
func CloneLowNode(src *LowNode) *LowNode {
	low := NewLowNode()
	low.wl = src.wl
	low.d = src.d
	low.m = src.m
	low.edges = make([]Edge, len(src.edges))
	copy(low.edges, src.edges)
	return low
}

func (low *LowNode) init() {
	low.terminalType = NonTerminal
	low.lowerBound = game.BlackWon
	low.upperBound = game.WhiteWon
	for i := range low.staticChildren {
		low.staticChildren[i].construct()
	}
	low.allocatedChildren.Store(staticChildrenCount)
}

// SetNNEval installs the evaluator's output: the edge array is deep-copied
// and the evaluation recorded. The position stays unvisited (n == 0).
func (low *LowNode) SetNNEval(eval *NNEval) {
	if low.edges != nil {
		panic("searcher: low node already evaluated")
	}
	if low.n != 0 {
		panic("searcher: low node visited before evaluation")
	}
	low.edges = make([]Edge, eval.NumEdges)
	copy(low.edges, eval.Edges[:eval.NumEdges])
	low.wl = float64(eval.Q)
	low.d = eval.D
	low.m = eval.M
}

func (low *LowNode) NumEdges() int { return len(low.edges) }

// HasChildren reports whether the position has any legal moves.
func (low *LowNode) HasChildren() bool { return len(low.edges) > 0 }

// EdgeAt returns the edge record for the given edge index.
func (low *LowNode) EdgeAt(index uint16) *Edge { return &low.edges[index] }

func (low *LowNode) WL() float64 { return low.wl }
func (low *LowNode) D() float32  { return low.d }
func (low *LowNode) M() float32  { return low.m }
func (low *LowNode) N() uint32   { return low.n }

// ChildrenVisits is n minus the visit that first expanded the position.
func (low *LowNode) ChildrenVisits() uint32 {
	if low.n == 0 {
		return 0
	}
	return low.n - 1
}

func (low *LowNode) NInFlight() uint32 { return uint32(low.nInFlight.Load()) }

func (low *LowNode) IsTerminal() bool       { return low.terminalType != NonTerminal }
func (low *LowNode) TerminalType() Terminal { return low.terminalType }

func (low *LowNode) Bounds() Bounds {
	return Bounds{Lower: low.lowerBound, Upper: low.upperBound}
}

func (low *LowNode) SetBounds(lower, upper game.GameResult) {
	low.lowerBound = lower
	low.upperBound = upper
}

// AddParent records a new referencing Node. The first transition past one
// parent marks the position as a transposition for good.
func (low *LowNode) AddParent() {
	low.numParents++
	if low.numParents > 1 {
		low.isTransposition = true
	}
}

// RemoveParent drops a reference. A zero count makes the record eligible
// for eviction at the next maintenance pass.
func (low *LowNode) RemoveParent() {
	if low.numParents == 0 {
		panic("searcher: low node has no parents to remove")
	}
	low.numParents--
}

func (low *LowNode) NumParents() uint16    { return low.numParents }
func (low *LowNode) IsTransposition() bool { return low.isTransposition }

// SortEdges orders edges by descending prior. Allowed only while the
// position has no visits, so no realized node's index can go stale.
func (low *LowNode) SortEdges() {
	if low.edges == nil {
		panic("searcher: no edges to sort")
	}
	if low.n != 0 {
		panic("searcher: cannot sort edges of a visited low node")
	}
	SortEdges(low.edges)
}

// childSlot returns the storage slot for an edge index, or nil when the
// dynamic block holding it has not been allocated.
func (low *LowNode) childSlot(index uint16) *Node {
	if index < staticChildrenCount {
		return &low.staticChildren[index]
	}
	block := low.dynamicChildren.Load()
	if block == nil {
		return nil
	}
	return &(*block)[index-staticChildrenCount]
}

// ensureChildSlot returns the storage slot for an edge index, allocating
// the dynamic block on first use. Losers of the allocation race spin until
// the winner publishes the block; the spin is bounded by that single
// publication.
func (low *LowNode) ensureChildSlot(index uint16) *Node {
	if index < staticChildrenCount {
		return &low.staticChildren[index]
	}
	if int(index) >= len(low.edges) {
		panic("searcher: child index out of range")
	}
	for {
		if block := low.dynamicChildren.Load(); block != nil {
			return &(*block)[index-staticChildrenCount]
		}
		total := uint32(len(low.edges))
		if low.allocatedChildren.CompareAndSwap(staticChildrenCount, total) {
			block := make([]Node, len(low.edges)-staticChildrenCount)
			for i := range block {
				block[i].construct()
			}
			low.dynamicChildren.Store(&block)
			return &block[index-staticChildrenCount]
		}
	}
}

// GetChildAt returns the realized child for an edge index, or nil.
func (low *LowNode) GetChildAt(index uint16) *Node {
	if int(index) >= len(low.edges) {
		return nil
	}
	slot := low.childSlot(index)
	if slot == nil || !slot.Realized() {
		return nil
	}
	return slot
}

// InsertChildAt realizes the child for an edge index, or returns the
// already-realized one. Concurrent calls for the same index yield the same
// node: the slot's index field transitions Constructed -> Assigning ->
// index exactly once, and the final store publishes the copied-in edge.
func (low *LowNode) InsertChildAt(index uint16) *Node {
	slot := low.ensureChildSlot(index)
	for {
		if slot.index.CompareAndSwap(indexConstructed, indexAssigning) {
			slot.edge = low.edges[index]
			slot.index.Store(uint32(index))
			return slot
		}
		if slot.index.Load() < indexAssigning {
			return slot
		}
		// Another worker is mid-assignment; wait for the index store.
	}
}

// Child returns the first realized child, or nil.
func (low *LowNode) Child() *Node {
	for i := 0; i < len(low.edges); i++ {
		if child := low.GetChildAt(uint16(i)); child != nil {
			return child
		}
	}
	return nil
}

// MakeTerminal forces the position's value to the exact result and
// collapses its bounds.
func (low *LowNode) MakeTerminal(result game.GameResult, pliesLeft float32, terminalType Terminal) {
	low.SetBounds(result, result)
	low.terminalType = terminalType
	low.m = pliesLeft
	switch result {
	case game.WhiteWon:
		low.wl, low.d = 1, 0
	case game.BlackWon:
		low.wl, low.d = -1, 0
	default:
		low.wl, low.d = 0, 1
	}
}

// MakeNotTerminal reverses a terminal decision and rebuilds the aggregate
// from the realized children, counting the expansion visit as one. With no
// visited children left, the incoming node's view of the position stands
// in.
func (low *LowNode) MakeNotTerminal(node *Node) {
	low.terminalType = NonTerminal
	low.lowerBound = game.BlackWon
	low.upperBound = game.WhiteWon

	n := uint32(1)
	var wl float64
	var d, m float32
	for it := newVisitedNodeIterator(low); it.Ok(); it.Next() {
		child := it.Node()
		cn := child.N()
		n += cn
		// Children are one ply below and belong to the other side.
		wl += -child.WL() * float64(cn)
		d += child.D() * float32(cn)
		m += (child.M() + 1) * float32(cn)
	}
	if n == 1 {
		low.wl = node.WL()
		low.d = node.D()
		low.m = node.M()
		low.n = 1
		return
	}
	low.wl = wl / float64(n)
	low.d = d / float32(n)
	low.m = m / float32(n)
	low.n = n
}

// IncrementNInFlight adds to the position's aggregate virtual-loss count.
func (low *LowNode) IncrementNInFlight(multivisit int) {
	low.nInFlight.Add(int32(multivisit))
}

// CancelScoreUpdate drops an in-flight claim without recording a visit.
func (low *LowNode) CancelScoreUpdate(multivisit int) {
	low.nInFlight.Add(-int32(multivisit))
}

// FinalizeScoreUpdate folds a value into the running means and converts
// the in-flight claim into completed visits.
func (low *LowNode) FinalizeScoreUpdate(v, d, m float32, multivisit int) {
	mv := float64(multivisit)
	total := float64(low.n) + mv
	low.wl += mv * (float64(v) - low.wl) / total
	low.d += float32(mv) * (d - low.d) / float32(total)
	low.m += float32(mv) * (m - low.m) / float32(total)
	low.n += uint32(multivisit)
	low.nInFlight.Add(-int32(multivisit))
}

// AdjustForTerminal reweights existing visits by the value deltas without
// changing n.
func (low *LowNode) AdjustForTerminal(v, d, m float32, multivisit int) {
	factor := float64(multivisit) / float64(low.n)
	low.wl += float64(v) * factor
	low.d += d * float32(factor)
	low.m += m * float32(factor)
}

// ReleaseChildren resets every realized child and drops their low-node
// references; the dynamic block is discarded. Called when the record
// itself is being destroyed or its whole subgraph released.
func (low *LowNode) ReleaseChildren() {
	for i := 0; i < len(low.edges); i++ {
		slot := low.childSlot(uint16(i))
		if slot == nil {
			break
		}
		if slot.Realized() {
			slot.Reset()
		}
	}
	low.dynamicChildren.Store(nil)
	low.allocatedChildren.Store(staticChildrenCount)
}

// ReleaseChildrenExceptOne releases all realized children but the saved
// one, which keeps its slot so the slot-to-edge-index mapping stays valid
// for the surviving subtree.
func (low *LowNode) ReleaseChildrenExceptOne(save *Node) {
	saveInDynamic := false
	for i := 0; i < len(low.edges); i++ {
		slot := low.childSlot(uint16(i))
		if slot == nil {
			break
		}
		if slot == save {
			saveInDynamic = i >= staticChildrenCount
			continue
		}
		if slot.Realized() {
			slot.Reset()
		}
	}
	if !saveInDynamic {
		low.dynamicChildren.Store(nil)
		low.allocatedChildren.Store(staticChildrenCount)
	}
}
