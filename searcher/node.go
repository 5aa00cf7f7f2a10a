package searcher

import (
	"sync/atomic"

	"github.com/Etcaqab/lazuli/game"
)

// Node lifecycle states are encoded into the index field. Indices at or
// above indexAssigning mean the node has not been realized yet.
const (
	// indexConstructed marks a default-constructed node.
	indexConstructed uint32 = 65535
	// indexAssigning marks a node mid-realization; readers must treat it as
	// not yet realized.
	indexAssigning uint32 = 32767
)

// Node is one realized edge: the instantiation of a move from a specific
// parent position. Visit statistics here are path-specific; the shared
// per-position statistics live on the LowNode it points to.
//
// index and nInFlight are atomic and carry all cross-thread publication:
// index is stored with release semantics when the node is realized, and
// nInFlight implements the virtual-loss protocol. Every other field is
// mutated only under the search's external synchronization.
type Node struct {
	// Average W-L over all visits through this node, from the point of view
	// of the player who just moved into the position.
	wl float64
	// Position this node's move leads to; nil until the first evaluation.
	lowNode *LowNode
	// Averaged draw probability. Not flipped between sides.
	d float32
	// Estimated remaining plies.
	m float32
	// Completed visits through this node.
	n uint32
	// Virtual loss: descents through this node that have started but not
	// finished.
	nInFlight atomic.Int32
	// Copy of the parent's edge this node realizes.
	edge Edge
	// Index among the parent's edges, or a lifecycle sentinel. 16-bit
	// payload held in a 32-bit atomic (Go has no 16-bit atomics).
	index        atomic.Uint32
	terminalType Terminal
	lowerBound   game.GameResult
	upperBound   game.GameResult
}

// construct puts a (possibly zeroed) slot into the Constructed state.
func (n *Node) construct() {
	n.wl = 0
	n.lowNode = nil
	n.d = 0
	n.m = 0
	n.n = 0
	n.nInFlight.Store(0)
	n.edge = Edge{}
	n.terminalType = NonTerminal
	n.lowerBound = game.BlackWon
	n.upperBound = game.WhiteWon
	n.index.Store(indexConstructed)
}

// Reset returns the node to the Constructed state, dropping the low-node
// reference.
func (n *Node) Reset() {
	n.UnsetLowNode()
	n.construct()
}

// Trim resets everything except the edge and index, dropping the low-node
// reference.
func (n *Node) Trim() {
	n.UnsetLowNode()
	n.wl = 0
	n.d = 0
	n.m = 0
	n.n = 0
	n.nInFlight.Store(0)
	n.terminalType = NonTerminal
	n.lowerBound = game.BlackWon
	n.upperBound = game.WhiteWon
}

// moveFrom transfers src's state into n and resets src to Constructed.
// The atomics rule out a plain struct copy; valid only while both nodes are
// quiescent.
func (n *Node) moveFrom(src *Node) {
	n.wl = src.wl
	n.lowNode = src.lowNode
	n.d = src.d
	n.m = src.m
	n.n = src.n
	n.nInFlight.Store(src.nInFlight.Load())
	n.edge = src.edge
	n.terminalType = src.terminalType
	n.lowerBound = src.lowerBound
	n.upperBound = src.upperBound
	n.index.Store(src.index.Load())
	src.lowNode = nil // the low-node reference moved with the state
	src.construct()
}

// Realized reports whether the node's index has been published.
func (n *Node) Realized() bool {
	return n.index.Load() < indexAssigning
}

// Index is the node's position among the parent's edges.
func (n *Node) Index() uint16 { return uint16(n.index.Load()) }

func (n *Node) Move(asOpponent bool) game.Move { return n.edge.Move(asOpponent) }
func (n *Node) P() float32                     { return n.edge.P() }
func (n *Node) SetP(p float32)                 { n.edge.SetP(p) }

func (n *Node) WL() float64 { return n.wl }
func (n *Node) D() float32  { return n.d }
func (n *Node) M() float32  { return n.m }
func (n *Node) N() uint32   { return n.n }

// Q folds the draw probability into the W-L average with the given draw
// score.
func (n *Node) Q(drawScore float32) float32 {
	return float32(n.wl) + drawScore*n.d
}

func (n *Node) NInFlight() uint32 { return uint32(n.nInFlight.Load()) }

// NStarted is n plus the virtual-loss count; selection uses it to spread
// concurrent workers.
func (n *Node) NStarted() uint32 {
	return n.n + uint32(n.nInFlight.Load())
}

func (n *Node) LowNode() *LowNode { return n.lowNode }

// SetLowNode attaches the child position record and takes a parent
// reference on it.
func (n *Node) SetLowNode(low *LowNode) {
	if n.lowNode != nil {
		panic("searcher: node already has a low node")
	}
	n.lowNode = low
	low.AddParent()
}

// UnsetLowNode drops the child position reference. The low node itself is
// freed by the tree's maintenance, never here.
func (n *Node) UnsetLowNode() {
	if n.lowNode != nil {
		n.lowNode.RemoveParent()
		n.lowNode = nil
	}
}

// HasChildren reports whether the position below this node has any edges.
func (n *Node) HasChildren() bool {
	return n.lowNode != nil && n.lowNode.HasChildren()
}

func (n *Node) NumEdges() int {
	if n.lowNode == nil {
		return 0
	}
	return n.lowNode.NumEdges()
}

// Child returns the first realized child, or nil.
func (n *Node) Child() *Node {
	if n.lowNode == nil {
		return nil
	}
	return n.lowNode.Child()
}

// TotalVisits is the completed visits of the position below this node,
// across all transposing parents.
func (n *Node) TotalVisits() uint32 {
	if n.lowNode == nil {
		return n.n
	}
	return n.lowNode.N()
}

// ChildrenVisits is the number of visits that went below this node.
func (n *Node) ChildrenVisits() uint32 {
	if n.lowNode == nil {
		return 0
	}
	return n.lowNode.ChildrenVisits()
}

// VisitedPolicy sums the priors of children with at least one visit.
func (n *Node) VisitedPolicy() float32 {
	var sum float32
	for it := n.VisitedNodes(); it.Ok(); it.Next() {
		sum += it.Node().P()
	}
	return sum
}

func (n *Node) IsTerminal() bool   { return n.terminalType != NonTerminal }
func (n *Node) IsTbTerminal() bool { return n.terminalType == Tablebase }

func (n *Node) Bounds() Bounds {
	return Bounds{Lower: n.lowerBound, Upper: n.upperBound}
}

// SetBounds tightens the proved outcome bounds.
func (n *Node) SetBounds(lower, upper game.GameResult) {
	n.lowerBound = lower
	n.upperBound = upper
}

// MakeTerminal forces the node's value to the exact result and collapses
// its bounds.
func (n *Node) MakeTerminal(result game.GameResult, pliesLeft float32, terminalType Terminal) {
	n.SetBounds(result, result)
	n.terminalType = terminalType
	n.m = pliesLeft
	switch result {
	case game.WhiteWon:
		n.wl, n.d = 1, 0
	case game.BlackWon:
		n.wl, n.d = -1, 0
	default:
		n.wl, n.d = 0, 1
	}
}

// MakeNotTerminal reverses a terminal decision, pulling the aggregate built
// from realized children back out of the low node. With alsoLowNode the low
// node's own terminal mark is undone first.
func (n *Node) MakeNotTerminal(alsoLowNode bool) {
	n.terminalType = NonTerminal
	n.lowerBound = game.BlackWon
	n.upperBound = game.WhiteWon
	if n.lowNode == nil {
		n.wl, n.d, n.m, n.n = 0, 0, 0, 0
		return
	}
	if alsoLowNode && n.lowNode.IsTerminal() {
		n.lowNode.MakeNotTerminal(n)
	}
	// A node and its low node describe the same position, so the aggregate
	// carries over without a sign flip.
	n.wl = n.lowNode.WL()
	n.d = n.lowNode.D()
	n.m = n.lowNode.M()
	n.n = n.lowNode.N()
}

// TryStartScoreUpdate claims a visit unless another worker is currently
// expanding this leaf (n == 0 with a visit already in flight).
func (n *Node) TryStartScoreUpdate() bool {
	if n.n == 0 {
		return n.nInFlight.CompareAndSwap(0, 1)
	}
	n.nInFlight.Add(1)
	return true
}

// IncrementNInFlight amplifies a visit by multivisit without the collision
// check, for cases where joining is acceptable (e.g. revisiting a
// terminal).
func (n *Node) IncrementNInFlight(multivisit int) {
	n.nInFlight.Add(int32(multivisit))
}

// CancelScoreUpdate drops a claim made by TryStartScoreUpdate without
// recording a visit.
func (n *Node) CancelScoreUpdate(multivisit int) {
	n.nInFlight.Add(-int32(multivisit))
}

// FinalizeScoreUpdate folds a freshly computed value into the running means
// and converts the in-flight claim into completed visits.
func (n *Node) FinalizeScoreUpdate(v, d, m float32, multivisit int) {
	mv := float64(multivisit)
	total := float64(n.n) + mv
	n.wl += mv * (float64(v) - n.wl) / total
	n.d += float32(mv) * (d - n.d) / float32(total)
	n.m += float32(mv) * (m - n.m) / float32(total)
	n.n += uint32(multivisit)
	n.nInFlight.Add(-int32(multivisit))
}

// AdjustForTerminal reweights existing visits by the value deltas without
// changing n, after a descendant's exact value was revealed.
func (n *Node) AdjustForTerminal(v, d, m float32, multivisit int) {
	factor := float64(multivisit) / float64(n.n)
	n.wl += float64(v) * factor
	n.d += d * float32(factor)
	n.m += m * float32(factor)
}

// Edges iterates over all edges of the position below this node in policy
// order.
func (n *Node) Edges() *EdgeIterator { return newEdgeIterator(n.lowNode) }

// VisitedNodes iterates over children with at least one completed visit.
func (n *Node) VisitedNodes() *VisitedNodeIterator {
	return newVisitedNodeIterator(n.lowNode)
}

// SortEdges sorts the position's edges by descending prior. Allowed only
// before any visits.
func (n *Node) SortEdges() {
	if n.lowNode != nil {
		n.lowNode.SortEdges()
	}
}

// ReleaseChildrenExceptOne releases every sibling subgraph below this node
// except the saved child, which stays in place so it can become the next
// search root.
func (n *Node) ReleaseChildrenExceptOne(save *Node) {
	if n.lowNode != nil {
		n.lowNode.ReleaseChildrenExceptOne(save)
	}
}
