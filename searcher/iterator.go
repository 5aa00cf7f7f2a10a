package searcher

import "github.com/Etcaqab/lazuli/game"

// EdgeAndNode pairs an edge with its realized node, if any, and proxies the
// accessors the selection policy needs. The node is nil while the edge is
// dangling.
type EdgeAndNode struct {
	edge *Edge
	node *Node
}

func (e EdgeAndNode) Ok() bool      { return e.edge != nil }
func (e EdgeAndNode) HasNode() bool { return e.node != nil }
func (e EdgeAndNode) Edge() *Edge   { return e.edge }
func (e EdgeAndNode) Node() *Node   { return e.node }

// Q returns the node's value with the draw score folded in, or defaultQ
// while the edge has no visits.
func (e EdgeAndNode) Q(defaultQ, drawScore float32) float32 {
	if e.node != nil && e.node.N() > 0 {
		return e.node.Q(drawScore)
	}
	return defaultQ
}

func (e EdgeAndNode) WL(defaultWL float32) float32 {
	if e.node != nil && e.node.N() > 0 {
		return float32(e.node.WL())
	}
	return defaultWL
}

func (e EdgeAndNode) D(defaultD float32) float32 {
	if e.node != nil && e.node.N() > 0 {
		return e.node.D()
	}
	return defaultD
}

func (e EdgeAndNode) M(defaultM float32) float32 {
	if e.node != nil && e.node.N() > 0 {
		return e.node.M()
	}
	return defaultM
}

func (e EdgeAndNode) N() uint32 {
	if e.node == nil {
		return 0
	}
	return e.node.N()
}

func (e EdgeAndNode) NStarted() uint32 {
	if e.node == nil {
		return 0
	}
	return e.node.NStarted()
}

func (e EdgeAndNode) NInFlight() uint32 {
	if e.node == nil {
		return 0
	}
	return e.node.NInFlight()
}

func (e EdgeAndNode) IsTerminal() bool {
	return e.node != nil && e.node.IsTerminal()
}

func (e EdgeAndNode) IsTbTerminal() bool {
	return e.node != nil && e.node.IsTbTerminal()
}

func (e EdgeAndNode) Bounds() Bounds {
	if e.node == nil {
		return Bounds{Lower: game.BlackWon, Upper: game.WhiteWon}
	}
	return e.node.Bounds()
}

// P prefers the node's copy of the prior, which may have diverged from the
// edge (noise applied after realization).
func (e EdgeAndNode) P() float32 {
	if e.node != nil {
		return e.node.P()
	}
	return e.edge.P()
}

func (e EdgeAndNode) Move(asOpponent bool) game.Move {
	if e.edge == nil {
		return game.MoveA1A1
	}
	return e.edge.Move(asOpponent)
}

// U is the exploration term: numerator * P / (1 + NStarted), with the
// numerator expected to be cpuct * sqrt(N_parent).
func (e EdgeAndNode) U(numerator float32) float32 {
	return numerator * e.P() / float32(1+e.NStarted())
}

// EdgeIterator walks all edges of a position in array (policy) order,
// yielding an EdgeAndNode per step. A single iterator must not be shared
// between goroutines, but GetOrSpawnNode tolerates concurrent realization
// of other indices of the same position.
type EdgeIterator struct {
	EdgeAndNode
	parent *LowNode
	idx    uint16
	count  uint16
}

func newEdgeIterator(parent *LowNode) *EdgeIterator {
	it := &EdgeIterator{parent: parent}
	if parent != nil && parent.NumEdges() > 0 {
		it.count = uint16(parent.NumEdges())
		it.edge = parent.EdgeAt(0)
		it.node = parent.GetChildAt(0)
	}
	return it
}

// Index is the current edge index.
func (it *EdgeIterator) Index() uint16 { return it.idx }

func (it *EdgeIterator) Next() {
	it.idx++
	if it.idx >= it.count {
		it.edge = nil
		it.node = nil
		return
	}
	it.edge = it.parent.EdgeAt(it.idx)
	it.node = it.parent.GetChildAt(it.idx)
}

// GetOrSpawnNode realizes the node for the current edge if needed and
// returns it.
func (it *EdgeIterator) GetOrSpawnNode() *Node {
	if it.node == nil {
		it.node = it.parent.InsertChildAt(it.idx)
	}
	return it.node
}

// VisitedNodeIterator walks only children with completed visits, in edge
// (policy) order. Under a selection policy that always prefers the best
// unvisited prior over sorted edges, the first idle unvisited child would
// prove the whole remaining suffix unvisited; the walk still scans to the
// end instead of stopping there, since that shortcut holds only for such
// policies and visited children may sit past an unvisited gap otherwise.
type VisitedNodeIterator struct {
	parent *LowNode
	node   *Node
	idx    uint16
	count  uint16
}

func newVisitedNodeIterator(parent *LowNode) *VisitedNodeIterator {
	it := &VisitedNodeIterator{parent: parent}
	if parent != nil && parent.NumEdges() > 0 {
		it.count = uint16(parent.NumEdges())
		it.node = parent.GetChildAt(0)
		if it.node == nil || it.node.N() == 0 {
			it.advance()
		}
	}
	return it
}

func (it *VisitedNodeIterator) Ok() bool    { return it.node != nil }
func (it *VisitedNodeIterator) Node() *Node { return it.node }

func (it *VisitedNodeIterator) Next() { it.advance() }

func (it *VisitedNodeIterator) advance() {
	for {
		it.idx++
		if it.idx >= it.count {
			it.node = nil
			return
		}
		it.node = it.parent.GetChildAt(it.idx)
		if it.node != nil && it.node.N() > 0 {
			return
		}
	}
}
