package searcher

import (
	"fmt"

	"github.com/awalterschulze/gographviz"
	"github.com/rs/zerolog/log"
)

// Diagnostic surface. Strings here are for humans and logs; nothing parses
// them.

func (e *Edge) DebugString() string {
	return fmt.Sprintf("Move: %s p_: %f", e.move, e.P())
}

func (n *Node) DebugString() string {
	return fmt.Sprintf(
		"<Node %p> LowNode: %p Index: %d Move: %s WL: %f D: %f M: %f N: %d N_: %d Term: %v Bounds: %d/%d",
		n, n.lowNode, n.Index(), n.edge.move, n.wl, n.d, n.m, n.n,
		n.NInFlight(), n.terminalType, n.lowerBound, n.upperBound)
}

func (low *LowNode) DebugString() string {
	return fmt.Sprintf(
		"<LowNode %p> Edges: %d WL: %f D: %f M: %f N: %d N_: %d Parents: %d Transposition: %v Term: %v Bounds: %d/%d",
		low, len(low.edges), low.wl, low.d, low.m, low.n, low.NInFlight(),
		low.numParents, low.isTransposition, low.terminalType,
		low.lowerBound, low.upperBound)
}

func (e EdgeAndNode) DebugString() string {
	if e.edge == nil {
		return "(no edge)"
	}
	s := e.edge.DebugString()
	if e.node != nil {
		s += " " + e.node.DebugString()
	}
	return s
}

// DotNodeString describes this position as a Graphviz node declaration.
func (low *LowNode) DotNodeString() string {
	return fmt.Sprintf("%s [label=\"N: %d\\nWL: %.3f D: %.3f M: %.1f\\nparents: %d\"];",
		dotID(low), low.n, low.wl, low.d, low.m, low.numParents)
}

// DotEdgeString describes the edge from the parent position into this
// node's position as a Graphviz edge declaration.
func (n *Node) DotEdgeString(asOpponent bool, parent *LowNode) string {
	from := "root"
	if parent != nil {
		from = dotID(parent)
	}
	to := "leaf"
	if n.lowNode != nil {
		to = dotID(n.lowNode)
	}
	return fmt.Sprintf("%s -> %s [label=\"%s\\nN: %d P: %.3f\"];",
		from, to, n.Move(asOpponent), n.n, n.P())
}

// DotGraphString renders the whole subgraph under this node in the
// Graphviz dot format.
func (n *Node) DotGraphString(asOpponent bool) string {
	graph := gographviz.NewGraph()
	_ = graph.SetName("search")
	_ = graph.SetDir(true)

	seen := make(map[*LowNode]bool)
	var addLow func(low *LowNode)
	var addNode func(node *Node, parent *LowNode)

	addLow = func(low *LowNode) {
		if seen[low] {
			return
		}
		seen[low] = true
		_ = graph.AddNode("search", dotID(low), map[string]string{
			"label": fmt.Sprintf("\"N: %d\\nWL: %.3f D: %.3f M: %.1f\"", low.n, low.wl, low.d, low.m),
			"shape": "box",
		})
		for i := 0; i < len(low.edges); i++ {
			if child := low.GetChildAt(uint16(i)); child != nil {
				addNode(child, low)
			}
		}
	}
	addNode = func(node *Node, parent *LowNode) {
		if node.lowNode == nil {
			return
		}
		addLow(node.lowNode)
		if parent == nil {
			return
		}
		_ = graph.AddEdge(dotID(parent), dotID(node.lowNode), true, map[string]string{
			"label": fmt.Sprintf("\"%s\\nN: %d P: %.3f\"", node.Move(asOpponent), node.n, node.P()),
		})
	}

	addNode(n, nil)
	return graph.String()
}

func dotID(low *LowNode) string {
	return fmt.Sprintf("\"n%p\"", low)
}

// ZeroNInFlight reports whether no node or position below this one has an
// outstanding visit claim, logging every offender. It must hold in every
// quiescent state between searches.
func (n *Node) ZeroNInFlight() bool {
	seen := make(map[*LowNode]bool)
	return n.zeroNInFlight(seen)
}

func (n *Node) zeroNInFlight(seen map[*LowNode]bool) bool {
	ok := true
	if n.NInFlight() != 0 {
		log.Error().Str("node", n.DebugString()).Msg("node has visits in flight")
		ok = false
	}
	low := n.lowNode
	if low == nil || seen[low] {
		return ok
	}
	seen[low] = true
	if low.NInFlight() != 0 {
		log.Error().Str("low_node", low.DebugString()).Msg("low node has visits in flight")
		ok = false
	}
	for i := 0; i < len(low.edges); i++ {
		if child := low.GetChildAt(uint16(i)); child != nil {
			if !child.zeroNInFlight(seen) {
				ok = false
			}
		}
	}
	return ok
}
