package searcher

import (
	"github.com/rs/zerolog/log"

	"github.com/Etcaqab/lazuli/game"
)

// NodeTree owns the search graph: the root of the whole game history, the
// head the current search starts from, the transposition table holding the
// shareable position records, and the auxiliary records that must not be
// shared. The name is historical; the structure is a DAG.
//
// None of the tree's own operations are thread-safe. They run between
// searches or under the search driver's lock.
type NodeTree struct {
	// Node the current search starts from.
	currentHead *Node
	// Root node of the whole game, carrying the a1a1 sentinel move.
	gamebeginNode *Node
	history       game.PositionHistory
	moves         []game.Move

	// Transposition table: position hash to shareable record.
	tt map[uint64]*LowNode
	// Records not fit for sharing due to noise or incomplete information.
	nonTT []*LowNode
}

func NewNodeTree() *NodeTree {
	return &NodeTree{tt: make(map[uint64]*LowNode)}
}

func (t *NodeTree) CurrentHead() *Node   { return t.currentHead }
func (t *NodeTree) GameBeginNode() *Node { return t.gamebeginNode }
func (t *NodeTree) Moves() []game.Move   { return t.moves }

func (t *NodeTree) History() *game.PositionHistory { return &t.history }
func (t *NodeTree) HeadPosition() *game.Position   { return t.history.Last() }
func (t *NodeTree) IsBlackToMove() bool            { return t.HeadPosition().IsBlackToMove() }
func (t *NodeTree) PlyCount() int                  { return t.HeadPosition().GamePly() }

// MakeMove advances the head to the child for the move, reusing its
// subtree when the child already exists. Sibling subgraphs are released;
// position records they referenced become eligible for eviction once their
// parent count hits zero.
func (t *NodeTree) MakeMove(move game.Move) {
	// Edges store moves from the mover's point of view.
	stored := move
	if t.IsBlackToMove() {
		stored = move.Flip()
	}

	var newHead *Node
	for it := t.currentHead.Edges(); it.Ok(); it.Next() {
		if it.Move(false) == stored {
			newHead = it.GetOrSpawnNode()
			// A cached terminal may not survive the new history (e.g. a
			// repetition draw); search re-proves it if still true.
			if newHead.IsTerminal() {
				newHead.MakeNotTerminal(true)
			}
			break
		}
	}

	if newHead == nil {
		// The head has never been expanded with this move. Give it a
		// single-edge record so the game chain stays walkable; it is
		// incomplete information, so it must not enter the table.
		t.currentHead.ReleaseChildrenExceptOne(nil)
		t.currentHead.UnsetLowNode()
		low := NewLowNodeFromMoves(game.MoveList{stored})
		t.nonTT = append(t.nonTT, low)
		t.currentHead.SetLowNode(low)
		newHead = low.InsertChildAt(0)
	} else {
		t.currentHead.ReleaseChildrenExceptOne(newHead)
	}

	t.currentHead = newHead
	t.history.Append(move)
	t.moves = append(t.moves, move)
}

// TrimTreeAtHead clears the head's transient per-search statistics while
// keeping its cached evaluation.
func (t *NodeTree) TrimTreeAtHead() {
	low := t.currentHead.LowNode()
	t.currentHead.Trim()
	if low != nil {
		t.currentHead.SetLowNode(low)
	}
}

// ResetToPosition walks the existing tree from the starting position via
// the given moves, reusing it when the sequence extends the previously
// searched history. Returns whether the old head was passed on the walk;
// when it was not, the head's transient state is trimmed since it may
// belong to a different history. Runs a table maintenance pass either way.
func (t *NodeTree) ResetToPosition(startingFen string, moves []game.Move) (bool, error) {
	starting, err := game.PositionFromFen(startingFen)
	if err != nil {
		return false, err
	}
	if t.gamebeginNode != nil && t.history.Starting().Hash() != starting.Hash() {
		log.Debug().Str("fen", startingFen).Msg("different starting position, dropping tree")
		t.DeallocateTree()
	}
	if t.gamebeginNode == nil {
		t.gamebeginNode = &Node{}
		t.gamebeginNode.construct()
		t.gamebeginNode.edge = Edge{move: game.MoveA1A1}
		t.gamebeginNode.index.Store(0)
	}
	if err := t.history.Reset(startingFen); err != nil {
		return false, err
	}
	t.moves = t.moves[:0]

	oldHead := t.currentHead
	t.currentHead = t.gamebeginNode
	seenOldHead := t.gamebeginNode == oldHead
	for _, move := range moves {
		t.MakeMove(move)
		if t.currentHead == oldHead {
			seenOldHead = true
		}
	}

	// A head not on the replayed line may carry statistics from a history
	// that no longer exists.
	if !seenOldHead {
		t.TrimTreeAtHead()
	}
	t.TTMaintenance()
	return seenOldHead, nil
}

// TTFind looks up the shareable record for a position hash.
func (t *NodeTree) TTFind(hash uint64) *LowNode {
	return t.tt[hash]
}

// TTGetOrCreate returns the shareable record for a position hash, creating
// an empty one if absent, and whether it was created. The pointer stays
// valid until a maintenance pass evicts the record.
func (t *NodeTree) TTGetOrCreate(hash uint64) (*LowNode, bool) {
	if low, ok := t.tt[hash]; ok {
		return low, false
	}
	low := NewLowNode()
	t.tt[hash] = low
	return low, true
}

// TTMaintenance evicts records no node references anymore. Releasing a
// record's children can orphan further records, so the sweep repeats until
// it finds nothing to evict. Runs between searches only.
func (t *NodeTree) TTMaintenance() {
	for {
		evicted := 0
		for hash, low := range t.tt {
			if low.NumParents() == 0 {
				low.ReleaseChildren()
				delete(t.tt, hash)
				evicted++
			}
		}
		if t.nonTTMaintenance() == 0 && evicted == 0 {
			return
		}
	}
}

func (t *NodeTree) nonTTMaintenance() int {
	evicted := 0
	kept := t.nonTT[:0]
	for _, low := range t.nonTT {
		if low.NumParents() == 0 {
			low.ReleaseChildren()
			evicted++
			continue
		}
		kept = append(kept, low)
	}
	t.nonTT = kept
	return evicted
}

// TTClear drops every table entry regardless of references.
func (t *NodeTree) TTClear() {
	t.tt = make(map[uint64]*LowNode)
}

func (t *NodeTree) nonTTClear() {
	t.nonTT = nil
}

// NonTTAddClone clones a record's evaluation and edges into a fresh
// non-shareable record, so node-specific divergence (root noise) cannot
// corrupt the shared entry.
func (t *NodeTree) NonTTAddClone(low *LowNode) *LowNode {
	clone := CloneLowNode(low)
	t.nonTT = append(t.nonTT, clone)
	return clone
}

// DeallocateTree drops the whole graph: table, auxiliary records and the
// game chain.
func (t *NodeTree) DeallocateTree() {
	t.TTClear()
	t.nonTTClear()
	t.gamebeginNode = nil
	t.currentHead = nil
	t.moves = nil
}
