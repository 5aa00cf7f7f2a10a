package engine

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"lukechampine.com/frand"

	"github.com/Etcaqab/lazuli/game"
	"github.com/Etcaqab/lazuli/searcher"
)

type Option func(e *Engine)

func WithGoroutines(goroutines int) Option {
	return func(e *Engine) {
		if goroutines > 0 {
			e.goroutines = goroutines
		}
	}
}

func WithSimulations(simulations int64) Option {
	return func(e *Engine) {
		if simulations > 0 {
			e.simulations = simulations
		}
	}
}

func WithDuration(duration time.Duration) Option {
	return func(e *Engine) {
		if duration > 0 {
			e.duration = duration
		}
	}
}

func WithCpuct(cpuct float32) Option {
	return func(e *Engine) {
		if cpuct > 0 {
			e.cpuct = cpuct
		}
	}
}

func WithDrawScore(drawScore float32) Option {
	return func(e *Engine) { e.drawScore = drawScore }
}

// WithNoise mixes Dirichlet(alpha) noise into the root priors with weight
// epsilon at the start of every search.
func WithNoise(epsilon, alpha float64) Option {
	return func(e *Engine) {
		if epsilon > 0 && alpha > 0 {
			e.noiseEpsilon = epsilon
			e.noiseAlpha = alpha
		}
	}
}

// WithTemperature samples the move proportionally to visits^(1/t) instead of
// picking the most visited one.
func WithTemperature(t float64) Option {
	return func(e *Engine) {
		if t > 0 {
			e.temperature = t
		}
	}
}

func WithMetrics() Option {
	return func(e *Engine) { e.metrics = searcher.NewCollector() }
}

// Engine drives simulations over a NodeTree: PUCT selection down the graph,
// evaluation at the leaf, back-propagation to the head. Descent is lock-free
// on the core's atomics; everything that mutates non-atomic node state
// (expansion, back-propagation, terminal marking, the transposition table)
// runs under one engine mutex, the "updater" side of the core's sharing
// contract.
type Engine struct {
	tree     *searcher.NodeTree
	evaluate Evaluator
	moves    MoveSource
	metrics  searcher.Collector

	// Serializes graph mutation: back-propagation, expansion, TT access.
	mu sync.Mutex

	goroutines   int
	simulations  int64
	duration     time.Duration
	cpuct        float32
	drawScore    float32
	noiseEpsilon float64
	noiseAlpha   float64
	temperature  float64
}

func NewEngine(evaluate Evaluator, moves MoveSource, options ...Option) *Engine {
	if evaluate == nil || moves == nil {
		panic("engine: evaluator and move source are required")
	}
	e := &Engine{ // Default values
		tree:       searcher.NewNodeTree(),
		evaluate:   evaluate,
		moves:      moves,
		metrics:    searcher.NewDummyCollector(),
		goroutines: 1,
		cpuct:      1.5,
	}
	for _, option := range options {
		option(e)
	}
	if e.simulations <= 0 && e.duration <= 0 {
		panic("engine: must specify simulations or duration")
	}
	return e
}

func (e *Engine) Tree() *searcher.NodeTree { return e.tree }

// ResetToPosition points the engine at a position given as a starting FEN
// plus the moves played from it, reusing the existing graph when the
// sequence extends the previous one.
func (e *Engine) ResetToPosition(startingFen string, moves []game.Move) (bool, error) {
	reused, err := e.tree.ResetToPosition(startingFen, moves)
	if err != nil {
		return false, err
	}
	e.metrics.SetTreeReused(reused)
	return reused, nil
}

// MakeMove advances the head to the played move, keeping the chosen subtree
// and evicting whatever the released siblings no longer reference.
func (e *Engine) MakeMove(move game.Move) {
	e.tree.MakeMove(move)
	e.tree.TTMaintenance()
}

// Search runs simulations from the current head until the configured
// simulation count or duration runs out, and returns the chosen move.
func (e *Engine) Search(ctx context.Context) (game.Move, searcher.SearchMetric, error) {
	if e.tree.CurrentHead() == nil {
		if _, err := e.ResetToPosition(game.StartingFen, nil); err != nil {
			return game.MoveA1A1, searcher.SearchMetric{}, err
		}
	}
	if err := e.prepareRoot(); err != nil {
		return game.MoveA1A1, searcher.SearchMetric{}, err
	}

	e.metrics.Start(e.goroutines)

	if e.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.duration)
		defer cancel()
	}
	budget := e.simulations
	if budget <= 0 {
		budget = math.MaxInt64
	}
	var remaining atomic.Int64
	remaining.Store(budget)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < e.goroutines; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
				if remaining.Load() <= 0 {
					return nil
				}
				ok, err := e.simulate()
				if err != nil {
					return err
				}
				if ok {
					remaining.Add(-1)
				} else {
					// Collision: let the colliding worker finish its claim.
					runtime.Gosched()
				}
			}
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}

	metric := e.metrics.Complete()
	move := e.bestMove()
	log.Info().
		Str("move", move.String()).
		Int64("simulations", metric.Simulations).
		Int64("collisions", metric.Collisions).
		Int64("terminal_visits", metric.TerminalVisits).
		Int64("cache_hits", metric.CacheHits).
		Dur("duration", metric.Duration).
		Msg("search complete")
	return move, metric, err
}

// prepareRoot evaluates the head position if it never was, seeds the visit
// that anchors the children-sum invariant, and applies root noise onto a
// non-shareable clone so the table entry stays clean.
func (e *Engine) prepareRoot() error {
	head := e.tree.CurrentHead()
	if head.LowNode() == nil {
		history := e.tree.History().Clone()
		low, created := e.tree.TTGetOrCreate(history.Last().Hash())
		if created {
			moves := e.moves(history)
			eval, err := e.evaluate.Evaluate(history, moves)
			if err != nil {
				return err
			}
			low.SetNNEval(eval)
			if low.NumEdges() > 0 {
				low.SortEdges()
			}
		}
		head.SetLowNode(low)
	}

	low := head.LowNode()
	if low.NumEdges() == 0 && !head.IsTerminal() {
		result := resultFromValue(float32(low.WL()))
		if !low.IsTerminal() {
			low.MakeTerminal(result, 0, searcher.EndOfGame)
		}
		head.MakeTerminal(result, 0, searcher.EndOfGame)
	}

	if e.noiseEpsilon > 0 && low.NumEdges() > 0 {
		// Node-specific divergence: noise goes onto a clone outside the
		// table. The subtree below the old record stays in the table until
		// maintenance and is rebuilt under the clone as the search runs.
		clone := e.tree.NonTTAddClone(low)
		applyDirichletNoise(clone, e.noiseEpsilon, e.noiseAlpha)
		head.Trim()
		head.SetLowNode(clone)
		low = clone
	}

	if head.N() == 0 {
		// The visit that expanded the head: LowNode.n counts it as the 1 in
		// n = 1 + sum of child visits.
		head.IncrementNInFlight(1)
		low.IncrementNInFlight(1)
		v := float32(low.WL())
		d, m := low.D(), low.M()
		head.FinalizeScoreUpdate(v, d, m, 1)
		if low.N() == 0 {
			low.FinalizeScoreUpdate(v, d, m, 1)
		} else {
			low.CancelScoreUpdate(1)
		}
	}
	return nil
}

// step is one level of a simulation path: the node descended through and
// the position record it claimed.
type step struct {
	node *searcher.Node
	low  *searcher.LowNode
}

// simulate runs one descent-evaluate-backpropagate cycle. It reports false
// when the descent collided with another worker and nothing was recorded.
func (e *Engine) simulate() (bool, error) {
	head := e.tree.CurrentHead()
	history := e.tree.History().Clone()

	if !head.TryStartScoreUpdate() {
		e.metrics.AddCollision()
		return false, nil
	}
	path := []step{{node: head}}
	node := head

	for {
		low := node.LowNode()
		if low != nil {
			low.IncrementNInFlight(1)
			path[len(path)-1].low = low
		}

		// A terminal without a position record exists: the repetition draw
		// below is path-specific and never expands.
		if node.IsTerminal() || (low != nil && !low.HasChildren()) {
			e.visitTerminal(path, node)
			return true, nil
		}
		if low == nil {
			return e.expandLeaf(path, history)
		}

		child := e.selectChild(node)
		move := child.Move(false)
		if history.IsBlackToMove() {
			move = move.Flip()
		}
		history.Append(move)

		if !child.TryStartScoreUpdate() {
			e.cancelPath(path)
			e.metrics.AddCollision()
			return false, nil
		}
		path = append(path, step{node: child})
		node = child

		if !node.IsTerminal() && history.LastMoveRepetitions() >= 2 {
			// Third occurrence: a draw for this path only, so the node is
			// marked, never the shared position record.
			e.mu.Lock()
			if !node.IsTerminal() {
				node.MakeTerminal(game.Draw, 0, searcher.EndOfGame)
			}
			e.mu.Unlock()
		}
	}
}

// selectChild picks the PUCT-maximal edge of the position below node and
// realizes it. Child values are from the point of view of the player
// choosing here, so no sign flip is needed.
func (e *Engine) selectChild(node *searcher.Node) *searcher.Node {
	low := node.LowNode()
	numerator := e.cpuct * float32(math.Sqrt(float64(node.NStarted())))
	// First play urgency: an unvisited child scores as the parent's own
	// value seen from the child side.
	defaultQ := -node.Q(e.drawScore)

	best := uint16(0)
	bestScore := float32(math.Inf(-1))
	for it := node.Edges(); it.Ok(); it.Next() {
		score := it.Q(defaultQ, e.drawScore) + it.U(numerator)
		if score > bestScore {
			bestScore = score
			best = it.Index()
		}
	}
	return low.InsertChildAt(best)
}

// visitTerminal records a visit of a node whose value is already exact.
// Revisits are amplified with an extra unguarded claim, since joining a
// terminal costs no evaluation.
func (e *Engine) visitTerminal(path []step, node *searcher.Node) {
	multivisit := 1
	if node.N() > 0 {
		multivisit = 2
		for _, st := range path {
			st.node.IncrementNInFlight(1)
			if st.low != nil {
				st.low.IncrementNInFlight(1)
			}
		}
	}
	e.metrics.AddTerminalVisit()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.backpropagate(path, float32(node.WL()), node.D(), node.M(), multivisit)
	e.propagateBounds(path)
}

// expandLeaf resolves the leaf position through the transposition table:
// attach the existing record if the position was seen before, otherwise
// evaluate and publish a fresh one.
func (e *Engine) expandLeaf(path []step, history *game.PositionHistory) (bool, error) {
	leaf := &path[len(path)-1]
	hash := history.Last().Hash()

	e.mu.Lock()
	low, created := e.tree.TTGetOrCreate(hash)
	if !created {
		if low.NumEdges() == 0 && !low.IsTerminal() && low.N() == 0 {
			// Another worker created the record and is off evaluating it.
			e.mu.Unlock()
			e.cancelPath(path)
			e.metrics.AddCollision()
			return false, nil
		}
		e.metrics.AddCacheHit()
	} else {
		// Evaluate outside the lock; the virgin record makes concurrent
		// arrivals back off above.
		e.mu.Unlock()
		moves := e.moves(history)
		eval, err := e.evaluate.Evaluate(history, moves)
		e.mu.Lock()
		if err != nil {
			e.mu.Unlock()
			e.cancelPath(path)
			return false, err
		}
		low.SetNNEval(eval)
		if low.NumEdges() > 0 {
			low.SortEdges()
		}
	}

	leaf.node.SetLowNode(low)
	low.IncrementNInFlight(1)
	leaf.low = low

	if low.IsTerminal() {
		b := low.Bounds()
		leaf.node.MakeTerminal(b.Lower, low.M(), low.TerminalType())
	} else if low.NumEdges() == 0 {
		// No legal moves: the game ended here.
		result := resultFromValue(float32(low.WL()))
		low.MakeTerminal(result, 0, searcher.EndOfGame)
		leaf.node.MakeTerminal(result, 0, searcher.EndOfGame)
	}

	e.backpropagate(path, float32(low.WL()), low.D(), low.M(), 1)
	if leaf.node.IsTerminal() {
		e.propagateBounds(path)
	}
	e.mu.Unlock()
	return true, nil
}

// backpropagate folds the leaf value into every claimed node and position
// record back to the head, flipping the side and adding one ply per level.
// Caller holds the engine mutex.
func (e *Engine) backpropagate(path []step, v, d, m float32, multivisit int) {
	for i := len(path) - 1; i >= 0; i-- {
		st := path[i]
		st.node.FinalizeScoreUpdate(v, d, m, multivisit)
		if st.low != nil {
			st.low.FinalizeScoreUpdate(v, d, m, multivisit)
		}
		v = -v
		m++
	}
	e.metrics.AddSimulation()
}

// cancelPath drops every claim taken on an aborted descent.
func (e *Engine) cancelPath(path []step) {
	for _, st := range path {
		st.node.CancelScoreUpdate(1)
		if st.low != nil {
			st.low.CancelScoreUpdate(1)
		}
	}
}

// propagateBounds tightens ancestor bounds after a terminal was reached on
// this path. A parent's bounds are the flip of the best child bounds over
// all edges; when they collapse the parent's value becomes exact and its
// already-recorded visits are reweighted up the rest of the path. Caller
// holds the engine mutex.
func (e *Engine) propagateBounds(path []step) {
	for i := len(path) - 2; i >= 0; i-- {
		st := path[i]
		agg, plies := childAggregate(st.node)
		b := agg.Flip()
		st.node.SetBounds(b.Lower, b.Upper)
		if st.low != nil {
			st.low.SetBounds(b.Lower, b.Upper)
		}
		if b.Lower != b.Upper || st.node.IsTerminal() {
			return
		}

		oldWL, oldD, oldM := float32(st.node.WL()), st.node.D(), st.node.M()
		st.node.MakeTerminal(b.Lower, plies+1, searcher.EndOfGame)
		if st.low != nil && !st.low.IsTerminal() {
			st.low.MakeTerminal(b.Lower, plies+1, searcher.EndOfGame)
		}
		dv := float32(st.node.WL()) - oldWL
		dd := st.node.D() - oldD
		dm := st.node.M() - oldM
		mv := int(st.node.N())

		for j := i - 1; j >= 0; j-- {
			dv = -dv
			up := path[j]
			if up.node.N() == 0 {
				break
			}
			up.node.AdjustForTerminal(dv, dd, dm, mv)
			if up.low != nil && up.low.N() > 0 {
				up.low.AdjustForTerminal(dv, dd, dm, mv)
			}
		}
		return
	}
}

// childAggregate is the best outcome the chooser below node can force, as
// the max over all edges of the child bounds. Unrealized or unproven edges
// contribute the full unknown range, so the aggregate collapses either when
// some child is a proven win for the chooser or when every child is proven.
// plies is the remaining-plies estimate of a child achieving the best bound.
func childAggregate(node *searcher.Node) (agg searcher.Bounds, plies float32) {
	agg = searcher.Bounds{Lower: game.BlackWon, Upper: game.BlackWon}
	for it := node.Edges(); it.Ok(); it.Next() {
		b := it.Bounds()
		if !it.HasNode() {
			b = searcher.Bounds{Lower: game.BlackWon, Upper: game.WhiteWon}
		}
		if b.Lower > agg.Lower {
			agg.Lower = b.Lower
		}
		if b.Upper > agg.Upper {
			agg.Upper = b.Upper
		}
		if it.IsTerminal() && b.Lower == agg.Lower {
			plies = it.M(0)
		}
	}
	return agg, plies
}

// bestMove picks the move to play at the head: the most visited child, or
// with a temperature, a visits^(1/t)-weighted sample.
func (e *Engine) bestMove() game.Move {
	head := e.tree.CurrentHead()

	type candidate struct {
		move game.Move
		n    uint32
		p    float32
	}
	var candidates []candidate
	for it := head.Edges(); it.Ok(); it.Next() {
		candidates = append(candidates, candidate{
			move: it.Move(false),
			n:    it.N(),
			p:    it.P(),
		})
	}
	if len(candidates) == 0 {
		return game.MoveA1A1
	}

	var chosen candidate
	if e.temperature > 0 {
		weights := make([]float64, len(candidates))
		total := 0.0
		for i, c := range candidates {
			weights[i] = math.Pow(float64(c.n), 1/e.temperature)
			total += weights[i]
		}
		chosen = candidates[0]
		if total > 0 {
			r := frand.Float64() * total
			for i, w := range weights {
				r -= w
				if r <= 0 {
					chosen = candidates[i]
					break
				}
			}
		}
	} else {
		chosen = lo.MaxBy(candidates, func(a, b candidate) bool {
			if a.n != b.n {
				return a.n > b.n
			}
			return a.p > b.p
		})
	}

	move := chosen.move
	if e.tree.IsBlackToMove() {
		move = move.Flip()
	}
	return move
}

// resultFromValue maps an evaluator value of a moveless position to the
// game outcome it encodes.
func resultFromValue(v float32) game.GameResult {
	switch {
	case v > 0.5:
		return game.WhiteWon
	case v < -0.5:
		return game.BlackWon
	}
	return game.Draw
}
