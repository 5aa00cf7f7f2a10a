package game

// GameResult is a game outcome ordered BlackWon < Draw < WhiteWon, which is
// the natural ordering for outcome bounds. Inside the search it is used in
// side-relative terms: WhiteWon reads as "win for the player this value
// belongs to".
type GameResult int8

const (
	BlackWon GameResult = -1
	Draw     GameResult = 0
	WhiteWon GameResult = 1
)

// Flip converts the result to the opponent's point of view.
func (r GameResult) Flip() GameResult { return -r }

func (r GameResult) String() string {
	switch r {
	case BlackWon:
		return "black won"
	case Draw:
		return "draw"
	case WhiteWon:
		return "white won"
	}
	return "undecided"
}

// PositionHistory is the sequence of positions from a starting position to
// the current one. The search uses it for hashing the current position and
// for repetition detection.
type PositionHistory struct {
	positions []Position
}

// NewPositionHistory parses the starting FEN into a single-entry history.
func NewPositionHistory(startingFen string) (*PositionHistory, error) {
	p, err := PositionFromFen(startingFen)
	if err != nil {
		return nil, err
	}
	return &PositionHistory{positions: []Position{p}}, nil
}

// Reset drops all positions and restarts from the given FEN.
func (h *PositionHistory) Reset(startingFen string) error {
	p, err := PositionFromFen(startingFen)
	if err != nil {
		return err
	}
	h.positions = append(h.positions[:0], p)
	return nil
}

// Append plays a trusted-legal move on the last position.
func (h *PositionHistory) Append(m Move) {
	h.positions = append(h.positions, h.Last().Apply(m))
}

// Pop removes the last position. The starting position is never removed.
func (h *PositionHistory) Pop() {
	if len(h.positions) > 1 {
		h.positions = h.positions[:len(h.positions)-1]
	}
}

func (h *PositionHistory) Len() int            { return len(h.positions) }
func (h *PositionHistory) Last() *Position     { return &h.positions[len(h.positions)-1] }
func (h *PositionHistory) Starting() *Position { return &h.positions[0] }

func (h *PositionHistory) IsBlackToMove() bool { return h.Last().IsBlackToMove() }

// Clone returns an independent copy, for per-simulation descent tracking.
func (h *PositionHistory) Clone() *PositionHistory {
	c := &PositionHistory{positions: make([]Position, len(h.positions))}
	copy(c.positions, h.positions)
	return c
}

// LastMoveRepetitions counts how many earlier positions in the history have
// the same hash as the last one. Two means the current position is on the
// board for the third time.
func (h *PositionHistory) LastMoveRepetitions() int {
	last := h.Last().Hash()
	count := 0
	for i := 0; i < len(h.positions)-1; i++ {
		if h.positions[i].Hash() == last {
			count++
		}
	}
	return count
}
