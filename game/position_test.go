package game

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPositionFromFen(t *testing.T) {
	t.Run("starting position", func(t *testing.T) {
		p, err := PositionFromFen(StartingFen)

		require.NoError(t, err)
		require.False(t, p.IsBlackToMove())
		require.Equal(t, 0, p.GamePly())
		require.Equal(t, Rook, p.PieceAt(NewSquare(0, 0)))
		require.Equal(t, -King, p.PieceAt(NewSquare(4, 7)))
		require.Equal(t, Empty, p.PieceAt(NewSquare(4, 3)))
	})

	t.Run("side to move and counters", func(t *testing.T) {
		p, err := PositionFromFen("8/8/8/8/8/8/8/K6k b - - 12 34")

		require.NoError(t, err)
		require.True(t, p.IsBlackToMove())
		require.Equal(t, 12, p.Rule50())
		require.Equal(t, 67, p.GamePly())
	})

	t.Run("rejects malformed fens", func(t *testing.T) {
		for _, fen := range []string{
			"",
			"only/seven/ranks/here/x/y/z w - -",
			"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR x KQkq - 0 1",
			"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQxq - 0 1",
			"9/8/8/8/8/8/8/8 w - - 0 1",
		} {
			_, err := PositionFromFen(fen)
			require.Error(t, err, "%q should not parse", fen)
		}
	})
}

func TestApply(t *testing.T) {
	start, err := PositionFromFen(StartingFen)
	require.NoError(t, err)

	t.Run("relocates the piece and passes the turn", func(t *testing.T) {
		p := start.Apply(MustParseMove("e2e4"))

		require.Equal(t, Empty, p.PieceAt(NewSquare(4, 1)))
		require.Equal(t, Pawn, p.PieceAt(NewSquare(4, 3)))
		require.True(t, p.IsBlackToMove())
		require.Equal(t, 1, p.GamePly())
	})

	t.Run("pawn moves reset the halfmove clock", func(t *testing.T) {
		p := start.Apply(MustParseMove("g1f3"))
		require.Equal(t, 1, p.Rule50())
		p = p.Apply(MustParseMove("e7e5"))
		require.Equal(t, 0, p.Rule50())
	})

	t.Run("promotion replaces the pawn", func(t *testing.T) {
		p, err := PositionFromFen("8/4P3/8/8/8/8/8/K6k w - - 0 1")
		require.NoError(t, err)

		p = p.Apply(MustParseMove("e7e8q"))

		require.Equal(t, Queen, p.PieceAt(NewSquare(4, 7)))
		require.Equal(t, Empty, p.PieceAt(NewSquare(4, 6)))
	})

	t.Run("en passant removes the bypassed pawn", func(t *testing.T) {
		p, err := PositionFromFen("8/8/8/8/4pP2/8/8/K6k b - f3 0 1")
		require.NoError(t, err)

		p = p.Apply(MustParseMove("e4f3"))

		require.Equal(t, -Pawn, p.PieceAt(NewSquare(5, 2)))
		require.Equal(t, Empty, p.PieceAt(NewSquare(5, 3)),
			"The bypassed pawn should be captured")
	})

	t.Run("castling hops the rook", func(t *testing.T) {
		p, err := PositionFromFen("r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1")
		require.NoError(t, err)

		p = p.Apply(MustParseMove("e1g1"))

		require.Equal(t, King, p.PieceAt(NewSquare(6, 0)))
		require.Equal(t, Rook, p.PieceAt(NewSquare(5, 0)))
		require.Equal(t, Empty, p.PieceAt(NewSquare(7, 0)))
	})
}

func TestHash(t *testing.T) {
	start, err := PositionFromFen(StartingFen)
	require.NoError(t, err)

	t.Run("same position through different move orders", func(t *testing.T) {
		a := start
		for _, uci := range []string{"d2d4", "g8f6", "g1f3", "d7d5"} {
			a = a.Apply(MustParseMove(uci))
		}
		b := start
		for _, uci := range []string{"g1f3", "g8f6", "d2d4", "d7d5"} {
			b = b.Apply(MustParseMove(uci))
		}

		require.Equal(t, a.Hash(), b.Hash(),
			"Transposed positions must share their hash")
	})

	t.Run("differs by side to move", func(t *testing.T) {
		w, err := PositionFromFen("8/8/8/8/8/8/8/K6k w - - 0 1")
		require.NoError(t, err)
		b, err := PositionFromFen("8/8/8/8/8/8/8/K6k b - - 0 1")
		require.NoError(t, err)

		require.NotEqual(t, w.Hash(), b.Hash())
	})

	t.Run("differs by move", func(t *testing.T) {
		e4 := start.Apply(MustParseMove("e2e4"))
		d4 := start.Apply(MustParseMove("d2d4"))
		require.NotEqual(t, e4.Hash(), d4.Hash())
	})
}

func TestMaterial(t *testing.T) {
	start, err := PositionFromFen(StartingFen)
	require.NoError(t, err)
	require.Zero(t, start.Material(), "The starting position is balanced")

	p, err := PositionFromFen("8/8/8/8/8/8/8/KQ5k w - - 0 1")
	require.NoError(t, err)
	require.Equal(t, 9, p.Material(), "A queen up for the side to move")
	p, err = PositionFromFen("8/8/8/8/8/8/8/KQ5k b - - 0 1")
	require.NoError(t, err)
	require.Equal(t, -9, p.Material(), "And down for the opponent")
}

func TestPositionHistory(t *testing.T) {
	t.Run("append and pop", func(t *testing.T) {
		h, err := NewPositionHistory(StartingFen)
		require.NoError(t, err)

		h.Append(MustParseMove("e2e4"))
		require.Equal(t, 2, h.Len())
		require.True(t, h.IsBlackToMove())

		h.Pop()
		require.Equal(t, 1, h.Len())
		h.Pop()
		require.Equal(t, 1, h.Len(), "The starting position is never removed")
	})

	t.Run("clone is independent", func(t *testing.T) {
		h, err := NewPositionHistory(StartingFen)
		require.NoError(t, err)

		c := h.Clone()
		c.Append(MustParseMove("e2e4"))

		require.Equal(t, 1, h.Len())
		require.Equal(t, 2, c.Len())
	})

	t.Run("repetition count by hash", func(t *testing.T) {
		h, err := NewPositionHistory(StartingFen)
		require.NoError(t, err)
		require.Zero(t, h.LastMoveRepetitions())

		// Shuffle the knights out and back twice.
		for _, uci := range []string{"g1f3", "g8f6", "f3g1", "f6g8"} {
			h.Append(MustParseMove(uci))
		}
		require.Equal(t, 1, h.LastMoveRepetitions(),
			"The starting position is on the board a second time")

		for _, uci := range []string{"g1f3", "g8f6", "f3g1", "f6g8"} {
			h.Append(MustParseMove(uci))
		}
		require.Equal(t, 2, h.LastMoveRepetitions(),
			"A third occurrence is the repetition-draw threshold")
	})
}
