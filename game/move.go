package game

import (
	"fmt"
)

// Square is a board square in a1=0 .. h8=63 order.
type Square uint8

func NewSquare(file, rank int) Square {
	return Square(rank*8 + file)
}

func (s Square) File() int { return int(s) % 8 }
func (s Square) Rank() int { return int(s) / 8 }

// Flip mirrors the square vertically (a1 <-> a8).
func (s Square) Flip() Square { return s ^ 56 }

func (s Square) String() string {
	return string([]byte{byte('a' + s.File()), byte('1' + s.Rank())})
}

// Piece codes. Positive values are white, negated values are black.
type Piece int8

const (
	Empty  Piece = 0
	Pawn   Piece = 1
	Knight Piece = 2
	Bishop Piece = 3
	Rook   Piece = 4
	Queen  Piece = 5
	King   Piece = 6
)

// Move packs from-square, to-square and promotion piece into 16 bits:
// bits 0-5 to, bits 6-11 from, bits 12-14 promotion piece code.
// Moves are stored from the point of view of the player making them.
type Move uint16

// MoveA1A1 is the sentinel carried by the root node of a game tree.
const MoveA1A1 Move = 0

func NewMove(from, to Square) Move {
	return Move(uint16(from)<<6 | uint16(to))
}

func NewPromotionMove(from, to Square, promotion Piece) Move {
	return Move(uint16(promotion)<<12 | uint16(from)<<6 | uint16(to))
}

func (m Move) From() Square     { return Square(m >> 6 & 0x3f) }
func (m Move) To() Square       { return Square(m & 0x3f) }
func (m Move) Promotion() Piece { return Piece(m >> 12 & 0x7) }

// Flip mirrors the move vertically, so black's e7e5 becomes e2e4.
func (m Move) Flip() Move {
	return Move(uint16(m)&0x7000 | uint16(m.From().Flip())<<6 | uint16(m.To().Flip()))
}

func (m Move) String() string {
	s := m.From().String() + m.To().String()
	if p := m.Promotion(); p != Empty {
		s += string(promotionChars[p])
	}
	return s
}

var promotionChars = map[Piece]byte{
	Knight: 'n',
	Bishop: 'b',
	Rook:   'r',
	Queen:  'q',
}

// ParseMove parses a move in UCI notation, e.g. "e2e4" or "e7e8q".
func ParseMove(s string) (Move, error) {
	if len(s) != 4 && len(s) != 5 {
		return 0, fmt.Errorf("game: invalid move %q", s)
	}
	from, err := parseSquare(s[0:2])
	if err != nil {
		return 0, err
	}
	to, err := parseSquare(s[2:4])
	if err != nil {
		return 0, err
	}
	if len(s) == 4 {
		return NewMove(from, to), nil
	}
	for piece, c := range promotionChars {
		if c == s[4] {
			return NewPromotionMove(from, to, piece), nil
		}
	}
	return 0, fmt.Errorf("game: invalid promotion in move %q", s)
}

// MustParseMove is ParseMove for literals; panics on malformed input.
func MustParseMove(s string) Move {
	m, err := ParseMove(s)
	if err != nil {
		panic(err)
	}
	return m
}

func parseSquare(s string) (Square, error) {
	if s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, fmt.Errorf("game: invalid square %q", s)
	}
	return NewSquare(int(s[0]-'a'), int(s[1]-'1')), nil
}

// MoveList is the set of legal moves for a position, as produced by an
// external move generator.
type MoveList []Move
