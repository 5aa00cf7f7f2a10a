package game

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// StartingFen is the standard chess starting position.
const StartingFen = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Castling rights bits.
const (
	castleWhiteShort = 1 << iota
	castleWhiteLong
	castleBlackShort
	castleBlackLong
)

// Position is a board snapshot. It carries exactly what the search core
// needs from a board layer: piece placement for hashing and evaluation, the
// side to move, and enough bookkeeping to apply trusted moves. It does not
// generate or validate moves.
type Position struct {
	board       [64]Piece
	blackToMove bool
	castling    uint8
	enPassant   Square // 0 when unset; a1 can never be an en-passant square
	rule50      int
	gamePly     int
}

var fenPieces = map[byte]Piece{
	'P': Pawn, 'N': Knight, 'B': Bishop, 'R': Rook, 'Q': Queen, 'K': King,
	'p': -Pawn, 'n': -Knight, 'b': -Bishop, 'r': -Rook, 'q': -Queen, 'k': -King,
}

// PositionFromFen parses the first four FEN fields plus move counters.
func PositionFromFen(fen string) (Position, error) {
	var p Position
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return p, fmt.Errorf("game: invalid fen %q", fen)
	}

	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return p, fmt.Errorf("game: invalid fen board %q", fields[0])
	}
	for r, rank := range ranks {
		file := 0
		for i := 0; i < len(rank); i++ {
			c := rank[i]
			if c >= '1' && c <= '8' {
				file += int(c - '0')
				continue
			}
			piece, ok := fenPieces[c]
			if !ok || file > 7 {
				return p, fmt.Errorf("game: invalid fen board %q", fields[0])
			}
			p.board[NewSquare(file, 7-r)] = piece
			file++
		}
		if file != 8 {
			return p, fmt.Errorf("game: invalid fen rank %q", rank)
		}
	}

	switch fields[1] {
	case "w":
	case "b":
		p.blackToMove = true
	default:
		return p, fmt.Errorf("game: invalid side to move %q", fields[1])
	}

	if fields[2] != "-" {
		for i := 0; i < len(fields[2]); i++ {
			switch fields[2][i] {
			case 'K':
				p.castling |= castleWhiteShort
			case 'Q':
				p.castling |= castleWhiteLong
			case 'k':
				p.castling |= castleBlackShort
			case 'q':
				p.castling |= castleBlackLong
			default:
				return p, fmt.Errorf("game: invalid castling field %q", fields[2])
			}
		}
	}

	if fields[3] != "-" {
		sq, err := parseSquare(fields[3])
		if err != nil {
			return p, err
		}
		p.enPassant = sq
	}

	if len(fields) > 4 {
		n, err := strconv.Atoi(fields[4])
		if err != nil {
			return p, fmt.Errorf("game: invalid halfmove clock %q", fields[4])
		}
		p.rule50 = n
	}
	if len(fields) > 5 {
		n, err := strconv.Atoi(fields[5])
		if err != nil {
			return p, fmt.Errorf("game: invalid fullmove number %q", fields[5])
		}
		p.gamePly = 2 * (n - 1)
		if p.blackToMove {
			p.gamePly++
		}
	}
	return p, nil
}

func (p *Position) IsBlackToMove() bool    { return p.blackToMove }
func (p *Position) GamePly() int           { return p.gamePly }
func (p *Position) Rule50() int            { return p.rule50 }
func (p *Position) PieceAt(s Square) Piece { return p.board[s] }

// Apply plays a move the caller asserts is legal and returns the resulting
// position. Handles promotion, en passant captures, and castling rook hops;
// it never checks legality.
func (p Position) Apply(m Move) Position {
	from, to := m.From(), m.To()
	piece := p.board[from]
	capture := p.board[to] != Empty

	p.board[from] = Empty
	if promo := m.Promotion(); promo != Empty {
		if piece < 0 {
			p.board[to] = -promo
		} else {
			p.board[to] = promo
		}
	} else {
		p.board[to] = piece
	}

	switch piece {
	case Pawn, -Pawn:
		if to == p.enPassant && p.enPassant != 0 && !capture {
			// En passant: the captured pawn sits behind the target square.
			if piece > 0 {
				p.board[to-8] = Empty
			} else {
				p.board[to+8] = Empty
			}
			capture = true
		}
	case King:
		p.castling &^= castleWhiteShort | castleWhiteLong
		if from == NewSquare(4, 0) {
			switch to {
			case NewSquare(6, 0):
				p.board[NewSquare(5, 0)], p.board[NewSquare(7, 0)] = Rook, Empty
			case NewSquare(2, 0):
				p.board[NewSquare(3, 0)], p.board[NewSquare(0, 0)] = Rook, Empty
			}
		}
	case -King:
		p.castling &^= castleBlackShort | castleBlackLong
		if from == NewSquare(4, 7) {
			switch to {
			case NewSquare(6, 7):
				p.board[NewSquare(5, 7)], p.board[NewSquare(7, 7)] = -Rook, Empty
			case NewSquare(2, 7):
				p.board[NewSquare(3, 7)], p.board[NewSquare(0, 7)] = -Rook, Empty
			}
		}
	}
	for sq, bit := range rookRights {
		if from == sq || to == sq {
			p.castling &^= bit
		}
	}

	p.enPassant = 0
	if piece == Pawn && to-from == 16 {
		p.enPassant = from + 8
	} else if piece == -Pawn && from-to == 16 {
		p.enPassant = from - 8
	}

	if capture || piece == Pawn || piece == -Pawn {
		p.rule50 = 0
	} else {
		p.rule50++
	}
	p.gamePly++
	p.blackToMove = !p.blackToMove
	return p
}

var rookRights = map[Square]uint8{
	NewSquare(7, 0): castleWhiteShort,
	NewSquare(0, 0): castleWhiteLong,
	NewSquare(7, 7): castleBlackShort,
	NewSquare(0, 7): castleBlackLong,
}

// Hash is the 64-bit transposition key. Two positions with the same piece
// placement, side to move, castling rights and en-passant square hash
// identically regardless of the move order that produced them.
func (p *Position) Hash() uint64 {
	var buf [67]byte
	for i, piece := range p.board {
		buf[i] = byte(piece)
	}
	if p.blackToMove {
		buf[64] = 1
	}
	buf[65] = p.castling
	buf[66] = byte(p.enPassant)
	return xxhash.Sum64(buf[:])
}

// Material sums piece values from the side to move's point of view, in
// pawn units.
func (p *Position) Material() int {
	values := [...]int{Empty: 0, Pawn: 1, Knight: 3, Bishop: 3, Rook: 5, Queen: 9, King: 0}
	total := 0
	for _, piece := range p.board {
		if piece > 0 {
			total += values[piece]
		} else {
			total -= values[-piece]
		}
	}
	if p.blackToMove {
		return -total
	}
	return total
}
