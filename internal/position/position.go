// Package position turns client input into a FEN the engine can be given.
package position

import (
	"errors"
	"fmt"
	"strings"

	"github.com/freeeve/pgn/v3"
	"github.com/notnil/chess"
)

// ErrInvalidPosition is returned for FENs or moves that do not describe a
// legal position.
var ErrInvalidPosition = errors.New("invalid position")

// StartFEN returns the FEN of the standard starting position.
func StartFEN() string {
	return pgn.NewStartingPosition().ToFEN()
}

// Resolve returns the FEN to analyse. With moves, they are applied as SAN
// from the starting position; fen must then be empty or the start FEN.
// Without moves, fen is validated and returned trimmed; empty means the
// starting position.
func Resolve(fen string, moves []string) (string, error) {
	fen = strings.TrimSpace(fen)
	if len(moves) > 0 {
		if fen != "" && !sameBoard(fen, StartFEN()) {
			return "", fmt.Errorf("%w: moves require the starting position", ErrInvalidPosition)
		}
		return applySAN(moves)
	}
	if fen == "" {
		return StartFEN(), nil
	}
	if err := Validate(fen); err != nil {
		return "", err
	}
	return fen, nil
}

// Validate checks that fen parses as a chess position.
func Validate(fen string) error {
	if _, err := chess.FEN(fen); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	return nil
}

func applySAN(moves []string) (string, error) {
	pos := pgn.NewStartingPosition()
	for i, san := range moves {
		san = strings.TrimSpace(san)
		if san == "" {
			continue
		}
		// Remove check/mate symbols for parsing
		san = strings.TrimSuffix(san, "+")
		san = strings.TrimSuffix(san, "#")

		mv, err := pgn.ParseSAN(pos, san)
		if err != nil {
			return "", fmt.Errorf("%w: move %d %q: %v", ErrInvalidPosition, i+1, san, err)
		}
		if err := pgn.ApplyMove(pos, mv); err != nil {
			return "", fmt.Errorf("%w: apply move %d %q: %v", ErrInvalidPosition, i+1, san, err)
		}
	}
	fen := pos.ToFEN()
	if err := Validate(fen); err != nil {
		return "", err
	}
	return fen, nil
}

// sameBoard compares the placement, side, castling and en-passant fields,
// ignoring move counters.
func sameBoard(a, b string) bool {
	fa, fb := strings.Fields(a), strings.Fields(b)
	if len(fa) < 4 || len(fb) < 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		if fa[i] != fb[i] {
			return false
		}
	}
	return true
}
