package analysis

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrParseIncomplete is returned when engine output has no usable bestmove.
var ErrParseIncomplete = errors.New("engine output incomplete")

const (
	WhiteGlyph     = "⚪"
	BlackGlyph     = "⚫"
	CheckmateLabel = "Checkmate!"

	// MaxArrows bounds Result.SuggestedArrows.
	MaxArrows = 2
)

var (
	bestMoveRe = regexp.MustCompile(`bestmove\s+(\S+)`)
	cpRe       = regexp.MustCompile(`\bcp\s+(-?\d+)`)
	mateRe     = regexp.MustCompile(`\bmate\s+(-?\d+)`)
	pvRe       = regexp.MustCompile(`(?m)\bpv\s+(.*)$`)
	uciMoveRe  = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbn]?$`)
)

// Parse extracts a Result from raw engine output.
//
// The first cp score wins over any mate score; the first pv line supplies the
// arrows. Arrows are the first MaxArrows moves of that line, each split into
// its from and to squares, so "pv e2e4 e7e5 g1f3" gives [[e2 e4] [e7 e5]].
func Parse(raw string) (Result, error) {
	m := bestMoveRe.FindStringSubmatch(raw)
	if m == nil {
		return Result{}, fmt.Errorf("%w: no %q marker", ErrParseIncomplete, "bestmove")
	}
	best := m[1]
	if !uciMoveRe.MatchString(best) {
		return Result{}, fmt.Errorf("%w: bestmove %q", ErrParseIncomplete, best)
	}

	return Result{
		BestMove:        best,
		Evaluation:      parseEvaluation(raw),
		SuggestedArrows: parseArrows(raw),
	}, nil
}

func parseEvaluation(raw string) string {
	if m := cpRe.FindStringSubmatch(raw); m != nil {
		cp, err := strconv.Atoi(m[1])
		if err == nil {
			return FormatScore(strconv.Itoa(cp), cp)
		}
	}
	if m := mateRe.FindStringSubmatch(raw); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return FormatScore("M"+strconv.Itoa(n), n)
		}
	}
	return CheckmateLabel
}

// FormatScore renders a score label with the glyph of the side it favours.
// Zero counts as favouring black.
func FormatScore(label string, sign int) string {
	glyph := BlackGlyph
	if sign > 0 {
		glyph = WhiteGlyph
	}
	return label + " " + glyph
}

func parseArrows(raw string) [][]string {
	arrows := make([][]string, 0, MaxArrows)

	m := pvRe.FindStringSubmatch(raw)
	if m == nil {
		return arrows
	}
	for _, mv := range strings.Fields(m[1]) {
		if len(arrows) == MaxArrows {
			break
		}
		if !uciMoveRe.MatchString(mv) {
			break
		}
		arrows = append(arrows, []string{mv[0:2], mv[2:4]})
	}
	return arrows
}
