// Package analysis turns a position into a move suggestion by consulting the
// cache and, on a miss, an engine.
package analysis

import (
	"strconv"
)

// Result is the outcome of analysing one position. Its JSON form is both the
// HTTP response body and the cached value.
type Result struct {
	BestMove        string     `json:"bestMove"`
	Evaluation      string     `json:"evaluation"`
	SuggestedArrows [][]string `json:"suggestedArrows"`
}

// CacheKey returns the cache key for a position at a difficulty. The
// difficulty is written first and contains no ':', so keys never collide.
func CacheKey(fen string, difficulty int) string {
	return "analysis:" + strconv.Itoa(difficulty) + ":" + fen
}

func (r Result) clone() Result {
	arrows := make([][]string, len(r.SuggestedArrows))
	for i, a := range r.SuggestedArrows {
		arrows[i] = append([]string(nil), a...)
	}
	r.SuggestedArrows = arrows
	return r
}
