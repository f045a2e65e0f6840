package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/artemis-sophia/masterchess-ai/internal/analysis"
	"github.com/artemis-sophia/masterchess-ai/internal/cache"
	"github.com/artemis-sophia/masterchess-ai/internal/engine"
)

// AnalyzeRequest is the body of POST /api/analyze. Moves, if given, are SAN
// moves played from the starting position.
type AnalyzeRequest struct {
	FEN        string   `json:"fen"`
	Moves      []string `json:"moves,omitempty"`
	Difficulty *int     `json:"difficulty"`
}

// AnalyzeResponse mirrors analysis.Result on the wire.
type AnalyzeResponse struct {
	BestMove        string     `json:"bestMove"`
	Evaluation      string     `json:"evaluation"`
	SuggestedArrows [][]string `json:"suggestedArrows"`
}

func toAnalyzeResponse(res analysis.Result) AnalyzeResponse {
	arrows := res.SuggestedArrows
	if arrows == nil {
		arrows = [][]string{}
	}
	return AnalyzeResponse{
		BestMove:        res.BestMove,
		Evaluation:      res.Evaluation,
		SuggestedArrows: arrows,
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Engine   *engine.Status `json:"engine,omitempty"`
	Analyzer analysis.Stats `json:"analyzer"`
	Cache    cache.Stats    `json:"cache"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
