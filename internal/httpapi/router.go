package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/artemis-sophia/masterchess-ai/internal/analysis"
	"github.com/artemis-sophia/masterchess-ai/internal/cache"
	"github.com/artemis-sophia/masterchess-ai/internal/engine"
	"github.com/artemis-sophia/masterchess-ai/internal/position"
)

const (
	// Stockfish's "Skill Level" option range
	MinDifficulty     = 0
	MaxDifficulty     = 20
	DefaultDifficulty = 10

	maxBodyBytes = 16 << 10

	// The only error body /api/analyze sends; details stay in the log
	analysisFailed = "Analysis failed"
)

// Analyzer is the analysis entry point used by the handlers.
type Analyzer interface {
	Analyze(ctx context.Context, fen string, difficulty int) (analysis.Result, error)
	Stats() analysis.Stats
}

// Handler serves the analysis API.
type Handler struct {
	analyzer Analyzer
	runner   *engine.Runner
	store    cache.Store
	log      zerolog.Logger
}

// NewRouter creates the HTTP handler.
// runner is optional - without it /readyz skips the engine probe and
// /api/status omits engine counters.
func NewRouter(log zerolog.Logger, analyzer Analyzer, runner *engine.Runner, store cache.Store) http.Handler {
	h := &Handler{
		analyzer: analyzer,
		runner:   runner,
		store:    store,
		log:      log,
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(h.health))
	mux.Handle("/readyz", http.HandlerFunc(h.ready))
	mux.Handle("/api/analyze", http.HandlerFunc(h.analyze))
	mux.Handle("/api/status", http.HandlerFunc(h.status))

	return CORS(RequestID(AccessLog(log, mux)))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ready reports whether the cache answers and the engine binary works.
func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	ok := true
	if err := h.store.Ping(ctx); err != nil {
		checks["cache"] = err.Error()
		ok = false
	} else {
		checks["cache"] = "ok"
	}
	if h.runner != nil {
		if err := h.runner.Probe(ctx); err != nil {
			checks["engine"] = err.Error()
			ok = false
		} else {
			checks["engine"] = "ok"
		}
	}

	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, checks)
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rid := GetRequestID(r.Context())

	var req AnalyzeRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		h.log.Warn().Err(err).Str("rid", rid).Msg("undecodable request body")
		writeError(w, http.StatusInternalServerError, analysisFailed)
		return
	}

	fen, err := position.Resolve(req.FEN, req.Moves)
	if err != nil {
		h.log.Warn().Err(err).Str("rid", rid).Str("fen", req.FEN).Strs("moves", req.Moves).Msg("rejected position")
		writeError(w, http.StatusInternalServerError, analysisFailed)
		return
	}

	difficulty := DefaultDifficulty
	if req.Difficulty != nil {
		difficulty = clampDifficulty(*req.Difficulty)
	}

	res, err := h.analyzer.Analyze(r.Context(), fen, difficulty)
	if err != nil {
		ev := h.log.Error()
		if errors.Is(err, context.Canceled) {
			ev = h.log.Debug()
		}
		ev.Err(err).Str("rid", rid).Str("fen", fen).Int("difficulty", difficulty).Msg("analysis failed")
		writeError(w, http.StatusInternalServerError, analysisFailed)
		return
	}

	writeJSON(w, http.StatusOK, toAnalyzeResponse(res))
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Analyzer: h.analyzer.Stats(),
		Cache:    h.store.Stats(),
	}
	if h.runner != nil {
		st := h.runner.GetStatus()
		resp.Engine = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func clampDifficulty(d int) int {
	if d < MinDifficulty {
		return MinDifficulty
	}
	if d > MaxDifficulty {
		return MaxDifficulty
	}
	return d
}
