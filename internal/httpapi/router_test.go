package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/artemis-sophia/masterchess-ai/internal/analysis"
	"github.com/artemis-sophia/masterchess-ai/internal/cache"
	"github.com/artemis-sophia/masterchess-ai/internal/engine"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type stubEngine struct {
	mu    sync.Mutex
	out   string
	err   error
	fens  []string
	skill []int
}

func (s *stubEngine) Run(ctx context.Context, fen string, skill int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fens = append(s.fens, fen)
	s.skill = append(s.skill, skill)
	return s.out, s.err
}

func newTestRouter(t *testing.T, eng *stubEngine) (http.Handler, *cache.Memory) {
	t.Helper()
	store := cache.NewMemory(1000)
	a, err := analysis.New(analysis.Config{Store: store, Engine: eng, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("analysis.New: %v", err)
	}
	return NewRouter(zerolog.Nop(), a, nil, store), store
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAnalyzeEndpoint(t *testing.T) {
	eng := &stubEngine{out: "... pv e2e4 e7e5 ... bestmove e2e4 ... cp 20 ..."}
	h, _ := newTestRouter(t, eng)

	rec := post(t, h, `{"fen":"`+startFEN+`","difficulty":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var got AnalyzeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := AnalyzeResponse{
		BestMove:        "e2e4",
		Evaluation:      "20 ⚪",
		SuggestedArrows: [][]string{{"e2", "e4"}, {"e7", "e5"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("response = %+v, want %+v", got, want)
	}
	if len(eng.fens) != 1 || eng.fens[0] != startFEN || eng.skill[0] != 10 {
		t.Errorf("engine called with fens=%v skill=%v", eng.fens, eng.skill)
	}
}

func TestAnalyzeEndpointEmptyArrowsIsArray(t *testing.T) {
	h, _ := newTestRouter(t, &stubEngine{out: "bestmove e2e4\n"})

	rec := post(t, h, `{"fen":"`+startFEN+`","difficulty":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"suggestedArrows":[]`) {
		t.Errorf("body = %s, want empty arrows array", rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"evaluation":"Checkmate!"`) {
		t.Errorf("body = %s, want checkmate label", rec.Body)
	}
}

func TestAnalyzeEndpointFailureIsGeneric(t *testing.T) {
	eng := &stubEngine{err: errors.New("exec: \"stockfish\": executable file not found in $PATH")}
	h, store := newTestRouter(t, eng)

	rec := post(t, h, `{"fen":"`+startFEN+`","difficulty":10}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "Analysis failed" {
		t.Errorf("error = %q, want generic message", body.Error)
	}
	if strings.Contains(rec.Body.String(), "PATH") {
		t.Errorf("internal detail leaked: %s", rec.Body)
	}
	if st := store.Stats(); st.Entries != 0 {
		t.Errorf("cache entries = %d, want 0", st.Entries)
	}
}

func TestAnalyzeEndpointRejectedInputIsGeneric(t *testing.T) {
	eng := &stubEngine{out: "bestmove e2e4\n"}
	h, _ := newTestRouter(t, eng)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{fen:`},
		{"bad fen", `{"fen":"not a fen","difficulty":10}`},
		{"short fen", `{"fen":"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP w KQkq - 0 1"}`},
		{"illegal move", `{"moves":["e5"],"difficulty":10}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, tt.body)
			if rec.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want 500; body = %s", rec.Code, rec.Body)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != "Analysis failed" {
				t.Errorf("error = %q, want generic message", body.Error)
			}
			for _, leak := range []string{"chess", "fen", "position", "invalid", "move"} {
				if strings.Contains(strings.ToLower(rec.Body.String()), leak) {
					t.Errorf("body %s contains %q", rec.Body, leak)
				}
			}
		})
	}
	if len(eng.fens) != 0 {
		t.Errorf("engine called for rejected input: %v", eng.fens)
	}
}

func TestAnalyzeEndpointDifficulty(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"explicit", `{"difficulty":7}`, 7},
		{"default", `{}`, DefaultDifficulty},
		{"zero kept", `{"difficulty":0}`, 0},
		{"clamped high", `{"difficulty":50}`, MaxDifficulty},
		{"clamped low", `{"difficulty":-3}`, MinDifficulty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &stubEngine{out: "bestmove e2e4\n"}
			h, _ := newTestRouter(t, eng)
			rec := post(t, h, tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
			}
			if len(eng.skill) != 1 || eng.skill[0] != tt.want {
				t.Errorf("skill = %v, want [%d]", eng.skill, tt.want)
			}
		})
	}
}

func TestAnalyzeEndpointMoves(t *testing.T) {
	eng := &stubEngine{out: "bestmove e7e5\n"}
	h, _ := newTestRouter(t, eng)

	rec := post(t, h, `{"moves":["e4"],"difficulty":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if len(eng.fens) != 1 || !strings.HasPrefix(eng.fens[0], "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b") {
		t.Errorf("engine fen = %v", eng.fens)
	}
}

func TestAnalyzeEndpointMethod(t *testing.T) {
	h, _ := newTestRouter(t, &stubEngine{})

	req := httptest.NewRequest(http.MethodGet, "/api/analyze", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t, &stubEngine{})

	req := httptest.NewRequest(http.MethodOptions, "/api/analyze", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow origin = %q", got)
	}
}

func TestRequestIDHeader(t *testing.T) {
	h, _ := newTestRouter(t, &stubEngine{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abcd1234")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abcd1234" {
		t.Errorf("request id = %q, want echoed id", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "bad id!")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); len(got) != 8 || got == "bad id!" {
		t.Errorf("request id = %q, want fresh 8-char id", got)
	}
}

func TestStatusEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, &stubEngine{out: "bestmove e2e4\n"})
	post(t, h, `{"difficulty":1}`)
	post(t, h, `{"difficulty":1}`)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Analyzer.CacheHits != 1 || got.Analyzer.CacheMisses != 1 {
		t.Errorf("analyzer stats = %+v", got.Analyzer)
	}
	if got.Cache.Backend != "memory" || got.Cache.Entries != 1 {
		t.Errorf("cache stats = %+v", got.Cache)
	}
	if got.Engine != nil {
		t.Errorf("engine status = %+v, want omitted without runner", got.Engine)
	}
}

func TestReadyz(t *testing.T) {
	h, _ := newTestRouter(t, &stubEngine{})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestReadyzEngineMissing(t *testing.T) {
	store := cache.NewMemory(10)
	a, _ := analysis.New(analysis.Config{Store: store, Engine: &stubEngine{}, Logger: zerolog.Nop()})
	runner, err := engine.NewRunner(engine.Config{Path: "/nonexistent/stockfish", Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	h := NewRouter(zerolog.Nop(), a, runner, store)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
