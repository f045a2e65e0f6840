package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/artemis-sophia/masterchess-ai/internal/analysis"
)

const (
	startFEN   = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	italianFEN = "r1bqkbnr/pppp1ppp/2n5/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R b KQkq - 3 3"
)

func TestReadFENs(t *testing.T) {
	in := "# openings\n" + startFEN + "\n\n   \n  " + italianFEN + "  \n"
	got, err := readFENs(strings.NewReader(in))
	if err != nil {
		t.Fatalf("readFENs: %v", err)
	}
	want := []string{startFEN, italianFEN}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("readFENs() = %q, want %q", got, want)
	}
}

func TestLoadFENsZstd(t *testing.T) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enc.Write([]byte(startFEN + "\n" + italianFEN + "\n")); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "positions.txt.zst")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := loadFENs(path)
	if err != nil {
		t.Fatalf("loadFENs: %v", err)
	}
	if len(got) != 2 || got[1] != italianFEN {
		t.Errorf("loadFENs() = %q", got)
	}
}

type countingAnalyzer struct {
	mu   sync.Mutex
	seen map[string]int
	fail string
}

func (c *countingAnalyzer) Analyze(ctx context.Context, fen string, difficulty int) (analysis.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen == nil {
		c.seen = map[string]int{}
	}
	c.seen[fen] = difficulty
	if fen == c.fail {
		return analysis.Result{}, errors.New("engine crashed")
	}
	return analysis.Result{BestMove: "e2e4"}, nil
}

func TestWarm(t *testing.T) {
	a := &countingAnalyzer{fail: italianFEN}
	fens := []string{startFEN, "banana", italianFEN}

	var calls int
	var mu sync.Mutex
	sum := warm(context.Background(), a, fens, 5, 2, func(uint64) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	if sum.OK != 1 || sum.Invalid != 1 || sum.Failed != 1 {
		t.Errorf("summary = %+v, want 1 ok, 1 invalid, 1 failed", sum)
	}
	if calls != 3 {
		t.Errorf("progress calls = %d, want 3", calls)
	}
	if _, ok := a.seen["banana"]; ok {
		t.Error("invalid FEN reached the analyzer")
	}
	if a.seen[startFEN] != 5 {
		t.Errorf("difficulty = %d, want 5", a.seen[startFEN])
	}
}
