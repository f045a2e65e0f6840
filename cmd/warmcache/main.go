package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/artemis-sophia/masterchess-ai/internal/analysis"
	"github.com/artemis-sophia/masterchess-ai/internal/cache"
	"github.com/artemis-sophia/masterchess-ai/internal/config"
	"github.com/artemis-sophia/masterchess-ai/internal/engine"
	"github.com/artemis-sophia/masterchess-ai/internal/logx"
	"github.com/artemis-sophia/masterchess-ai/internal/position"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file (optional)")
		inputPath  = flag.String("input", "positions.txt", "FEN list, one per line (.zst accepted)")
		difficulty = flag.Int("difficulty", 10, "skill level to analyse at (0-20)")
		workers    = flag.Int("workers", 0, "concurrent analyses (default: engine max sessions)")
		logLevel   = flag.String("log-level", "", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	if *difficulty < 0 || *difficulty > 20 {
		fmt.Fprintf(os.Stderr, "difficulty must be between 0 and 20, got %d\n", *difficulty)
		os.Exit(1)
	}
	if *workers <= 0 {
		*workers = cfg.Engine.MaxSessions
	}

	logger := logx.NewLogger(logx.Options{Format: cfg.Log.Format, Level: cfg.Log.Level, Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fens, err := loadFENs(*inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d positions from %s\n", len(fens), *inputPath)

	store, memStore, err := cache.Open(ctx, cache.Options{
		Backend:    cfg.Cache.Backend,
		RedisURL:   cfg.Cache.RedisURL,
		MaxEntries: cfg.Cache.MaxEntries,
		Snapshot:   cfg.Cache.Snapshot,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open cache: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	runner, err := engine.NewRunner(engine.Config{
		Path:        cfg.Engine.Path,
		Args:        cfg.Engine.Args,
		Logger:      logger,
		Depth:       cfg.Engine.Depth,
		Timeout:     cfg.Engine.Timeout,
		MaxSessions: cfg.Engine.MaxSessions,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create engine runner: %v\n", err)
		os.Exit(1)
	}
	if err := runner.Probe(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "engine probe: %v\n", err)
		os.Exit(1)
	}

	analyzer, err := analysis.New(analysis.Config{
		Store:  store,
		Engine: runner,
		TTL:    cfg.Cache.TTL,
		Logger: logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create analyzer: %v\n", err)
		os.Exit(1)
	}

	start := time.Now()
	sum := warm(ctx, analyzer, fens, *difficulty, *workers, func(done uint64) {
		if done%100 == 0 {
			fmt.Printf("Analysed %d/%d positions\n", done, len(fens))
		}
	})

	st := analyzer.Stats()
	fmt.Printf("\nDone in %s! ok %d, invalid %d, failed %d (cache hits %d)\n",
		time.Since(start).Round(time.Millisecond), sum.OK, sum.Invalid, sum.Failed, st.CacheHits)

	if memStore != nil && cfg.Cache.Snapshot != "" {
		n, err := memStore.SaveSnapshot(cfg.Cache.Snapshot)
		if err != nil {
			fmt.Fprintf(os.Stderr, "write snapshot: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %d cache entries to %s\n", n, cfg.Cache.Snapshot)
	}

	if sum.Failed > 0 {
		os.Exit(2)
	}
}

type summary struct {
	OK      uint64
	Invalid uint64
	Failed  uint64
}

type analyzer interface {
	Analyze(ctx context.Context, fen string, difficulty int) (analysis.Result, error)
}

// warm analyses every FEN with at most workers in flight. Invalid FENs are
// counted and skipped without reaching the engine. progress, if set, is
// called after each position.
func warm(ctx context.Context, a analyzer, fens []string, difficulty, workers int, progress func(done uint64)) summary {
	var ok, invalid, failed, done atomic.Uint64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	for _, fen := range fens {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer func() {
				n := done.Add(1)
				if progress != nil {
					progress(n)
				}
			}()
			if err := position.Validate(fen); err != nil {
				invalid.Add(1)
				return nil
			}
			if _, err := a.Analyze(gctx, fen, difficulty); err != nil {
				failed.Add(1)
				fmt.Fprintf(os.Stderr, "analyse %q: %v\n", fen, err)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return summary{OK: ok.Load(), Invalid: invalid.Load(), Failed: failed.Load()}
}

func loadFENs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	return readFENs(r)
}

// readFENs returns one FEN per non-blank line, skipping # comments.
func readFENs(r io.Reader) ([]string, error) {
	var fens []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fens = append(fens, line)
	}
	return fens, sc.Err()
}
