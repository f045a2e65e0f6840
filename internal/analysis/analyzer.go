package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/artemis-sophia/masterchess-ai/internal/cache"
)

// ErrAnalysisFailed wraps every engine or parse failure returned by Analyze.
var ErrAnalysisFailed = errors.New("analysis failed")

// DefaultTTL is how long a result stays cached.
const DefaultTTL = 3600 * time.Second

// Engine produces raw engine output for a position.
type Engine interface {
	Run(ctx context.Context, fen string, skill int) (string, error)
}

// Config configures an Analyzer.
type Config struct {
	Store  cache.Store
	Engine Engine
	TTL    time.Duration
	Logger zerolog.Logger
}

// Analyzer answers analysis requests through a read-through cache.
type Analyzer struct {
	store  cache.Store
	engine Engine
	ttl    time.Duration
	log    zerolog.Logger
	group  singleflight.Group

	hits       int64
	misses     int64
	failures   int64
	cacheFails int64
}

// New creates an Analyzer.
func New(cfg Config) (*Analyzer, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("cache store required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine required")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	return &Analyzer{
		store:  cfg.Store,
		engine: cfg.Engine,
		ttl:    cfg.TTL,
		log:    cfg.Logger,
	}, nil
}

// Stats holds analyzer counters.
type Stats struct {
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	Failures      int64 `json:"failures"`
	CacheFailures int64 `json:"cache_failures"`
}

// Stats returns the current counters.
func (a *Analyzer) Stats() Stats {
	return Stats{
		CacheHits:     atomic.LoadInt64(&a.hits),
		CacheMisses:   atomic.LoadInt64(&a.misses),
		Failures:      atomic.LoadInt64(&a.failures),
		CacheFailures: atomic.LoadInt64(&a.cacheFails),
	}
}

// Analyze returns the cached result for (fen, difficulty) or computes,
// caches and returns a fresh one. Engine and parse errors come back wrapped
// in ErrAnalysisFailed; cache errors are logged and otherwise ignored.
// Concurrent calls for the same key share one engine run.
func (a *Analyzer) Analyze(ctx context.Context, fen string, difficulty int) (Result, error) {
	key := CacheKey(fen, difficulty)

	if res, ok := a.lookup(ctx, key); ok {
		atomic.AddInt64(&a.hits, 1)
		return res, nil
	}
	atomic.AddInt64(&a.misses, 1)

	// The engine has its own timeout, so the shared run is detached from
	// whichever caller started it.
	ch := a.group.DoChan(key, func() (any, error) {
		return a.compute(context.WithoutCancel(ctx), key, fen, difficulty)
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			atomic.AddInt64(&a.failures, 1)
			return Result{}, r.Err
		}
		// Callers sharing a run must not share arrow slices
		return r.Val.(Result).clone(), nil
	}
}

func (a *Analyzer) lookup(ctx context.Context, key string) (Result, bool) {
	b, ok, err := a.store.Get(ctx, key)
	if err != nil {
		atomic.AddInt64(&a.cacheFails, 1)
		a.log.Warn().Err(err).Str("key", key).Msg("cache read failed, treating as miss")
		return Result{}, false
	}
	if !ok {
		a.log.Debug().Str("key", key).Msg("cache miss")
		return Result{}, false
	}

	var res Result
	if err := json.Unmarshal(b, &res); err != nil {
		a.log.Warn().Err(err).Str("key", key).Msg("cached value undecodable, treating as miss")
		return Result{}, false
	}
	if res.SuggestedArrows == nil {
		res.SuggestedArrows = [][]string{}
	}
	a.log.Debug().Str("key", key).Msg("cache hit")
	return res, true
}

func (a *Analyzer) compute(ctx context.Context, key, fen string, difficulty int) (Result, error) {
	raw, err := a.engine.Run(ctx, fen, difficulty)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	res, err := Parse(raw)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	b, err := json.Marshal(res)
	if err != nil {
		return Result{}, fmt.Errorf("%w: encode result: %w", ErrAnalysisFailed, err)
	}
	if err := a.store.SetEx(ctx, key, b, a.ttl); err != nil {
		atomic.AddInt64(&a.cacheFails, 1)
		a.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}

	a.log.Info().
		Str("fen", fen).
		Int("difficulty", difficulty).
		Str("best_move", res.BestMove).
		Str("evaluation", res.Evaluation).
		Msg("analyzed position")

	return res, nil
}
