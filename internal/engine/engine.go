// Package engine runs one external UCI engine process per analysis request.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrEngineUnavailable is returned when the process cannot be started or
	// stops before reporting a best move.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrEngineTimeout is returned when a session exceeds Config.Timeout.
	ErrEngineTimeout = errors.New("engine timeout")
)

// Config configures a Runner.
type Config struct {
	Path        string
	Args        []string
	Logger      zerolog.Logger
	Depth       int           // search depth sent with "go depth"
	Timeout     time.Duration // per session, including process start
	MaxSessions int           // concurrent engine processes
}

// Runner starts engine sessions, at most MaxSessions at a time. Requests
// beyond the limit wait in arrival order.
type Runner struct {
	cfg Config
	log zerolog.Logger
	sem *semaphore.Weighted

	active   int64
	waiting  int64
	started  int64
	failures int64
	timeouts int64

	// Probe results are shared for probeTTL
	probes   singleflight.Group
	probeMu  sync.Mutex
	probeAt  time.Time
	probeErr error
	probeTTL time.Duration
}

// NewRunner creates a runner, filling defaults for zero fields.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("engine path required")
	}
	if cfg.Depth == 0 {
		cfg.Depth = 16
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = runtime.NumCPU()
	}

	return &Runner{
		cfg:      cfg,
		log:      cfg.Logger,
		sem:      semaphore.NewWeighted(int64(cfg.MaxSessions)),
		probeTTL: defaultProbeTTL,
	}, nil
}

// Status is a snapshot of runner counters.
type Status struct {
	Path           string `json:"path"`
	Depth          int    `json:"depth"`
	MaxSessions    int    `json:"max_sessions"`
	ActiveSessions int64  `json:"active_sessions"`
	Waiting        int64  `json:"waiting"`
	Started        int64  `json:"started"`
	Failures       int64  `json:"failures"`
	Timeouts       int64  `json:"timeouts"`
}

// GetStatus returns the current runner status.
func (r *Runner) GetStatus() Status {
	return Status{
		Path:           r.cfg.Path,
		Depth:          r.cfg.Depth,
		MaxSessions:    r.cfg.MaxSessions,
		ActiveSessions: atomic.LoadInt64(&r.active),
		Waiting:        atomic.LoadInt64(&r.waiting),
		Started:        atomic.LoadInt64(&r.started),
		Failures:       atomic.LoadInt64(&r.failures),
		Timeouts:       atomic.LoadInt64(&r.timeouts),
	}
}

// Run analyses fen at the given skill level in a fresh engine process and
// returns everything the engine printed up to and including the bestmove
// line. The process is killed before Run returns.
func (r *Runner) Run(ctx context.Context, fen string, skill int) (string, error) {
	atomic.AddInt64(&r.waiting, 1)
	err := r.sem.Acquire(ctx, 1)
	atomic.AddInt64(&r.waiting, -1)
	if err != nil {
		return "", err
	}
	defer r.sem.Release(1)

	atomic.AddInt64(&r.active, 1)
	defer atomic.AddInt64(&r.active, -1)

	sctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	s, err := startSession(sctx, r.cfg.Path, r.cfg.Args, r.log)
	if err != nil {
		atomic.AddInt64(&r.failures, 1)
		r.log.Warn().Err(err).Str("path", r.cfg.Path).Msg("engine start failed")
		return "", fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer s.close()
	atomic.AddInt64(&r.started, 1)

	log := r.log.With().Str("session", s.id).Int("skill", skill).Logger()
	log.Debug().Str("fen", fen).Msg("engine session started")

	raw, err := s.analyze(sctx, fen, skill, r.cfg.Depth)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			// Caller went away; not an engine fault
			err = ctx.Err()
		case errors.Is(sctx.Err(), context.DeadlineExceeded):
			atomic.AddInt64(&r.timeouts, 1)
			err = fmt.Errorf("%w after %s", ErrEngineTimeout, r.cfg.Timeout)
		default:
			atomic.AddInt64(&r.failures, 1)
			err = fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
		log.Warn().Err(err).Str("stderr", s.stderrTail()).Dur("dur", time.Since(start)).Msg("engine session failed")
		return "", err
	}

	log.Debug().Dur("dur", time.Since(start)).Int("bytes", len(raw)).Msg("engine session complete")
	return raw, nil
}
