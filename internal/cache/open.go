package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Options selects and configures a backend for Open.
type Options struct {
	Backend    string // "redis" or "memory"
	RedisURL   string
	MaxEntries int
	Snapshot   string // memory backend: file restored on Open
}

// Open builds the configured store. For the memory backend the *Memory is
// also returned so the caller can snapshot it on shutdown, and a sweeper
// runs until ctx is done. An unreachable Redis is logged, not fatal.
func Open(ctx context.Context, opts Options, log zerolog.Logger) (Store, *Memory, error) {
	switch opts.Backend {
	case "memory":
		mem := NewMemory(opts.MaxEntries)
		if opts.Snapshot != "" {
			n, err := mem.LoadSnapshot(opts.Snapshot)
			if err != nil {
				log.Warn().Err(err).Str("path", opts.Snapshot).Int("entries", n).Msg("cache snapshot load incomplete")
			} else {
				log.Info().Int("entries", n).Str("path", opts.Snapshot).Msg("cache snapshot loaded")
			}
		}
		go mem.RunSweeper(ctx, time.Minute)
		return mem, mem, nil

	case "redis":
		rc, err := NewRedis(opts.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rc.Ping(pingCtx); err != nil {
			// Best-effort: every request recomputes until Redis comes back
			log.Warn().Err(err).Msg("redis unreachable, continuing without cache hits")
		} else {
			log.Info().Msg("redis cache connected")
		}
		return rc, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}
