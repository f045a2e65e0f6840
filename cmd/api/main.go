package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/artemis-sophia/masterchess-ai/internal/analysis"
	"github.com/artemis-sophia/masterchess-ai/internal/cache"
	"github.com/artemis-sophia/masterchess-ai/internal/config"
	"github.com/artemis-sophia/masterchess-ai/internal/engine"
	"github.com/artemis-sophia/masterchess-ai/internal/httpapi"
	"github.com/artemis-sophia/masterchess-ai/internal/logx"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file (optional)")

		// Server
		addr = flag.String("addr", "", "listen address")

		// Logging
		logLevel  = flag.String("log-level", "", "log level (debug, info, warn, error)")
		logFormat = flag.String("log-format", "", "log format (console, json)")

		// Engine
		stockfishPath = flag.String("stockfish", "", "path to Stockfish executable")
		depth         = flag.Int("depth", 0, "engine search depth")
		timeout       = flag.Duration("engine-timeout", 0, "per-analysis engine timeout")
		maxSessions   = flag.Int("max-sessions", 0, "maximum concurrent engine processes")

		// Cache
		cacheBackend = flag.String("cache", "", "cache backend (redis, memory)")
		redisURL     = flag.String("redis-url", "", "Redis URL")
		snapshot     = flag.String("snapshot", "", "memory cache snapshot file")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logx.NewLogger(logx.Options{})
		bootLog.Fatal().Err(err).Msg("load config")
	}

	// Flags given on the command line win over file and env
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		case "stockfish":
			cfg.Engine.Path = *stockfishPath
		case "depth":
			cfg.Engine.Depth = *depth
		case "engine-timeout":
			cfg.Engine.Timeout = *timeout
		case "max-sessions":
			cfg.Engine.MaxSessions = *maxSessions
		case "cache":
			cfg.Cache.Backend = *cacheBackend
		case "redis-url":
			cfg.Cache.RedisURL = *redisURL
		case "snapshot":
			cfg.Cache.Snapshot = *snapshot
		}
	})

	logger := logx.NewLogger(logx.Options{Format: cfg.Log.Format, Level: cfg.Log.Level})
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, memStore, err := cache.Open(ctx, cache.Options{
		Backend:    cfg.Cache.Backend,
		RedisURL:   cfg.Cache.RedisURL,
		MaxEntries: cfg.Cache.MaxEntries,
		Snapshot:   cfg.Cache.Snapshot,
	}, logger.With().Str("component", "cache").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("open cache")
	}
	defer store.Close()

	runner, err := engine.NewRunner(engine.Config{
		Path:        cfg.Engine.Path,
		Args:        cfg.Engine.Args,
		Logger:      logger.With().Str("component", "engine").Logger(),
		Depth:       cfg.Engine.Depth,
		Timeout:     cfg.Engine.Timeout,
		MaxSessions: cfg.Engine.MaxSessions,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create engine runner")
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := runner.Probe(probeCtx); err != nil {
		// Keep serving; /readyz reports the problem and requests fail with 500
		logger.Warn().Err(err).Str("path", cfg.Engine.Path).Msg("engine probe failed")
	} else {
		logger.Info().Str("path", cfg.Engine.Path).Msg("engine probe ok")
	}
	cancel()

	analyzer, err := analysis.New(analysis.Config{
		Store:  store,
		Engine: runner,
		TTL:    cfg.Cache.TTL,
		Logger: logger.With().Str("component", "analyzer").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create analyzer")
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      httpapi.NewRouter(logger, analyzer, runner, store),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Engine.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Int("depth", cfg.Engine.Depth).
			Int("max_sessions", cfg.Engine.MaxSessions).
			Str("cache", cfg.Cache.Backend).
			Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}

	if memStore != nil && cfg.Cache.Snapshot != "" {
		n, err := memStore.SaveSnapshot(cfg.Cache.Snapshot)
		if err != nil {
			logger.Error().Err(err).Str("path", cfg.Cache.Snapshot).Msg("cache snapshot failed")
		} else {
			logger.Info().Int("entries", n).Str("path", cfg.Cache.Snapshot).Msg("cache snapshot written")
		}
	}

	logger.Info().Msg("shutdown complete")
}
