// Package config loads service configuration from defaults, an optional YAML
// file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Addr   string       `yaml:"addr"`
	Log    LogConfig    `yaml:"log"`
	Engine EngineConfig `yaml:"engine"`
	Cache  CacheConfig  `yaml:"cache"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

type EngineConfig struct {
	Path        string        `yaml:"path"`
	Args        []string      `yaml:"args"`
	Depth       int           `yaml:"depth"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxSessions int           `yaml:"max_sessions"`
}

type CacheConfig struct {
	Backend    string        `yaml:"backend"` // redis or memory
	RedisURL   string        `yaml:"redis_url"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"` // memory backend only
	Snapshot   string        `yaml:"snapshot"`    // memory backend only
}

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	return Config{
		Addr: ":3001",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Engine: EngineConfig{
			Path:        "stockfish",
			Depth:       16,
			Timeout:     30 * time.Second,
			MaxSessions: runtime.NumCPU(),
		},
		Cache: CacheConfig{
			Backend:    BackendRedis,
			RedisURL:   "redis://redis:6379",
			TTL:        time.Hour,
			MaxEntries: 100000,
		},
	}
}

// Load returns Default() overlaid with the YAML file at path (if non-empty)
// and then with environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from STOCKFISH_PATH, REDIS_URL and LISTEN_ADDR.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("STOCKFISH_PATH"); v != "" {
		c.Engine.Path = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Cache.RedisURL = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Addr = v
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.Engine.Path == "" {
		errs = append(errs, errors.New("engine.path is required"))
	}
	if c.Engine.Depth <= 0 {
		errs = append(errs, fmt.Errorf("engine.depth must be positive, got %d", c.Engine.Depth))
	}
	if c.Engine.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.timeout must be positive, got %s", c.Engine.Timeout))
	}
	if c.Engine.MaxSessions <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_sessions must be positive, got %d", c.Engine.MaxSessions))
	}
	switch c.Cache.Backend {
	case BackendRedis:
		if c.Cache.RedisURL == "" {
			errs = append(errs, errors.New("cache.redis_url is required for the redis backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be %q or %q, got %q", BackendRedis, BackendMemory, c.Cache.Backend))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL))
	}
	return errors.Join(errs...)
}
