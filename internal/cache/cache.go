// Package cache provides the key-value stores that back analysis results.
//
// Stores are best-effort: callers treat any read error as a miss and any
// write error as non-fatal.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheUnavailable wraps every backend failure.
var ErrCacheUnavailable = errors.New("cache unavailable")

// Store is a key-value store with per-entry expiry.
type Store interface {
	// Get returns the value for key. ok is false on a miss or an expired entry.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// SetEx stores value under key for ttl.
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	Stats() Stats
	Close() error
}

// Stats holds counters for a store. Entries is -1 when the backend cannot
// report it cheaply.
type Stats struct {
	Backend string `json:"backend"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Errors  uint64 `json:"errors"`
	Entries int    `json:"entries"`
}
