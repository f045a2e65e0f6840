package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a Redis server.
type Redis struct {
	client *redis.Client

	hits   uint64
	misses uint64
	errors uint64
}

// NewRedis connects to the server at url (redis://host:port/db). The
// connection is lazy; use Ping to check reachability.
func NewRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		atomic.AddUint64(&r.misses, 1)
		return nil, false, nil
	}
	if err != nil {
		atomic.AddUint64(&r.errors, 1)
		return nil, false, fmt.Errorf("%w: get: %v", ErrCacheUnavailable, err)
	}
	atomic.AddUint64(&r.hits, 1)
	return b, true, nil
}

// SetEx implements Store.
func (r *Redis) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		atomic.AddUint64(&r.errors, 1)
		return fmt.Errorf("%w: set: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Ping implements Store.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Stats implements Store.
func (r *Redis) Stats() Stats {
	return Stats{
		Backend: "redis",
		Hits:    atomic.LoadUint64(&r.hits),
		Misses:  atomic.LoadUint64(&r.misses),
		Errors:  atomic.LoadUint64(&r.errors),
		Entries: -1,
	}
}

// Close implements Store.
func (r *Redis) Close() error {
	return r.client.Close()
}
