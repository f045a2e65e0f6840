package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

const numShards = 64

// Memory is a sharded in-process Store. Entries expire lazily on read and
// during Sweep; each shard evicts its oldest entry (FIFO) when full.
type Memory struct {
	shards      [numShards]*memoryShard
	maxPerShard int
	now         func() time.Time

	hits   uint64
	misses uint64
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

type memoryShard struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	order []string // insertion order for eviction
}

// NewMemory creates a memory store holding roughly maxEntries entries.
func NewMemory(maxEntries int) *Memory {
	maxPerShard := maxEntries / numShards
	if maxPerShard < 16 {
		maxPerShard = 16 // minimum per shard
	}

	m := &Memory{
		maxPerShard: maxPerShard,
		now:         time.Now,
	}
	for i := range m.shards {
		m.shards[i] = &memoryShard{
			items: make(map[string]memoryEntry),
		}
	}
	return m
}

func (m *Memory) shard(key string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%numShards]
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	s := m.shard(key)

	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()

	if !ok || !m.now().Before(e.expiresAt) {
		atomic.AddUint64(&m.misses, 1)
		return nil, false, nil
	}
	atomic.AddUint64(&m.hits, 1)
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// SetEx implements Store.
func (m *Memory) SetEx(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.put(key, value, m.now().Add(ttl))
	return nil
}

func (m *Memory) put(key string, value []byte, expiresAt time.Time) {
	v := make([]byte, len(value))
	copy(v, value)

	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[key]; exists {
		// Update in place, keep its slot in the eviction order
		s.items[key] = memoryEntry{value: v, expiresAt: expiresAt}
		return
	}

	for len(s.items) >= m.maxPerShard && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.items, oldest)
	}

	s.items[key] = memoryEntry{value: v, expiresAt: expiresAt}
	s.order = append(s.order, key)
}

// Sweep drops expired entries and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.now()
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		kept := s.order[:0]
		for _, k := range s.order {
			e, ok := s.items[k]
			if !ok {
				continue
			}
			if !now.Before(e.expiresAt) {
				delete(s.items, k)
				removed++
				continue
			}
			kept = append(kept, k)
		}
		s.order = kept
		s.mu.Unlock()
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Memory) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Ping implements Store.
func (m *Memory) Ping(context.Context) error { return nil }

// Stats implements Store.
func (m *Memory) Stats() Stats {
	size := 0
	for _, s := range m.shards {
		s.mu.RLock()
		size += len(s.items)
		s.mu.RUnlock()
	}
	return Stats{
		Backend: "memory",
		Hits:    atomic.LoadUint64(&m.hits),
		Misses:  atomic.LoadUint64(&m.misses),
		Entries: size,
	}
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
