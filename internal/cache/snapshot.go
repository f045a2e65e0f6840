package cache

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

// snapshotRecord is one line of a snapshot file.
type snapshotRecord struct {
	Key       string `json:"k"`
	Value     []byte `json:"v"`
	ExpiresAt int64  `json:"e"` // unix nanoseconds
}

// SaveSnapshot writes all unexpired entries to path as zstd-compressed JSON
// lines. The file is written to a temp name and renamed into place.
func (m *Memory) SaveSnapshot(path string) (int, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	zw, err := zstd.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		return 0, err
	}
	enc := json.NewEncoder(zw)

	now := m.now()
	count := 0
	for _, s := range m.shards {
		s.mu.RLock()
		for _, k := range s.order {
			e, ok := s.items[k]
			if !ok || !now.Before(e.expiresAt) {
				continue
			}
			rec := snapshotRecord{Key: k, Value: e.value, ExpiresAt: e.expiresAt.UnixNano()}
			if err := enc.Encode(&rec); err != nil {
				s.mu.RUnlock()
				zw.Close()
				tmp.Close()
				return count, fmt.Errorf("encode %q: %w", k, err)
			}
			count++
		}
		s.mu.RUnlock()
	}

	if err := zw.Close(); err != nil {
		tmp.Close()
		return count, err
	}
	if err := tmp.Close(); err != nil {
		return count, err
	}
	return count, os.Rename(tmp.Name(), path)
}

// LoadSnapshot restores entries from a file written by SaveSnapshot,
// skipping expired ones. A missing file is not an error.
func (m *Memory) LoadSnapshot(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return 0, err
	}
	defer zr.Close()

	now := m.now()
	count := 0
	dec := json.NewDecoder(bufio.NewReader(zr))
	for {
		var rec snapshotRecord
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			// A truncated tail keeps what was read so far
			return count, fmt.Errorf("decode snapshot after %d entries: %w", count, err)
		}
		expiresAt := time.Unix(0, rec.ExpiresAt)
		if !now.Before(expiresAt) {
			continue
		}
		m.put(rec.Key, rec.Value, expiresAt)
		count++
	}
	return count, nil
}
