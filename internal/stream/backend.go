package stream

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Backend persists encoded values for the Store. Keys are encoded paths and
// values are JSON documents; retractions are kept as the JSON literal null.
type Backend interface {
	Put(ctx context.Context, key string, value []byte) error
	// Scan calls fn for every key with the given prefix in ascending key order.
	Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error
	Close() error
}

// MemoryBackend keeps everything in a map. Used by tests and the memory driver.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

// Put implements Backend.
func (m *MemoryBackend) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Scan implements Backend.
func (m *MemoryBackend) Scan(ctx context.Context, prefix string, fn func(string, []byte) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = m.data[k]
	}
	m.mu.RUnlock()

	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, values[i]); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	return nil
}
