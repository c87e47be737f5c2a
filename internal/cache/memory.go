package cache

import (
	"context"
	"time"
)

// MemoryStore is a process-local Store backed by two LRU caches, one for
// serialized values and one for counters.
type MemoryStore struct {
	values   *LRUCache[[]byte]
	counters *LRUCache[int64]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store bounded to maxEntries per namespace.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		values:   NewLRUCache[[]byte](maxEntries, time.Hour),
		counters: NewLRUCache[int64](maxEntries, time.Hour),
	}
}

// WithClock replaces the time source of both caches. Intended for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.values.WithClock(now)
	s.counters.WithClock(now)
	return s
}

// Register adds both caches to a cleanup manager.
func (s *MemoryStore) Register(m *Manager) {
	m.Register(s.values)
	m.Register(s.counters)
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.values.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.values.SetWithTTL(key, append([]byte(nil), value...), ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.values.Delete(key)
	s.counters.Delete(key)
	return nil
}

func (s *MemoryStore) IncrementAndExpire(_ context.Context, key string, ttl time.Duration) (int64, error) {
	return s.counters.Upsert(key, ttl, func(old int64, _ bool) int64 {
		return old + 1
	}), nil
}

// TTL reports the remaining lifetime of a counter.
func (s *MemoryStore) TTL(key string) (time.Duration, bool) {
	return s.counters.TTL(key)
}

// Size returns the number of live values and counters.
func (s *MemoryStore) Size() int {
	return s.values.Size() + s.counters.Size()
}
