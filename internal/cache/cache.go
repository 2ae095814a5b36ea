// Package cache stores provider lookup results so that repeated captures from
// the same address or access point do not hit external services again.
//
// Two implementations exist: Redis, shared between processes, and Memory, an
// in-process map used when no Redis address is configured.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	// Get returns the value stored under key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Close releases resources held by the cache.
	Close() error
}

// DefaultMaxEntries bounds a Memory cache created without WithMaxEntries.
const DefaultMaxEntries = 10000

type memoryEntry struct {
	value   []byte
	expires time.Time
	added   uint64
}

// Memory is an in-process Cache holding at most a fixed number of entries.
// Expired entries are dropped when the cache is full; if it is still full the
// entry that expires first (or, without expiry, the oldest) is evicted.
// The zero value is not usable; use NewMemory.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	seq        uint64
	now        func() time.Time
}

var _ Cache = (*Memory)(nil)

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithMaxEntries sets the number of entries kept. Values below one are ignored.
func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

// NewMemory creates an empty in-process cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries:    make(map[string]memoryEntry),
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Len returns the number of entries held, including expired ones not yet dropped.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		return nil, ErrMiss
	}
	return append([]byte(nil), e.value...), nil
}

// Set implements Cache.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, ok := m.entries[key]; !ok && len(m.entries) >= m.maxEntries {
		m.evict(now)
	}

	m.seq++
	e := memoryEntry{value: append([]byte(nil), value...), added: m.seq}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	m.entries[key] = e
	return nil
}

// evict makes room for one entry. Callers hold m.mu.
func (m *Memory) evict(now time.Time) {
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
		}
	}
	if len(m.entries) < m.maxEntries {
		return
	}

	var (
		victim string
		best   memoryEntry
		found  bool
	)
	for k, e := range m.entries {
		if !found || e.evictsBefore(best) {
			victim, best, found = k, e, true
		}
	}
	if found {
		delete(m.entries, victim)
	}
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// evictsBefore orders entries by expiry, entries without expiry last,
// then by insertion.
func (e memoryEntry) evictsBefore(o memoryEntry) bool {
	switch {
	case e.expires.IsZero() != o.expires.IsZero():
		return !e.expires.IsZero()
	case !e.expires.Equal(o.expires):
		return e.expires.Before(o.expires)
	default:
		return e.added < o.added
	}
}

// Close implements Cache.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
	return nil
}
