package cache

import (
	"sync"
	"time"

	"github.com/Sternrassler/resilient-fetch/pkg/policy"
)

// Store is a volatile, in-memory response cache.
//
// Entries are never evicted once their stale window has elapsed; they stay
// until overwritten or Clear is called. Concurrent writers to the same key
// are not coordinated: the last Set wins.
type Store[V any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[V]
}

// NewStore creates an empty store.
func NewStore[V any]() *Store[V] {
	return &Store[V]{
		entries: make(map[string]Entry[V]),
	}
}

// Get returns the entry stored under key, whatever its age.
// Freshness is decided by the caller against its own clock.
func (s *Store[V]) Get(key string) (Entry[V], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	return entry, ok
}

// Set stores value under key, fully replacing any previous entry. Both
// deadlines are computed from writtenAt.
func (s *Store[V]) Set(key string, value V, writtenAt time.Time, p policy.CachePolicy) {
	entry := Entry[V]{
		Value:      value,
		CachedAt:   writtenAt,
		ExpiresAt:  writtenAt.Add(p.TTL),
		StaleUntil: writtenAt.Add(p.StaleIfError),
	}

	s.mu.Lock()
	_, existed := s.entries[key]
	s.entries[key] = entry
	s.mu.Unlock()

	CacheWrites.Inc()
	if !existed {
		CacheEntries.Inc()
	}
}

// Clear removes every entry.
func (s *Store[V]) Clear() {
	s.mu.Lock()
	n := len(s.entries)
	s.entries = make(map[string]Entry[V])
	s.mu.Unlock()

	CacheEntries.Sub(float64(n))
}

// Len returns the number of entries, including ones past their stale window.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
