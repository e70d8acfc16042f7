package cache

import "time"

// Entry is a cached value with its two time horizons.
type Entry[V any] struct {
	// Value is the cached payload.
	Value V

	// CachedAt is the write time the deadlines were computed from.
	CachedAt time.Time

	// ExpiresAt ends the freshness window.
	ExpiresAt time.Time

	// StaleUntil ends the window in which the value may stand in for a
	// failed fetch.
	StaleUntil time.Time
}

// IsFresh reports whether now is still inside the freshness window.
func (e Entry[V]) IsFresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// IsStaleUsable reports whether the value may still be served as an error
// fallback at now.
func (e Entry[V]) IsStaleUsable(now time.Time) bool {
	return now.Before(e.StaleUntil)
}

// TTL returns the time left in the freshness window at now.
// Returns 0 if already expired.
func (e Entry[V]) TTL(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
