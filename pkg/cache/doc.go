// Package cache provides the in-memory response cache used by the fetch client.
//
// Every entry carries two deadlines computed from its write time:
//
//   - ExpiresAt ends the freshness window. Before it the client answers from
//     cache without touching the network.
//   - StaleUntil ends the stale window. Before it the client may still serve the
//     value when every network attempt has failed.
//
// # Basic Usage
//
//	store := cache.NewStore[[]byte]()
//
//	key := cache.Key{
//		URL:           "https://api.example.com/v1/flags",
//		Authorization: "Bearer abc",
//	}.String()
//
//	store.Set(key, body, time.Now(), policy.DefaultCachePolicy())
//
//	if entry, ok := store.Get(key); ok && entry.IsFresh(time.Now()) {
//		// serve entry.Value
//	}
//
// # Lifecycle
//
// A Store lives as long as the client that owns it. It is never persisted and
// never shared between processes. Entries past their stale window are inert
// but not evicted; Clear empties the store (mostly useful for test isolation).
//
// # Metrics
//
//   - fetch_cache_hits_total{kind="fresh"|"stale"} - Cache hits
//   - fetch_cache_misses_total - Cache misses
//   - fetch_cache_writes_total - Cache writes
//   - fetch_cache_entries - Entries currently held
//
// Hits and misses are recorded by the client, which owns the freshness decision.
package cache
