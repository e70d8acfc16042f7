// Package prefetch warms a fetch client's cache for a set of paths in parallel.
//
// A screen that needs several resources can issue them all up front so the
// later reads are fresh cache hits. Requests run through an errgroup limited
// to MaxConcurrency; each path gets its own timeout covering the whole
// retry sequence.
//
// Example usage:
//
//	w := prefetch.NewWarmer(apiClient, prefetch.DefaultConfig())
//	results, err := w.Warm(ctx, []string{"/users/me", "/flags", "/inbox"})
//
// The warmer:
//   - Deduplicates paths before issuing requests
//   - Never retries on its own (the client already does)
//   - Collects every Response, including failures and stale fallbacks
//   - Aborts the batch only on a configuration error
package prefetch
