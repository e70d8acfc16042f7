package prefetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/resilient-fetch/pkg/client"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Config holds warmer configuration.
type Config struct {
	// MaxConcurrency is the maximum number of calls in flight.
	MaxConcurrency int

	// Timeout bounds each path, retries and backoff included.
	Timeout time.Duration

	// Options are passed to every call.
	Options *client.Options
}

// DefaultConfig returns the default warmer configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
		Timeout:        15 * time.Second,
	}
}

// Getter is the part of the fetch client the warmer needs.
type Getter interface {
	Get(ctx context.Context, pathOrURL string, opts *client.Options) (*client.Response, error)
}

// Summary counts the outcomes of one Warm call.
type Summary struct {
	Network int
	Fresh   int
	Stale   int
	Failed  int
}

// Summarize counts the outcomes in results.
func Summarize(results map[string]*client.Response) Summary {
	var s Summary
	for _, r := range results {
		switch {
		case !r.OK:
			s.Failed++
		case r.Stale:
			s.Stale++
		case r.FromCache:
			s.Fresh++
		default:
			s.Network++
		}
	}
	return s
}

// Warmer issues Get calls for many paths with bounded parallelism.
type Warmer struct {
	getter Getter
	config Config
}

// NewWarmer creates a new warmer.
func NewWarmer(getter Getter, config Config) *Warmer {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &Warmer{
		getter: getter,
		config: config,
	}
}

// Warm is a shorthand for NewWarmer(getter, config).Warm(ctx, paths).
func Warm(ctx context.Context, getter Getter, paths []string, config Config) (map[string]*client.Response, error) {
	return NewWarmer(getter, config).Warm(ctx, paths)
}

// Warm fetches every path and returns the responses keyed by path.
//
// Failed responses are part of the result, not errors. The only error is a
// configuration error from the client, which cancels the remaining calls
// and is returned together with whatever finished before it.
func (w *Warmer) Warm(ctx context.Context, paths []string) (map[string]*client.Response, error) {
	start := time.Now()
	unique := dedupe(paths)

	results := make(map[string]*client.Response, len(unique))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.MaxConcurrency)

	for _, path := range unique {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			pathCtx, cancel := context.WithTimeout(gctx, w.config.Timeout)
			resp, err := w.getter.Get(pathCtx, path, w.config.Options)
			cancel()

			if err != nil {
				log.Error().
					Err(err).
					Str("path", path).
					Msg("Warm-up aborted by configuration error")
				return fmt.Errorf("warm %s: %w", path, err)
			}

			if !resp.OK {
				log.Warn().
					Str("path", path).
					Int("status", resp.Status).
					Str("error", resp.Error).
					Msg("Warm-up fetch failed")
			}

			mu.Lock()
			results[path] = resp
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()

	summary := Summarize(results)
	log.Info().
		Int("paths", len(unique)).
		Int("network", summary.Network).
		Int("fresh", summary.Fresh).
		Int("stale", summary.Stale).
		Int("failed", summary.Failed).
		Dur("duration", time.Since(start)).
		Msg("Warm-up complete")

	return results, err
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
