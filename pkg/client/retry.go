package client

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/resilient-fetch/pkg/logging"
	"github.com/Sternrassler/resilient-fetch/pkg/policy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fetch_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// SleepFunc waits for d, returning early with ctx.Err() if ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// sleepContext is the default SleepFunc.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryWithBackoff runs fn for attempt indices 0..p.MaxRetries, strictly one
// after another. It stops on the first nil error, on a non-retryable error
// (returned as is), or after the last allowed attempt. Between attempts it
// waits policy.ComputeRetryDelay(attempt+1, p); it never waits after the
// final attempt.
func retryWithBackoff(ctx context.Context, p policy.RetryPolicy, sleep SleepFunc, logger zerolog.Logger, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		err := fn(attempt)
		if err == nil {
			if attempt > 0 {
				logging.Attempt(logger.Info(), attempt, "", 0).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		errClass := errorClassOf(err)

		if !isRetryable(err) {
			return err
		}

		if attempt == p.MaxRetries {
			break
		}

		backoff := policy.ComputeRetryDelay(attempt+1, p)

		retriesTotal.WithLabelValues(string(errClass)).Inc()
		retryBackoffSeconds.WithLabelValues(string(errClass)).Observe(backoff.Seconds())

		logging.Attempt(logger.Warn().Err(err), attempt, string(errClass), backoff).
			Msg("Retrying request after backoff")

		if err := sleep(ctx, backoff); err != nil {
			logging.Attempt(logger.Warn(), attempt, string(errClass), 0).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w (last error: %w)", ErrContextCancelled, err, lastErr)
		}
	}

	errClass := errorClassOf(lastErr)
	retryExhaustedTotal.WithLabelValues(string(errClass)).Inc()
	logger.Warn().
		Str(logging.FieldErrorClass, string(errClass)).
		Int("max_attempts", p.MaxRetries+1).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, p.MaxRetries+1, lastErr)
}
