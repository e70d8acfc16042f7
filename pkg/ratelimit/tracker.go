package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for budget tracking.
var (
	remainingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fetch_ratelimit_remaining",
		Help: "Requests remaining in the current upstream rate limit window",
	})

	blocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_ratelimit_blocks_total",
		Help: "Total number of attempts blocked due to a critical upstream budget",
	})

	throttlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_ratelimit_throttles_total",
		Help: "Total number of attempts throttled due to a low upstream budget",
	})
)

// Config holds tracker configuration.
type Config struct {
	// ThrottleDelay is the pause applied to attempts in the warning band.
	ThrottleDelay time.Duration

	// MaxStateAge is how long a recorded budget is trusted. Older state is
	// treated as healthy. Zero disables the check.
	MaxStateAge time.Duration

	// Now returns the current time (default time.Now).
	Now func() time.Time

	// Sleep waits for d or until ctx ends (default: timer-based).
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns the default tracker configuration.
func DefaultConfig() Config {
	return Config{
		ThrottleDelay: 1 * time.Second,
		MaxStateAge:   5 * time.Minute,
		Now:           time.Now,
		Sleep:         sleepContext,
	}
}

// Tracker monitors the upstream budget and gates attempts.
type Tracker struct {
	store  StateStore
	config Config
	logger zerolog.Logger
}

// NewTracker creates a tracker. A nil store keeps state in memory.
func NewTracker(store StateStore, cfg Config, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStateStore()
	}
	def := DefaultConfig()
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = def.Sleep
	}
	if cfg.ThrottleDelay < 0 {
		cfg.ThrottleDelay = 0
	}
	if cfg.MaxStateAge < 0 {
		cfg.MaxStateAge = 0
	}
	return &Tracker{
		store:  store,
		config: cfg,
		logger: logger,
	}
}

// GetState returns the current budget, or a healthy default when nothing
// has been recorded or the recorded state is older than MaxStateAge.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	state, ok, err := t.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rate limit state: %w", err)
	}
	if !ok {
		t.logger.Debug().Msg("No rate limit state recorded, assuming healthy")
		return HealthyState(t.config.Now()), nil
	}

	now := t.config.Now()
	if t.config.MaxStateAge > 0 && state.IsStale(now, t.config.MaxStateAge) {
		t.logger.Debug().
			Time("last_update", state.LastUpdate).
			Int("remaining", state.Remaining).
			Msg("Rate limit state outdated, assuming healthy")
		return HealthyState(now), nil
	}
	return state, nil
}

// UpdateFromHeaders records the budget advertised in response headers.
// Responses without the headers leave the state untouched.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return fmt.Errorf("%s header missing", HeaderReset)
	}

	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	now := t.config.Now()
	state := &State{
		Remaining:  remain,
		ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate: now,
	}
	state.UpdateHealth()

	if err := t.store.Save(ctx, state); err != nil {
		return err
	}

	remainingGauge.Set(float64(remain))

	switch {
	case state.NeedsCriticalBlock(now):
		t.logger.Error().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Upstream budget CRITICAL - attempts will be blocked")
	case state.NeedsThrottling(now):
		t.logger.Warn().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Upstream budget WARNING - attempts will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("Upstream budget updated")
	}

	return nil
}

// ShouldAllowRequest reports whether an attempt may go out now. In the
// warning band it waits ThrottleDelay before allowing the attempt.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, err
	}

	now := t.config.Now()

	if state.NeedsCriticalBlock(now) {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset(now)).
			Msg("Upstream budget critical - blocking attempt")

		blocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling(now) {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("delay", t.config.ThrottleDelay).
			Msg("Upstream budget low - throttling attempt")

		throttlesTotal.Inc()
		if err := t.config.Sleep(ctx, t.config.ThrottleDelay); err != nil {
			return false, err
		}
	}

	return true, nil
}

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
