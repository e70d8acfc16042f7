// Package ratelimit tracks the request budget an upstream API advertises in
// its X-RateLimit-Remaining and X-RateLimit-Reset headers, and gates
// attempts before the budget runs out.
package ratelimit

import (
	"time"
)

// Response headers the tracker reads.
const (
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Redis keys for shared budget state.
const (
	RedisKeyRemaining      = "fetch:rate_limit:remaining"
	RedisKeyResetTimestamp = "fetch:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "fetch:rate_limit:last_update"
)

// Thresholds for gating decisions.
const (
	// ThresholdCritical blocks attempts when the remaining budget falls below it.
	ThresholdCritical = 5

	// ThresholdWarning throttles attempts when the remaining budget falls below it.
	ThresholdWarning = 20

	// ThresholdHealthy marks normal operation at or above it.
	ThresholdHealthy = 50
)

// State is the last known upstream budget.
type State struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was recorded.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= ThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// HealthyState is assumed until the upstream reports otherwise.
func HealthyState(now time.Time) *State {
	return &State{
		Remaining:  100,
		ResetAt:    now.Add(60 * time.Second),
		LastUpdate: now,
		IsHealthy:  true,
	}
}

// IsStale returns true if the state is older than maxAge at now.
func (s *State) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if attempts should be blocked.
// A window that has already reset is never blocking.
func (s *State) NeedsCriticalBlock(now time.Time) bool {
	return s.Remaining < ThresholdCritical && now.Before(s.ResetAt)
}

// NeedsThrottling returns true if attempts should be slowed down.
func (s *State) NeedsThrottling(now time.Time) bool {
	return s.Remaining < ThresholdWarning && now.Before(s.ResetAt) && !s.NeedsCriticalBlock(now)
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *State) TimeUntilReset(now time.Time) time.Duration {
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth updates IsHealthy from Remaining.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}
