// Package policy holds the retry and cache policies used by the fetch client,
// together with the pure functions that compute backoff delays and retry
// eligibility.
package policy

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrInvalidPolicy is returned by Validate when a policy violates its invariants.
var ErrInvalidPolicy = errors.New("invalid policy")

// RetryPolicy controls how many times a request is retried and how long
// to wait between attempts.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// RetryableStatusCodes lists the HTTP statuses worth another attempt.
	RetryableStatusCodes []int
}

// CachePolicy controls how long a successful response is served from cache.
type CachePolicy struct {
	// TTL is the freshness window. Within it no network call is made.
	TTL time.Duration

	// StaleIfError is the window, measured from the same write time as TTL,
	// during which a cached value may be served when the network path fails.
	StaleIfError time.Duration
}

// DefaultRetryPolicy returns the fixed retry defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:           2,
		BaseDelay:            250 * time.Millisecond,
		MaxDelay:             2 * time.Second,
		RetryableStatusCodes: []int{408, 425, 429, 500, 502, 503, 504},
	}
}

// DefaultCachePolicy returns the fixed cache defaults.
func DefaultCachePolicy() CachePolicy {
	return CachePolicy{
		TTL:          30 * time.Second,
		StaleIfError: 5 * time.Minute,
	}
}

// RetryOverrides is a partial RetryPolicy. Nil fields inherit from the base.
// A non-nil RetryableStatusCodes (even an empty one) replaces the base set.
type RetryOverrides struct {
	MaxRetries           *int
	BaseDelay            *time.Duration
	MaxDelay             *time.Duration
	RetryableStatusCodes []int
}

// CacheOverrides is a partial CachePolicy. Nil fields inherit from the base.
type CacheOverrides struct {
	TTL          *time.Duration
	StaleIfError *time.Duration
}

// Int returns a pointer to v, for use in overrides.
func Int(v int) *int { return &v }

// Duration returns a pointer to d, for use in overrides.
func Duration(d time.Duration) *time.Duration { return &d }

// MergeRetryPolicy overlays the given overrides onto DefaultRetryPolicy.
func MergeRetryPolicy(o RetryOverrides) RetryPolicy {
	return DefaultRetryPolicy().Apply(o)
}

// MergeCachePolicy overlays the given overrides onto DefaultCachePolicy.
func MergeCachePolicy(o CacheOverrides) CachePolicy {
	return DefaultCachePolicy().Apply(o)
}

// Apply returns a copy of p with every set field of o overlaid.
func (p RetryPolicy) Apply(o RetryOverrides) RetryPolicy {
	if o.MaxRetries != nil {
		p.MaxRetries = *o.MaxRetries
	}
	if o.BaseDelay != nil {
		p.BaseDelay = *o.BaseDelay
	}
	if o.MaxDelay != nil {
		p.MaxDelay = *o.MaxDelay
	}
	if o.RetryableStatusCodes != nil {
		p.RetryableStatusCodes = slices.Clone(o.RetryableStatusCodes)
	} else {
		p.RetryableStatusCodes = slices.Clone(p.RetryableStatusCodes)
	}
	return p
}

// Apply returns a copy of p with every set field of o overlaid.
func (p CachePolicy) Apply(o CacheOverrides) CachePolicy {
	if o.TTL != nil {
		p.TTL = *o.TTL
	}
	if o.StaleIfError != nil {
		p.StaleIfError = *o.StaleIfError
	}
	return p
}

// Validate checks that the policy can drive a retry loop.
func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxRetries < 0:
		return fmt.Errorf("%w: max retries must be >= 0 (got %d)", ErrInvalidPolicy, p.MaxRetries)
	case p.BaseDelay < 0:
		return fmt.Errorf("%w: base delay must be >= 0 (got %s)", ErrInvalidPolicy, p.BaseDelay)
	case p.BaseDelay > p.MaxDelay:
		return fmt.Errorf("%w: base delay %s exceeds max delay %s", ErrInvalidPolicy, p.BaseDelay, p.MaxDelay)
	}
	return nil
}

// ShouldRetryStatus reports whether status is in the retryable set.
func ShouldRetryStatus(status int, retryable []int) bool {
	return slices.Contains(retryable, status)
}

// ComputeRetryDelay returns the wait before retry number attempt (1 for the
// first retry): min(BaseDelay * 2^(attempt-1), MaxDelay). Attempts <= 0 use
// exponent 0. It runs in constant time for any attempt.
func ComputeRetryDelay(attempt int, p RetryPolicy) time.Duration {
	if attempt <= 1 || p.BaseDelay <= 0 {
		return min(p.BaseDelay, p.MaxDelay)
	}

	shift := attempt - 1
	if shift >= 63 || p.BaseDelay > p.MaxDelay>>shift {
		return p.MaxDelay
	}
	return p.BaseDelay << shift
}
