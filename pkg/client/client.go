// Package client provides the resilient GET client: an in-memory response
// cache, bounded retries with capped exponential backoff, per-attempt
// timeouts, bearer token injection and stale-on-error fallback.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Sternrassler/resilient-fetch/pkg/auth"
	"github.com/Sternrassler/resilient-fetch/pkg/cache"
	"github.com/Sternrassler/resilient-fetch/pkg/logging"
	"github.com/Sternrassler/resilient-fetch/pkg/policy"
	"github.com/Sternrassler/resilient-fetch/pkg/ratelimit"
	"github.com/Sternrassler/resilient-fetch/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_requests_total",
		Help: "Total logical GET calls by outcome",
	}, []string{"outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fetch_request_duration_seconds",
		Help:    "Logical GET call duration in seconds by outcome",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"outcome"})

	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_attempts_total",
		Help: "Total network attempts by result",
	}, []string{"result"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_errors_total",
		Help: "Total failed attempts by class",
	}, []string{"class"})
)

// Outcome labels for fetch_requests_total.
const (
	outcomeFreshHit  = "fresh_hit"
	outcomeNetwork   = "network"
	outcomeStale     = "stale"
	outcomeFailure   = "failure"
	outcomeAuthError = "auth_error"
)

// DefaultTimeout bounds each network attempt unless overridden.
const DefaultTimeout = 10 * time.Second

var absoluteURLPattern = regexp.MustCompile(`(?i)^https?://`)

// IsAbsoluteURL reports whether s names an absolute http(s) URL, which Get
// fetches as-is instead of joining it to the base URL.
func IsAbsoluteURL(s string) bool {
	return absoluteURLPattern.MatchString(s)
}

// Clock provides the current time for cache deadlines.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds the client configuration. Every field is optional.
type Config struct {
	// BaseURL prefixes relative paths.
	BaseURL string

	// Timeout bounds each attempt (default 10s).
	Timeout time.Duration

	// Retry and Cache override the fixed policy defaults for every call.
	Retry policy.RetryOverrides
	Cache policy.CacheOverrides

	// Headers are added to every request after the Accept default.
	Headers http.Header

	// TokenProvider supplies bearer tokens (nil = unauthenticated).
	TokenProvider auth.TokenProvider

	// AllowStaleOnError enables the stale fallback (nil = true).
	AllowStaleOnError *bool

	// HTTPClient performs the attempts (default: a plain http.Client).
	HTTPClient *http.Client

	// RateLimiter optionally gates attempts on the upstream budget.
	RateLimiter *ratelimit.Tracker

	// Clock and Sleep are injectable for tests.
	Clock Clock
	Sleep SleepFunc

	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// Options are per-call overrides layered on top of Config.
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	Retry             policy.RetryOverrides
	Cache             policy.CacheOverrides
	Headers           http.Header
	TokenProvider     auth.TokenProvider
	AllowStaleOnError *bool
}

// Bool returns a pointer to v, for AllowStaleOnError.
func Bool(v bool) *bool { return &v }

// DefaultConfig returns a configuration for the given base URL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: DefaultTimeout,
	}
}

// Client is the resilient GET client. It owns its response cache; separate
// clients never share cached values.
type Client struct {
	executor    *transport.Executor
	httpClient  *http.Client
	store       *cache.Store[transport.Body]
	rateLimiter *ratelimit.Tracker
	clock       Clock
	sleep       SleepFunc
	config      Config
	retry       policy.RetryPolicy
	cachePolicy policy.CachePolicy
	logger      zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.BaseURL != "" {
		if !absoluteURLPattern.MatchString(cfg.BaseURL) {
			return nil, fmt.Errorf("base url must be absolute http(s) (got %q)", cfg.BaseURL)
		}
		if _, err := url.Parse(cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
	}

	retry := policy.MergeRetryPolicy(cfg.Retry)
	if err := retry.Validate(); err != nil {
		return nil, fmt.Errorf("retry policy: %w", err)
	}

	logger := logging.NewLogger("fetch-client")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &Client{
		executor:    transport.NewExecutor(httpClient, logger),
		httpClient:  httpClient,
		store:       cache.NewStore[transport.Body](),
		rateLimiter: cfg.RateLimiter,
		clock:       clock,
		sleep:       sleep,
		config:      cfg,
		retry:       retry,
		cachePolicy: policy.MergeCachePolicy(cfg.Cache),
		logger:      logger,
	}, nil
}

// request is a fully resolved logical call.
type request struct {
	url           string
	timeout       time.Duration
	retry         policy.RetryPolicy
	cache         policy.CachePolicy
	allowStale    bool
	tokenProvider auth.TokenProvider
	headers       http.Header
}

// resolve merges options and resolves the URL. It performs no I/O, so
// configuration errors surface before anything asynchronous happens.
func (c *Client) resolve(pathOrURL string, opts *Options) (*request, error) {
	retry := c.retry.Apply(opts.Retry)
	if err := retry.Validate(); err != nil {
		return nil, &ConfigError{Field: "Retry", Err: err}
	}

	timeout := c.config.Timeout
	if opts.Timeout < 0 {
		return nil, &ConfigError{Field: "Timeout", Err: fmt.Errorf("must be >= 0 (got %s)", opts.Timeout)}
	}
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	allowStale := true
	if c.config.AllowStaleOnError != nil {
		allowStale = *c.config.AllowStaleOnError
	}
	if opts.AllowStaleOnError != nil {
		allowStale = *opts.AllowStaleOnError
	}

	base := c.config.BaseURL
	if opts.BaseURL != "" {
		base = opts.BaseURL
	}
	absURL, err := resolveURL(base, pathOrURL)
	if err != nil {
		return nil, err
	}

	tokenProvider := c.config.TokenProvider
	if opts.TokenProvider != nil {
		tokenProvider = opts.TokenProvider
	}

	headers := http.Header{}
	headers.Set("Accept", "application/json")
	mergeHeaders(headers, c.config.Headers)
	mergeHeaders(headers, opts.Headers)

	return &request{
		url:           absURL,
		timeout:       timeout,
		retry:         retry,
		cache:         c.cachePolicy.Apply(opts.Cache),
		allowStale:    allowStale,
		tokenProvider: tokenProvider,
		headers:       headers,
	}, nil
}

// resolveURL returns pathOrURL unchanged when it is an absolute http(s) URL,
// otherwise joins it to base with exactly one separating slash.
func resolveURL(base, pathOrURL string) (string, error) {
	if absoluteURLPattern.MatchString(pathOrURL) {
		return pathOrURL, nil
	}
	if base == "" {
		return "", &ConfigError{Field: "BaseURL", Err: ErrMissingBaseURL}
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(pathOrURL, "/"), nil
}

// mergeHeaders copies src into dst, replacing existing values per key.
func mergeHeaders(dst, src http.Header) {
	for key, values := range src {
		dst.Del(key)
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

// Get fetches pathOrURL.
//
// The returned error is non-nil only for configuration problems (relative
// path without base URL, invalid policy or timeout). Every network or cache
// outcome is reported through Response: a fresh cache hit, a network
// success, a stale fallback after all attempts failed, or a failure.
//
// Concurrent calls for the same key are not coalesced; each miss runs its
// own attempt sequence and the last successful writer wins the cache slot.
func (c *Client) Get(ctx context.Context, pathOrURL string, opts *Options) (*Response, error) {
	if opts == nil {
		opts = &Options{}
	}

	req, err := c.resolve(pathOrURL, opts)
	if err != nil {
		c.logger.Error().Err(err).Str("path", pathOrURL).Msg("Invalid request configuration")
		return nil, err
	}

	start := time.Now()
	outcome := outcomeFailure
	defer func() {
		requestsTotal.WithLabelValues(outcome).Inc()
		requestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	authorization, err := auth.AuthorizationHeader(ctx, req.tokenProvider)
	if err != nil {
		outcome = outcomeAuthError
		logging.ForRequest(c.logger, req.url, "").Error().Err(err).Msg("Token provider failed")
		return failure(0, fmt.Sprintf("auth token: %v", err)), nil
	}
	if authorization != "" {
		req.headers.Set("Authorization", authorization)
	}

	key := cache.Key{URL: req.url, Authorization: req.headers.Get("Authorization")}.String()
	logger := logging.ForRequest(c.logger, req.url, key)

	if entry, ok := c.store.Get(key); ok && entry.IsFresh(c.clock.Now()) {
		outcome = outcomeFreshHit
		cache.CacheHits.WithLabelValues("fresh").Inc()
		logger.Debug().
			Dur("ttl", entry.TTL(c.clock.Now())).
			Msg("Fresh cache hit")
		return fromCache(entry.Value, false), nil
	}
	cache.CacheMisses.Inc()

	body, status, fetchErr := c.fetch(ctx, req, logger)
	if fetchErr == nil {
		outcome = outcomeNetwork
		c.store.Set(key, body, c.clock.Now(), req.cache)
		logger.Debug().
			Int(logging.FieldStatus, status).
			Dur("ttl", req.cache.TTL).
			Msg("Cached response")
		out := body.Clone()
		return &Response{
			OK:     true,
			Status: status,
			Data:   out.Value,
			Body:   out.Raw,
			Kind:   out.Kind,
		}, nil
	}

	if req.allowStale {
		if entry, ok := c.store.Get(key); ok && entry.IsStaleUsable(c.clock.Now()) {
			outcome = outcomeStale
			cache.CacheHits.WithLabelValues("stale").Inc()
			logger.Warn().
				Err(fetchErr).
				Bool(logging.FieldStale, true).
				Msg("Serving stale cache after failed fetch")
			return fromCache(entry.Value, true), nil
		}
	}

	lastStatus := status
	message := describeFailure(fetchErr)
	logger.Error().
		Err(fetchErr).
		Int(logging.FieldStatus, lastStatus).
		Msg("Request failed")

	return failure(lastStatus, message), nil
}

// fetch drives the attempt loop for req. On success it returns the decoded
// body and its status; on failure the status is the last HTTP status seen
// (0 if every attempt failed at the transport layer).
func (c *Client) fetch(ctx context.Context, req *request, logger zerolog.Logger) (transport.Body, int, error) {
	var body transport.Body
	var status int

	err := retryWithBackoff(ctx, req.retry, c.sleep, logger, func(attempt int) error {
		b, s, err := c.attempt(ctx, req, logger)
		if err != nil {
			if s > 0 {
				status = s
			}
			errorsTotal.WithLabelValues(string(errorClassOf(err))).Inc()
			logging.Attempt(logger.Debug().Err(err), attempt, string(errorClassOf(err)), 0).
				Msg("Attempt failed")
			return err
		}
		body, status = b, s
		return nil
	})

	return body, status, err
}

// attempt performs one network attempt and classifies its result.
func (c *Client) attempt(ctx context.Context, req *request, logger zerolog.Logger) (transport.Body, int, error) {
	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			attemptsTotal.WithLabelValues("transport_error").Inc()
			return transport.Body{}, 0, &AttemptError{ErrorClass: ErrorClassNetwork, Retryable: true, Err: err}
		case err != nil:
			logger.Warn().Err(err).Msg("Rate limit check failed, allowing attempt")
		case !allowed:
			attemptsTotal.WithLabelValues("blocked").Inc()
			return transport.Body{}, 0, &AttemptError{ErrorClass: ErrorClassRateLimit, Retryable: true, Err: ErrRateLimited}
		}
	}

	raw, err := c.executor.Execute(ctx, req.url, req.headers, req.timeout)
	if err != nil {
		attemptsTotal.WithLabelValues("transport_error").Inc()
		return transport.Body{}, 0, &AttemptError{ErrorClass: ErrorClassNetwork, Retryable: true, Err: err}
	}

	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromHeaders(ctx, raw.Header); err != nil {
			logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	if raw.StatusCode < 200 || raw.StatusCode >= 300 {
		raw.Body.Close()
		attemptsTotal.WithLabelValues("http_error").Inc()
		return transport.Body{}, raw.StatusCode, &AttemptError{
			Status:     raw.StatusCode,
			ErrorClass: classifyStatus(raw.StatusCode),
			Retryable:  policy.ShouldRetryStatus(raw.StatusCode, req.retry.RetryableStatusCodes),
			Err:        fmt.Errorf("unexpected status %d", raw.StatusCode),
		}
	}

	data, err := raw.ReadBody(req.url)
	if err != nil {
		attemptsTotal.WithLabelValues("transport_error").Inc()
		return transport.Body{}, 0, &AttemptError{ErrorClass: ErrorClassNetwork, Retryable: true, Err: err}
	}

	body := transport.Decode(raw.StatusCode, raw.Header.Get("Content-Type"), data)
	if body.Degraded {
		logger.Debug().Msg("JSON content type with unparseable body, kept as text")
	}

	attemptsTotal.WithLabelValues("success").Inc()
	return body, raw.StatusCode, nil
}

// ClearCache empties this client's response cache.
func (c *Client) ClearCache() {
	c.store.Clear()
	c.logger.Debug().Msg("Response cache cleared")
}

// Close releases idle connections and drops the cache.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	c.store.Clear()
	return nil
}
