package logging

import (
	"time"

	"github.com/rs/zerolog"
)

// Field names shared by the client, the transport and the gateway.
const (
	FieldService    = "service"
	FieldComponent  = "component"
	FieldURL        = "url"
	FieldCacheKey   = "cache_key"
	FieldAttempt    = "attempt"
	FieldStatus     = "status"
	FieldErrorClass = "error_class"
	FieldBackoff    = "backoff"
	FieldStale      = "stale"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
)

// ForRequest binds the resolved URL of one fetch, and its cache key once
// known, to every line logged through the returned logger. Cache keys carry
// a token fingerprint, never the token.
func ForRequest(logger zerolog.Logger, url, cacheKey string) zerolog.Logger {
	ctx := logger.With().Str(FieldURL, url)
	if cacheKey != "" {
		ctx = ctx.Str(FieldCacheKey, cacheKey)
	}
	return ctx.Logger()
}

// ForClient binds the gateway request ID and caller address.
func ForClient(logger zerolog.Logger, requestID, clientIP string) zerolog.Logger {
	ctx := logger.With()
	if requestID != "" {
		ctx = ctx.Str(FieldRequestID, requestID)
	}
	if clientIP != "" {
		ctx = ctx.Str(FieldClientIP, clientIP)
	}
	return ctx.Logger()
}

// Attempt adds the zero-based attempt index and, when known, its error class
// to e. The backoff is included only when positive.
func Attempt(e *zerolog.Event, attempt int, errorClass string, backoff time.Duration) *zerolog.Event {
	e = e.Int(FieldAttempt, attempt)
	if errorClass != "" {
		e = e.Str(FieldErrorClass, errorClass)
	}
	if backoff > 0 {
		e = e.Dur(FieldBackoff, backoff)
	}
	return e
}

// Level guidelines:
//
// Debug: cache lookups, individual attempts, body decoding degradations.
// Info: requests that succeeded after a retry, server startup and shutdown.
// Warn: retries and backoff waits, stale entries served, upstream throttling.
// Error: requests that failed with nothing to fall back on, misconfiguration.
