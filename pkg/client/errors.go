package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrMissingBaseURL is returned when a relative path is requested and no
	// base URL is configured.
	ErrMissingBaseURL = errors.New("relative path requires a base URL")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context ends during a fetch.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRateLimited is recorded when the upstream budget tracker blocks an attempt.
	ErrRateLimited = errors.New("request blocked: rate limit critical")
)

// ErrorClass represents a classification of failed attempts.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors (other than 429).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses and locally blocked attempts.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport failures and timeouts.
	ErrorClassNetwork ErrorClass = "network"
)

// ConfigError is a configuration problem detected before any network I/O.
// It is the only failure Get returns as an error; it is never retried and
// never cached.
type ConfigError struct {
	Field string
	Err   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// AttemptError is a single failed attempt. Status is 0 for transport failures.
type AttemptError struct {
	Status     int
	ErrorClass ErrorClass
	Retryable  bool
	Err        error
}

// Error implements the error interface. HTTP failures read "HTTP <status>".
func (e *AttemptError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.ErrorClass)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *AttemptError) Unwrap() error {
	return e.Err
}

// classifyStatus categorizes a non-2xx status for observability.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// isRetryable reports whether err is an attempt failure worth another try.
func isRetryable(err error) bool {
	var ae *AttemptError
	return errors.As(err, &ae) && ae.Retryable
}

// errorClassOf extracts the class of an attempt failure, "" if unknown.
func errorClassOf(err error) ErrorClass {
	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.ErrorClass
	}
	return ""
}
