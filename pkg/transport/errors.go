package transport

import "fmt"

// TransportError is a failed attempt that produced no HTTP response:
// connection failures, aborted requests and per-attempt timeouts.
type TransportError struct {
	URL     string
	Timeout bool
	Err     error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("transport timeout: GET %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("transport error: GET %s: %v", e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}
