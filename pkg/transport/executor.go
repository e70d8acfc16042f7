// Package transport performs single GET attempts with a hard per-attempt
// deadline and decodes response bodies.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/resilient-fetch/pkg/logging"
	"github.com/rs/zerolog"
)

// RawResponse is a completed HTTP response whose body has not been read.
// Closing Body releases the attempt deadline.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Executor issues one GET per Execute call.
type Executor struct {
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewExecutor creates an executor. A nil httpClient uses a plain
// http.Client; deadlines come from Execute, not from the client.
func NewExecutor(httpClient *http.Client, logger zerolog.Logger) *Executor {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Executor{
		httpClient: httpClient,
		logger:     logger,
	}
}

// Execute performs a single GET against url. The attempt is aborted when
// timeout elapses (or ctx ends); both cases are reported as *TransportError.
// Any completed response, whatever its status, is returned without error.
func (e *Executor) Execute(ctx context.Context, url string, headers http.Header, timeout time.Duration) (*RawResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, &TransportError{URL: url, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header = headers.Clone()
	if req.Header == nil {
		req.Header = http.Header{}
	}

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		cancel()

		e.logger.Debug().
			Err(err).
			Str(logging.FieldURL, url).
			Bool("timeout", timedOut).
			Dur("duration", time.Since(start)).
			Msg("GET attempt failed")

		if timedOut {
			return nil, &TransportError{URL: url, Timeout: true, Err: fmt.Errorf("request timed out after %s", timeout)}
		}
		return nil, &TransportError{URL: url, Err: err}
	}

	e.logger.Debug().
		Str(logging.FieldURL, url).
		Int(logging.FieldStatus, resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("GET attempt completed")

	return &RawResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
	}, nil
}

// ReadBody drains and closes the response body. Read failures (including the
// attempt deadline firing mid-body) are reported as *TransportError.
func (r *RawResponse) ReadBody(url string) ([]byte, error) {
	defer r.Body.Close()

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, &TransportError{
			URL:     url,
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     fmt.Errorf("read response body: %w", err),
		}
	}
	return data, nil
}

// cancelOnClose ties the attempt context to the body lifetime.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
