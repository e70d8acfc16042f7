package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sternrassler/resilient-fetch/pkg/transport"
)

// Response is the outcome of a Get call.
//
// OK responses carry data from the network (FromCache=false), from a fresh
// cache entry (FromCache=true, Stale=false), or from an entry past its
// freshness served because every attempt failed (FromCache=true,
// Stale=true). Failed responses never come from the cache.
type Response struct {
	OK        bool   `json:"ok"`
	Status    int    `json:"status,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	FromCache bool   `json:"fromCache"`
	Stale     bool   `json:"stale"`

	// Body is the raw response body; Kind says how it was decoded into Data.
	Body []byte             `json:"-"`
	Kind transport.BodyKind `json:"-"`
}

// Decode unmarshals the body into v. JSON bodies accept any JSON target;
// text bodies can only be decoded into *string or *any; empty bodies leave
// v untouched.
func (r *Response) Decode(v any) error {
	if !r.OK {
		return fmt.Errorf("decode failed response: %s", r.Error)
	}

	switch r.Kind {
	case transport.BodyEmpty:
		return nil
	case transport.BodyJSON:
		return json.Unmarshal(r.Body, v)
	default:
		switch target := v.(type) {
		case *string:
			*target = string(r.Body)
			return nil
		case *any:
			*target = string(r.Body)
			return nil
		}
		return fmt.Errorf("body is text, cannot decode into %T", v)
	}
}

// TypedResponse is a Response whose data was decoded into T.
type TypedResponse[T any] struct {
	OK        bool   `json:"ok"`
	Status    int    `json:"status,omitempty"`
	Data      T      `json:"data"`
	Error     string `json:"error,omitempty"`
	FromCache bool   `json:"fromCache"`
	Stale     bool   `json:"stale"`
}

// GetAs fetches pathOrURL through c and decodes the body into T.
//
// The cache holds the raw body, so the same URL can be read as different
// types. A body that cannot be decoded into T yields a failed response
// carrying the status and the decode error.
func GetAs[T any](ctx context.Context, c *Client, pathOrURL string, opts *Options) (*TypedResponse[T], error) {
	resp, err := c.Get(ctx, pathOrURL, opts)
	if err != nil {
		return nil, err
	}

	out := &TypedResponse[T]{
		OK:        resp.OK,
		Status:    resp.Status,
		Error:     resp.Error,
		FromCache: resp.FromCache,
		Stale:     resp.Stale,
	}
	if !resp.OK {
		return out, nil
	}

	if err := resp.Decode(&out.Data); err != nil {
		return &TypedResponse[T]{
			Status: resp.Status,
			Error:  fmt.Sprintf("decode response: %v", err),
		}, nil
	}
	return out, nil
}

// fromCache builds a successful response from a cached body. The response
// gets its own copy, so callers may modify Data and Body freely.
func fromCache(body transport.Body, stale bool) *Response {
	body = body.Clone()
	return &Response{
		OK:        true,
		Status:    200,
		Data:      body.Value,
		Body:      body.Raw,
		Kind:      body.Kind,
		FromCache: true,
		Stale:     stale,
	}
}

// failure builds a failed response.
func failure(status int, message string) *Response {
	return &Response{
		Status: status,
		Error:  message,
	}
}

// describeFailure picks the message reported for an exhausted fetch: the
// last attempt's error, or the cancellation when the context ended first.
func describeFailure(err error) string {
	if errors.Is(err, ErrContextCancelled) {
		return err.Error()
	}
	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.Error()
	}
	return err.Error()
}
