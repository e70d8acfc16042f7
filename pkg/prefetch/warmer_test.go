package prefetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/resilient-fetch/internal/testutil"
	"github.com/Sternrassler/resilient-fetch/pkg/client"
	"github.com/Sternrassler/resilient-fetch/pkg/policy"
	"github.com/rs/zerolog"
)

// fakeGetter records concurrency and answers from a function.
type fakeGetter struct {
	mu       sync.Mutex
	calls    map[string]int
	inFlight int32
	maxSeen  int32
	delay    time.Duration
	answer   func(path string) (*client.Response, error)
}

func newFakeGetter(answer func(string) (*client.Response, error)) *fakeGetter {
	return &fakeGetter{calls: make(map[string]int), answer: answer}
}

func (f *fakeGetter) Get(ctx context.Context, path string, _ *client.Options) (*client.Response, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[path]++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return &client.Response{Error: ctx.Err().Error()}, nil
		}
	}
	return f.answer(path)
}

func okResponse(string) (*client.Response, error) {
	return &client.Response{OK: true, Status: 200}, nil
}

func TestNewWarmer_Defaults(t *testing.T) {
	w := NewWarmer(newFakeGetter(okResponse), Config{})

	if w.config.MaxConcurrency != 10 {
		t.Errorf("MaxConcurrency = %d, want 10", w.config.MaxConcurrency)
	}
	if w.config.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", w.config.Timeout)
	}
}

func TestWarm_AllPaths(t *testing.T) {
	getter := newFakeGetter(okResponse)
	w := NewWarmer(getter, DefaultConfig())

	paths := []string{"/a", "/b", "/c", "/a"}
	results, err := w.Warm(context.Background(), paths)
	if err != nil {
		t.Fatalf("Warm() error = %v", err)
	}

	if len(results) != 3 {
		t.Errorf("results = %d, want 3", len(results))
	}
	if getter.calls["/a"] != 1 {
		t.Errorf("/a fetched %d times, want 1", getter.calls["/a"])
	}
}

func TestWarm_RespectsConcurrencyLimit(t *testing.T) {
	getter := newFakeGetter(okResponse)
	getter.delay = 20 * time.Millisecond
	w := NewWarmer(getter, Config{MaxConcurrency: 3, Timeout: time.Second})

	paths := make([]string, 12)
	for i := range paths {
		paths[i] = fmt.Sprintf("/item/%d", i)
	}

	if _, err := w.Warm(context.Background(), paths); err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	if got := atomic.LoadInt32(&getter.maxSeen); got > 3 {
		t.Errorf("max in flight = %d, want <= 3", got)
	}
}

func TestWarm_FailuresAreResults(t *testing.T) {
	getter := newFakeGetter(func(path string) (*client.Response, error) {
		if path == "/broken" {
			return &client.Response{Status: 500, Error: "HTTP 500"}, nil
		}
		return &client.Response{OK: true, Status: 200}, nil
	})
	w := NewWarmer(getter, DefaultConfig())

	results, err := w.Warm(context.Background(), []string{"/ok", "/broken"})
	if err != nil {
		t.Fatalf("Warm() error = %v", err)
	}

	if results["/broken"] == nil || results["/broken"].OK {
		t.Errorf("/broken = %+v, want failure response", results["/broken"])
	}
	summary := Summarize(results)
	if summary.Network != 1 || summary.Failed != 1 {
		t.Errorf("Summarize() = %+v, want 1 network 1 failed", summary)
	}
}

func TestWarm_ConfigErrorAborts(t *testing.T) {
	cfgErr := &client.ConfigError{Field: "BaseURL", Err: client.ErrMissingBaseURL}
	getter := newFakeGetter(func(path string) (*client.Response, error) {
		if path == "relative" {
			return nil, cfgErr
		}
		return &client.Response{OK: true}, nil
	})
	w := NewWarmer(getter, Config{MaxConcurrency: 1, Timeout: time.Second})

	_, err := w.Warm(context.Background(), []string{"relative", "/a", "/b"})

	if !errors.Is(err, client.ErrMissingBaseURL) {
		t.Errorf("error = %v, want ErrMissingBaseURL", err)
	}
	if getter.calls["/a"]+getter.calls["/b"] != 0 {
		t.Errorf("calls after abort = %v, want none", getter.calls)
	}
}

func TestWarm_PerPathTimeout(t *testing.T) {
	getter := newFakeGetter(okResponse)
	getter.delay = time.Second
	w := NewWarmer(getter, Config{MaxConcurrency: 2, Timeout: 20 * time.Millisecond})

	start := time.Now()
	results, err := w.Warm(context.Background(), []string{"/slow1", "/slow2"})
	if err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("per-path timeout not applied")
	}
	if Summarize(results).Failed != 2 {
		t.Errorf("results = %+v, want 2 failures", results)
	}
}

func TestSummarize(t *testing.T) {
	results := map[string]*client.Response{
		"net":    {OK: true},
		"fresh":  {OK: true, FromCache: true},
		"stale":  {OK: true, FromCache: true, Stale: true},
		"failed": {Error: "HTTP 503"},
	}

	got := Summarize(results)
	want := Summary{Network: 1, Fresh: 1, Stale: 1, Failed: 1}
	if got != want {
		t.Errorf("Summarize() = %+v, want %+v", got, want)
	}
}

func TestWarm_WithClientFillsCache(t *testing.T) {
	server := testutil.NewMockServer()
	defer server.Close()
	server.SetResponse("/users/me", testutil.NewJSONResponse(`{"id":"u_1"}`))
	server.SetResponse("/flags", testutil.NewJSONResponse(`{"beta":true}`))

	logger := zerolog.Nop()
	c, err := client.New(client.Config{BaseURL: server.URL(), Logger: &logger})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	defer c.Close()

	w := NewWarmer(c, Config{
		MaxConcurrency: 2,
		Timeout:        time.Second,
		Options:        &client.Options{Retry: policy.RetryOverrides{MaxRetries: policy.Int(0)}},
	})

	if _, err := w.Warm(context.Background(), []string{"/users/me", "/flags"}); err != nil {
		t.Fatalf("Warm() error = %v", err)
	}

	resp, err := c.Get(context.Background(), "/flags", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !resp.FromCache {
		t.Error("Get() after warm-up missed the cache")
	}
	if server.GetRequestCount() != 2 {
		t.Errorf("network calls = %d, want 2", server.GetRequestCount())
	}
}

func TestWarm_Shorthand(t *testing.T) {
	getter := newFakeGetter(okResponse)

	results, err := Warm(context.Background(), getter, []string{"/x"}, Config{})
	if err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	if results["/x"] == nil || !results["/x"].OK {
		t.Errorf("results = %+v, want /x ok", results)
	}
}
