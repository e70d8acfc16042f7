package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeSleep struct {
	calls []time.Duration
	err   error
}

func (f *fakeSleep) sleep(_ context.Context, d time.Duration) error {
	f.calls = append(f.calls, d)
	return f.err
}

func newTestTracker(now time.Time, sleeper *fakeSleep) *Tracker {
	return NewTracker(nil, Config{
		ThrottleDelay: 250 * time.Millisecond,
		Now:           func() time.Time { return now },
		Sleep:         sleeper.sleep,
	}, zerolog.Nop())
}

func headersWith(remaining, reset string) http.Header {
	h := http.Header{}
	h.Set(HeaderRemaining, remaining)
	h.Set(HeaderReset, reset)
	return h
}

func TestUpdateFromHeaders(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name            string
		headers         http.Header
		expectedRemain  int
		expectedHealthy bool
		shouldError     bool
	}{
		{"healthy state", headersWith("100", "60"), 100, true, false},
		{"warning state", headersWith("15", "30"), 15, false, false},
		{"critical state", headersWith("3", "45"), 3, false, false},
		{"invalid remaining", headersWith("abc", "60"), 0, false, true},
		{"invalid reset", headersWith("10", "soon"), 0, false, true},
		{
			name: "missing reset",
			headers: http.Header{
				HeaderRemaining: []string{"10"},
			},
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := newTestTracker(now, &fakeSleep{})
			ctx := context.Background()

			err := tracker.UpdateFromHeaders(ctx, tt.headers)
			if (err != nil) != tt.shouldError {
				t.Fatalf("UpdateFromHeaders() error = %v, shouldError %v", err, tt.shouldError)
			}
			if tt.shouldError {
				return
			}

			state, err := tracker.GetState(ctx)
			if err != nil {
				t.Fatalf("GetState() error = %v", err)
			}
			if state.Remaining != tt.expectedRemain {
				t.Errorf("Remaining = %d, want %d", state.Remaining, tt.expectedRemain)
			}
			if state.IsHealthy != tt.expectedHealthy {
				t.Errorf("IsHealthy = %v, want %v", state.IsHealthy, tt.expectedHealthy)
			}
			if !state.LastUpdate.Equal(now) {
				t.Errorf("LastUpdate = %v, want %v", state.LastUpdate, now)
			}
		})
	}
}

func TestUpdateFromHeaders_NoHeadersIsNoop(t *testing.T) {
	now := time.Now()
	tracker := newTestTracker(now, &fakeSleep{})
	ctx := context.Background()

	if err := tracker.UpdateFromHeaders(ctx, headersWith("3", "60")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}
	if err := tracker.UpdateFromHeaders(ctx, http.Header{}); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, _ := tracker.GetState(ctx)
	if state.Remaining != 3 {
		t.Errorf("Remaining = %d, want 3 (unchanged)", state.Remaining)
	}
}

func TestGetState_DefaultHealthy(t *testing.T) {
	tracker := newTestTracker(time.Now(), &fakeSleep{})

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.IsHealthy || state.Remaining != 100 {
		t.Errorf("GetState() = %+v, want healthy default", state)
	}
}

func TestShouldAllowRequest(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		remaining   string
		wantAllowed bool
		wantSleeps  int
	}{
		{"healthy", "100", true, 0},
		{"warning throttles", "10", true, 1},
		{"critical blocks", "2", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sleeper := &fakeSleep{}
			tracker := newTestTracker(now, sleeper)
			ctx := context.Background()

			if err := tracker.UpdateFromHeaders(ctx, headersWith(tt.remaining, "60")); err != nil {
				t.Fatalf("UpdateFromHeaders() error = %v", err)
			}

			allowed, err := tracker.ShouldAllowRequest(ctx)
			if err != nil {
				t.Fatalf("ShouldAllowRequest() error = %v", err)
			}
			if allowed != tt.wantAllowed {
				t.Errorf("allowed = %v, want %v", allowed, tt.wantAllowed)
			}
			if len(sleeper.calls) != tt.wantSleeps {
				t.Errorf("sleeps = %d, want %d", len(sleeper.calls), tt.wantSleeps)
			}
			if tt.wantSleeps > 0 && sleeper.calls[0] != 250*time.Millisecond {
				t.Errorf("throttle delay = %v, want 250ms", sleeper.calls[0])
			}
		})
	}
}

func TestShouldAllowRequest_ThrottleCancelled(t *testing.T) {
	sleeper := &fakeSleep{err: context.Canceled}
	tracker := newTestTracker(time.Now(), sleeper)
	ctx := context.Background()

	tracker.UpdateFromHeaders(ctx, headersWith("10", "60"))

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if allowed {
		t.Error("allowed = true after cancelled throttle")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestGetState_OutdatedStateIsHealthy(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStateStore()
	blocked := &State{
		Remaining:  1,
		ResetAt:    now.Add(time.Hour),
		LastUpdate: now.Add(-10 * time.Minute),
	}
	if err := store.Save(context.Background(), blocked); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	tests := []struct {
		name        string
		maxAge      time.Duration
		wantAllowed bool
	}{
		{"outdated state ignored", 5 * time.Minute, true},
		{"state within max age", 15 * time.Minute, false},
		{"age check disabled", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(store, Config{
				MaxStateAge: tt.maxAge,
				Now:         func() time.Time { return now },
				Sleep:       (&fakeSleep{}).sleep,
			}, zerolog.Nop())

			allowed, err := tracker.ShouldAllowRequest(context.Background())
			if err != nil {
				t.Fatalf("ShouldAllowRequest() error = %v", err)
			}
			if allowed != tt.wantAllowed {
				t.Errorf("allowed = %v, want %v", allowed, tt.wantAllowed)
			}
		})
	}
}

func TestDefaultConfig_MaxStateAge(t *testing.T) {
	if got := DefaultConfig().MaxStateAge; got != 5*time.Minute {
		t.Errorf("MaxStateAge = %v, want 5m", got)
	}
}

type failingStore struct{}

func (failingStore) Load(context.Context) (*State, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (failingStore) Save(context.Context, *State) error {
	return errors.New("connection refused")
}

func TestTracker_StoreErrors(t *testing.T) {
	tracker := NewTracker(failingStore{}, DefaultConfig(), zerolog.Nop())
	ctx := context.Background()

	if _, err := tracker.ShouldAllowRequest(ctx); err == nil {
		t.Error("ShouldAllowRequest() error = nil, want store error")
	}
	if err := tracker.UpdateFromHeaders(ctx, headersWith("50", "60")); err == nil {
		t.Error("UpdateFromHeaders() error = nil, want store error")
	}
}

func TestMemoryStateStore_CopiesState(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	original := &State{Remaining: 42}
	store.Save(ctx, original)
	original.Remaining = 1

	loaded, ok, _ := store.Load(ctx)
	if !ok || loaded.Remaining != 42 {
		t.Errorf("Load() = %+v, %v; want Remaining 42", loaded, ok)
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext() = %v, want context.Canceled", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext() = %v, want nil", err)
	}
}
