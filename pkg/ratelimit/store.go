package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateStore persists the budget state. Load returns ok=false when nothing
// has been recorded yet.
type StateStore interface {
	Load(ctx context.Context) (state *State, ok bool, err error)
	Save(ctx context.Context, state *State) error
}

// MemoryStateStore keeps state in process memory.
type MemoryStateStore struct {
	mu    sync.RWMutex
	state *State
}

// NewMemoryStateStore creates an empty in-memory store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

// Load implements StateStore.
func (m *MemoryStateStore) Load(context.Context) (*State, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state == nil {
		return nil, false, nil
	}
	cp := *m.state
	return &cp, true, nil
}

// Save implements StateStore.
func (m *MemoryStateStore) Save(_ context.Context, state *State) error {
	cp := *state

	m.mu.Lock()
	m.state = &cp
	m.mu.Unlock()
	return nil
}

// RedisStateStore shares state between processes through Redis, so every
// replica of a gateway sees the same upstream budget.
type RedisStateStore struct {
	redis *redis.Client
}

// NewRedisStateStore creates a Redis-backed store.
func NewRedisStateStore(redisClient *redis.Client) *RedisStateStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStateStore{redis: redisClient}
}

// Load implements StateStore.
func (r *RedisStateStore) Load(ctx context.Context) (*State, bool, error) {
	remaining, err := r.redis.Get(ctx, RedisKeyRemaining).Int()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get remaining: %w", err)
	}

	resetTimestamp, err := r.redis.Get(ctx, RedisKeyResetTimestamp).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, fmt.Errorf("get reset timestamp: %w", err)
	}

	lastUpdateStr, err := r.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, fmt.Errorf("get last update: %w", err)
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, false, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &State{
		Remaining:  remaining,
		ResetAt:    time.Unix(resetTimestamp, 0),
		LastUpdate: lastUpdate,
	}
	state.UpdateHealth()

	return state, true, nil
}

// Save implements StateStore. All keys are written in one pipeline.
func (r *RedisStateStore) Save(ctx context.Context, state *State) error {
	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	pipe := r.redis.Pipeline()
	pipe.Set(ctx, RedisKeyRemaining, state.Remaining, 0)
	pipe.Set(ctx, RedisKeyResetTimestamp, state.ResetAt.Unix(), 0)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}
