package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-messaging/core"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

// State is what the client knows about one API quota bucket.
type State struct {
	Key            core.RateLimitKey
	Limit          int
	Remaining      int
	ResetAt        *time.Time
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
	Metadata       map[string]any
}

// throttledAt returns how long calls must wait at now, or 0. A zero
// Remaining only blocks when a Limit is known.
func (s State) throttledAt(now time.Time) time.Duration {
	if s.ThrottledUntil != nil && now.Before(*s.ThrottledUntil) {
		return s.ThrottledUntil.Sub(now)
	}
	if s.Limit > 0 && s.Remaining <= 0 && s.ResetAt != nil && now.Before(*s.ResetAt) {
		return s.ResetAt.Sub(now)
	}
	return 0
}

type StateStore interface {
	Get(ctx context.Context, key core.RateLimitKey) (State, error)
	Upsert(ctx context.Context, state State) error
}

// MemoryStateStore keeps bucket state in process.
type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, key core.RateLimitKey) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	state, ok := s.items[StateKey(key)]
	s.mu.RUnlock()
	if !ok {
		return State{}, ErrStateNotFound
	}
	state.Metadata = cloneMap(state.Metadata)
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.Key = NormalizeKey(state.Key)
	state.Metadata = cloneMap(state.Metadata)
	s.mu.Lock()
	s.items[StateKey(state.Key)] = state
	s.mu.Unlock()
	return nil
}

// StateKey is the storage key of a bucket. Stores outside this package use it too.
func StateKey(key core.RateLimitKey) string {
	key = NormalizeKey(key)
	return key.Host + "|" + key.Bucket
}

// NormalizeKey lowercases and trims the key parts.
func NormalizeKey(key core.RateLimitKey) core.RateLimitKey {
	return core.RateLimitKey{
		Host:   strings.ToLower(strings.TrimSpace(key.Host)),
		Bucket: strings.ToLower(strings.TrimSpace(key.Bucket)),
	}
}

func cloneMap(input map[string]any) map[string]any {
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}
