package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/ratelimit"
	"github.com/redis/go-redis/v9"
)

// DefaultStateTTL bounds how long an idle bucket survives in Redis.
const DefaultStateTTL = 24 * time.Hour

// StateStore keeps adaptive rate limit state in Redis as JSON documents.
type StateStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

type stateDocument struct {
	Host           string         `json:"host"`
	Bucket         string         `json:"bucket"`
	Limit          int            `json:"limit"`
	Remaining      int            `json:"remaining"`
	ResetAt        *time.Time     `json:"reset_at,omitempty"`
	RetryAfterMS   *int64         `json:"retry_after_ms,omitempty"`
	ThrottledUntil *time.Time     `json:"throttled_until,omitempty"`
	LastStatus     int            `json:"last_status"`
	Attempts       int            `json:"attempts"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func NewStateStore(client redis.Cmdable, prefix string, ttl time.Duration) (*StateStore, error) {
	if client == nil {
		return nil, errors.New("redisstore: redis client is required")
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{
		client: client,
		prefix: strings.TrimSpace(prefix),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *StateStore) Get(ctx context.Context, key core.RateLimitKey) (ratelimit.State, error) {
	if s == nil || s.client == nil {
		return ratelimit.State{}, errors.New("redisstore: state store is not configured")
	}
	raw, err := s.client.Get(ctx, s.stateKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ratelimit.State{}, ratelimit.ErrStateNotFound
		}
		return ratelimit.State{}, fmt.Errorf("redisstore: get rate limit state: %w", err)
	}
	return decodeState(raw)
}

func (s *StateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.client == nil {
		return errors.New("redisstore: state store is not configured")
	}
	state.Key = ratelimit.NormalizeKey(state.Key)
	if state.Key.Host == "" || state.Key.Bucket == "" {
		return core.NewValidationError("redisstore: rate limit key requires host and bucket")
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = s.now()
	}
	raw, err := encodeState(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.stateKey(state.Key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set rate limit state: %w", err)
	}
	return nil
}

func (s *StateStore) stateKey(key core.RateLimitKey) string {
	return prefixed(s.prefix, "ratelimit_state", ratelimit.StateKey(key))
}

func encodeState(state ratelimit.State) ([]byte, error) {
	doc := stateDocument{
		Host:           state.Key.Host,
		Bucket:         state.Key.Bucket,
		Limit:          state.Limit,
		Remaining:      state.Remaining,
		ResetAt:        state.ResetAt,
		ThrottledUntil: state.ThrottledUntil,
		LastStatus:     state.LastStatus,
		Attempts:       state.Attempts,
		UpdatedAt:      state.UpdatedAt,
		Metadata:       state.Metadata,
	}
	if state.RetryAfter != nil {
		ms := state.RetryAfter.Milliseconds()
		doc.RetryAfterMS = &ms
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("redisstore: encode rate limit state: %w", err)
	}
	return raw, nil
}

func decodeState(raw []byte) (ratelimit.State, error) {
	var doc stateDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ratelimit.State{}, fmt.Errorf("redisstore: decode rate limit state: %w", err)
	}
	state := ratelimit.State{
		Key:            core.RateLimitKey{Host: doc.Host, Bucket: doc.Bucket},
		Limit:          doc.Limit,
		Remaining:      doc.Remaining,
		ResetAt:        doc.ResetAt,
		ThrottledUntil: doc.ThrottledUntil,
		LastStatus:     doc.LastStatus,
		Attempts:       doc.Attempts,
		UpdatedAt:      doc.UpdatedAt,
		Metadata:       doc.Metadata,
	}
	if doc.RetryAfterMS != nil {
		retryAfter := time.Duration(*doc.RetryAfterMS) * time.Millisecond
		state.RetryAfter = &retryAfter
	}
	return state, nil
}
