package sqlstore

import (
	"context"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/ratelimit"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// upsertColumns are rewritten when a (host, bucket) row already exists.
var upsertColumns = []string{
	"limit",
	"remaining",
	"reset_at",
	"retry_after_ms",
	"throttled_until",
	"last_status",
	"attempts",
	"metadata",
	"updated_at",
}

// RateLimitStateStore persists adaptive throttle state, one row per host and bucket.
type RateLimitStateStore struct {
	db   *bun.DB
	repo repository.Repository[*rateLimitStateRecord]
}

func NewRateLimitStateStore(db *bun.DB) (*RateLimitStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*rateLimitStateRecord](db, rateLimitStateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: rate-limit state repository: %w", err)
		}
	}
	return &RateLimitStateStore{db: db, repo: repo}, nil
}

func (s *RateLimitStateStore) Get(ctx context.Context, key core.RateLimitKey) (ratelimit.State, error) {
	if s == nil || s.repo == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	key, err := checkRateLimitKey(key)
	if err != nil {
		return ratelimit.State{}, err
	}

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("host", "=", key.Host),
		repository.SelectBy("bucket", "=", key.Bucket),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return ratelimit.State{}, err
	}
	if len(records) == 0 {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}
	return records[0].toState(), nil
}

// Upsert writes state in a single statement so concurrent writers for the
// same key converge on one row.
func (s *RateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	key, err := checkRateLimitKey(state.Key)
	if err != nil {
		return err
	}
	state.Key = key
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}

	record := newRateLimitStateRecord(state)
	query := s.db.NewInsert().
		Model(record).
		On("CONFLICT (host, bucket) DO UPDATE")
	for _, column := range upsertColumns {
		query = query.Set("? = EXCLUDED.?", bun.Ident(column), bun.Ident(column))
	}
	_, err = query.Exec(ctx)
	return err
}

func checkRateLimitKey(key core.RateLimitKey) (core.RateLimitKey, error) {
	key = ratelimit.NormalizeKey(key)
	switch {
	case key.Host == "":
		return key, core.NewValidationError("sqlstore: rate-limit host is required")
	case key.Bucket == "":
		return key, core.NewValidationError("sqlstore: rate-limit bucket is required")
	}
	return key, nil
}

func newRateLimitStateRecord(state ratelimit.State) *rateLimitStateRecord {
	updated := state.UpdatedAt.UTC()
	record := &rateLimitStateRecord{
		ID:             uuid.NewString(),
		Host:           state.Key.Host,
		Bucket:         state.Key.Bucket,
		Limit:          state.Limit,
		Remaining:      state.Remaining,
		ResetAt:        utcPointer(state.ResetAt),
		ThrottledUntil: utcPointer(state.ThrottledUntil),
		LastStatus:     state.LastStatus,
		Attempts:       state.Attempts,
		Metadata:       copyAnyMap(state.Metadata),
		CreatedAt:      updated,
		UpdatedAt:      updated,
	}
	if state.RetryAfter != nil && *state.RetryAfter > 0 {
		ms := state.RetryAfter.Milliseconds()
		record.RetryAfterMS = &ms
	}
	return record
}

func (r *rateLimitStateRecord) toState() ratelimit.State {
	state := ratelimit.State{
		Key:            core.RateLimitKey{Host: r.Host, Bucket: r.Bucket},
		Limit:          r.Limit,
		Remaining:      r.Remaining,
		ResetAt:        utcPointer(r.ResetAt),
		ThrottledUntil: utcPointer(r.ThrottledUntil),
		LastStatus:     r.LastStatus,
		Attempts:       r.Attempts,
		UpdatedAt:      r.UpdatedAt,
		Metadata:       copyAnyMap(r.Metadata),
	}
	if r.RetryAfterMS != nil && *r.RetryAfterMS > 0 {
		d := time.Duration(*r.RetryAfterMS) * time.Millisecond
		state.RetryAfter = &d
	}
	return state
}

func utcPointer(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
