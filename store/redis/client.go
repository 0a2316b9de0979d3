// Package redisstore backs the shared rate limiting concerns with Redis so
// several webhook receivers can enforce one budget.
package redisstore

import (
	"context"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-messaging/core"
	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "go-messaging"

// NewClient opens a client for cfg and pings it.
func NewClient(ctx context.Context, cfg core.RedisConfig) (*redis.Client, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, core.NewValidationError("redisstore: redis addr is required", goerrors.FieldError{Field: "redis.addr", Message: "is required"})
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if ctx == nil {
		ctx = context.Background()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: ping %s: %w", addr, err)
	}
	return client, nil
}

func prefixed(prefix string, parts ...string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return prefix + ":" + strings.Join(parts, ":")
}
