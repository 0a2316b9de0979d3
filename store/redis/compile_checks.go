package redisstore

import "github.com/goliatone/go-messaging/ratelimit"

var (
	_ ratelimit.Limiter    = (*Limiter)(nil)
	_ ratelimit.StateStore = (*StateStore)(nil)
)
