package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

// Enforced reports whether a rule produced this result.
func (r Result) Enforced() bool {
	return r.Limit > 0
}

// Limiter provides sliding-window rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule, now time.Time) (Result, error)
}

// KeyKind identifies what a rule counts requests by.
type KeyKind string

const (
	KindIP     KeyKind = "ip"
	KindEmail  KeyKind = "email"
	KindUserID KeyKind = "user_id"
)

// Rule limits an endpoint to Max requests per Window per identifier.
type Rule struct {
	Endpoint string
	Max      int
	Window   time.Duration
	Kind     KeyKind
}

func allowedResult(rule Rule, used int, oldest, now time.Time) Result {
	remaining := rule.Max - used
	if remaining < 0 {
		remaining = 0
	}
	if oldest.IsZero() {
		oldest = now
	}
	return Result{Allowed: true, Limit: rule.Max, Remaining: remaining, Reset: oldest.Add(rule.Window)}
}

func deniedResult(rule Rule, oldest, now time.Time) Result {
	reset := oldest.Add(rule.Window)
	retry := reset.Sub(now)
	if retry < time.Second {
		retry = time.Second
	}
	return Result{Allowed: false, Limit: rule.Max, Remaining: 0, Reset: reset, RetryAfter: retry}
}
