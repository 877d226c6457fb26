package ratelimit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gaiya-app/gaiya-cloud/internal/db/dbtest"
	"github.com/gaiya-app/gaiya-cloud/internal/models"
)

func TestDBLimiter_SlidingWindow(t *testing.T) {
	conn := dbtest.Open(t)
	limiter := NewDBLimiter(conn)
	rule := DefaultRules()[EndpointResetPassword]
	key := KeyFor(rule, "203.0.113.9")
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		res, err := limiter.Allow(ctx, key, rule, t0.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
		if res.Remaining != 2-i {
			t.Fatalf("expected remaining=%d, got %d", 2-i, res.Remaining)
		}
	}

	denied, err := limiter.Allow(ctx, key, rule, t0.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if denied.Allowed {
		t.Fatalf("expected fourth request to be denied")
	}
	if denied.RetryAfter != 50*time.Minute {
		t.Fatalf("expected retry after 50m, got %s", denied.RetryAfter)
	}
	if !denied.Reset.Equal(t0.Add(time.Hour)) {
		t.Fatalf("expected reset at oldest+window, got %s", denied.Reset)
	}

	again, err := limiter.Allow(ctx, key, rule, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !again.Allowed {
		t.Fatalf("expected request to be allowed once the oldest entry left the window")
	}

	var stored []models.RateLimitEntry
	if errFind := conn.Find(&stored).Error; errFind != nil {
		t.Fatalf("find entries: %v", errFind)
	}
	if len(stored) != 4 {
		t.Fatalf("expected 4 admitted entries, got %d", len(stored))
	}
	for _, e := range stored {
		if strings.Contains(e.LimitKey, "203.0.113.9") {
			t.Fatalf("raw identifier stored in limit key")
		}
	}
}

func TestDBLimiter_KeysAreIndependent(t *testing.T) {
	conn := dbtest.Open(t)
	limiter := NewDBLimiter(conn)
	rule := DefaultRules()[EndpointSignin]
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < rule.Max; i++ {
		if res, _ := limiter.Allow(context.Background(), KeyFor(rule, "a@example.com"), rule, now); !res.Allowed {
			t.Fatalf("expected allow %d", i)
		}
	}
	if res, _ := limiter.Allow(context.Background(), KeyFor(rule, "a@example.com"), rule, now); res.Allowed {
		t.Fatalf("expected a@example.com to be limited")
	}
	if res, _ := limiter.Allow(context.Background(), KeyFor(rule, "b@example.com"), rule, now); !res.Allowed {
		t.Fatalf("expected b@example.com to be unaffected")
	}
}

func TestCleanup(t *testing.T) {
	conn := dbtest.Open(t)
	limiter := NewDBLimiter(conn)
	rule := DefaultRules()[EndpointChatQuery]
	key := KeyFor(rule, "3f1c2a9e-1b2c-4d3e-8f90-0123456789ab")
	now := time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)

	if _, err := limiter.Allow(context.Background(), key, rule, now.Add(-25*time.Hour)); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if _, err := limiter.Allow(context.Background(), key, rule, now.Add(-time.Hour)); err != nil {
		t.Fatalf("allow: %v", err)
	}
	deleted, err := Cleanup(context.Background(), conn, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted entry, got %d", deleted)
	}
}

func TestKeyFor(t *testing.T) {
	signup := DefaultRules()[EndpointSignup]
	signin := DefaultRules()[EndpointSignin]
	if KeyFor(signup, "1.2.3.4") == KeyFor(signin, "1.2.3.4") {
		t.Fatalf("expected keys to differ per endpoint")
	}
	if KeyFor(signin, "A@Example.com ") != KeyFor(signin, "a@example.com") {
		t.Fatalf("expected identifier normalization")
	}
	if KeyFor(signin, "") != "" {
		t.Fatalf("expected empty key for blank identifier")
	}
	if len(HashIdentifier("x")) != 16 {
		t.Fatalf("expected 16-char identifier hash")
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, Rule, time.Time) (Result, error) {
	return Result{}, errors.New("storage down")
}

func TestManager_FailsOpen(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	m := NewManager(failingLimiter{}, nil, func() time.Time { return now })

	res := m.Check(context.Background(), EndpointSignup, "1.2.3.4")
	if !res.Allowed {
		t.Fatalf("expected fail-open allow")
	}
	if res.Limit != 3 || res.Remaining != 3 || !res.Reset.Equal(now.Add(5*time.Minute)) {
		t.Fatalf("expected full quota headers, got %+v", res)
	}
}

func TestManager_UnknownEndpoint(t *testing.T) {
	m := NewManager(failingLimiter{}, nil, nil)
	res := m.Check(context.Background(), "healthz", "1.2.3.4")
	if !res.Allowed || res.Enforced() {
		t.Fatalf("expected unenforced allow, got %+v", res)
	}
}

func TestManager_EnforcesWithDB(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	m := NewManager(NewDBLimiter(conn), nil, func() time.Time { return now })

	for i := 0; i < 10; i++ {
		if !m.Check(context.Background(), EndpointCreateOrder, "3f1c2a9e-1b2c-4d3e-8f90-0123456789ab").Allowed {
			t.Fatalf("expected order %d to be allowed", i)
		}
	}
	res := m.Check(context.Background(), EndpointCreateOrder, "3f1c2a9e-1b2c-4d3e-8f90-0123456789ab")
	if res.Allowed {
		t.Fatalf("expected eleventh order within the hour to be denied")
	}
	if res.RetryAfter <= 0 {
		t.Fatalf("expected retry-after, got %s", res.RetryAfter)
	}
}
