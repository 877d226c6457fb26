package ratelimit

import (
	"context"
	"time"

	"github.com/gaiya-app/gaiya-cloud/internal/logging"
)

// Manager resolves endpoint rules and enforces them through a Limiter.
// Storage failures fail open.
type Manager struct {
	limiter Limiter
	rules   map[string]Rule
	nowFn   func() time.Time
}

// NewManager constructs a Manager with default dependencies when nil.
func NewManager(limiter Limiter, rules map[string]Rule, nowFn func() time.Time) *Manager {
	if rules == nil {
		rules = DefaultRules()
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Manager{limiter: limiter, rules: rules, nowFn: nowFn}
}

// Rule returns the rule registered for endpoint.
func (m *Manager) Rule(endpoint string) (Rule, bool) {
	if m == nil {
		return Rule{}, false
	}
	rule, ok := m.rules[endpoint]
	return rule, ok
}

// Check admits or rejects one request to endpoint by identifier. Endpoints
// without a rule and blank identifiers are always admitted.
func (m *Manager) Check(ctx context.Context, endpoint, identifier string) Result {
	if m == nil {
		return Result{Allowed: true}
	}
	rule, ok := m.rules[endpoint]
	if !ok || rule.Max <= 0 {
		return Result{Allowed: true}
	}
	key := KeyFor(rule, identifier)
	if key == "" || m.limiter == nil {
		return Result{Allowed: true}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := m.nowFn()
	result, errAllow := m.limiter.Allow(ctx, key, rule, now)
	if errAllow != nil {
		logging.Module("ratelimit").WithError(errAllow).WithField("endpoint", endpoint).
			Warn("rate limit: storage unavailable, failing open")
		return Result{Allowed: true, Limit: rule.Max, Remaining: rule.Max, Reset: now.Add(rule.Window)}
	}
	return result
}
