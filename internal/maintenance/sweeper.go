// Package maintenance removes expired rate-limit entries, payment cache rows,
// and old quota counters.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gaiya-app/gaiya-cloud/internal/logging"
	"github.com/gaiya-app/gaiya-cloud/internal/payment"
	"github.com/gaiya-app/gaiya-cloud/internal/quota"
	"github.com/gaiya-app/gaiya-cloud/internal/ratelimit"
	"github.com/gaiya-app/gaiya-cloud/internal/settings"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// sweepTimeout bounds one scheduled sweep.
const sweepTimeout = 5 * time.Minute

var logger = logging.Module("maintenance")

// Report counts the rows removed by one sweep.
type Report struct {
	RateLimitEntries int64
	PaymentCache     int64
	QuotaUsage       int64
}

// Sweeper deletes rows past their retention.
type Sweeper struct {
	db  *gorm.DB
	loc *time.Location
	now func() time.Time
}

// NewSweeper constructs a Sweeper. loc defines the local day of quota counters.
func NewSweeper(conn *gorm.DB, loc *time.Location, now func() time.Time) *Sweeper {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{db: conn, loc: loc, now: now}
}

// SweepOnce runs every cleanup step. A failing step does not stop the others;
// their errors are joined.
func (s *Sweeper) SweepOnce(ctx context.Context) (Report, error) {
	now := s.now()
	var report Report
	var errs []error

	n, errRate := ratelimit.Cleanup(ctx, s.db, now.Add(-settings.RateLimitRetention))
	if errRate != nil {
		errs = append(errs, fmt.Errorf("maintenance: rate limit entries: %w", errRate))
	}
	report.RateLimitEntries = n

	n, errCache := payment.PurgeCache(ctx, s.db, now.Add(-settings.PaymentCacheRetention))
	if errCache != nil {
		errs = append(errs, errCache)
	}
	report.PaymentCache = n

	n, errQuota := quota.Purge(ctx, s.db, now.Add(-settings.QuotaUsageRetention), s.loc)
	if errQuota != nil {
		errs = append(errs, errQuota)
	}
	report.QuotaUsage = n

	return report, errors.Join(errs...)
}

// Start schedules SweepOnce on schedule and returns a stop function that waits
// for a running sweep to finish.
func (s *Sweeper) Start(ctx context.Context, schedule string) (func(), error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		schedule = settings.DefaultSweepSchedule
	}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, errAdd := c.AddFunc(schedule, func() { s.run(ctx) }); errAdd != nil {
		return nil, fmt.Errorf("maintenance: schedule %q: %w", schedule, errAdd)
	}
	c.Start()
	logger.WithField("schedule", schedule).Info("sweeper started")
	return func() {
		<-c.Stop().Done()
	}, nil
}

func (s *Sweeper) run(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, sweepTimeout)
	defer cancel()
	report, errSweep := s.SweepOnce(ctx)
	entry := logger.
		WithField("rate_limit_entries", report.RateLimitEntries).
		WithField("payment_cache", report.PaymentCache).
		WithField("quota_usage", report.QuotaUsage)
	if errSweep != nil {
		entry.WithError(errSweep).Error("sweep failed")
		return
	}
	entry.Info("sweep finished")
}
