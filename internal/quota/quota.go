// Package quota counts AI feature usage per user and local day against
// tier-dependent limits.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gaiya-app/gaiya-cloud/internal/db"
	"github.com/gaiya-app/gaiya-cloud/internal/logging"
	"github.com/gaiya-app/gaiya-cloud/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Quota features.
const (
	FeaturePlanTasks     = "plan_tasks"
	FeatureWeeklyReport  = "generate_weekly_report"
	FeatureChatQuery     = "chat_query"
	FeatureGenerateTheme = "generate_theme"
)

// Unlimited marks a feature without a daily cap.
const Unlimited = -1

const dateLayout = "2006-01-02"

var (
	// ErrQuotaExceeded indicates the daily limit has been reached.
	ErrQuotaExceeded = errors.New("quota: daily limit reached")
	// ErrUnknownFeature indicates a feature without a limit table entry.
	ErrUnknownFeature = errors.New("quota: unknown feature")
)

var limits = map[string]map[models.Tier]int{
	FeaturePlanTasks:     {models.TierFree: 3, models.TierPro: 20, models.TierLifetime: 50},
	FeatureWeeklyReport:  {models.TierFree: 0, models.TierPro: 10, models.TierLifetime: 10},
	FeatureChatQuery:     {models.TierFree: 0, models.TierPro: 100, models.TierLifetime: Unlimited},
	FeatureGenerateTheme: {models.TierFree: 3, models.TierPro: Unlimited, models.TierLifetime: Unlimited},
}

// Features returns the known features in display order.
func Features() []string {
	return []string{FeaturePlanTasks, FeatureWeeklyReport, FeatureChatQuery, FeatureGenerateTheme}
}

// Limit returns the daily limit of feature for tier.
func Limit(feature string, tier models.Tier) (int, error) {
	byTier, ok := limits[feature]
	if !ok {
		return 0, ErrUnknownFeature
	}
	if !tier.Valid() {
		tier = models.TierFree
	}
	return byTier[tier], nil
}

// Info is the quota state after a check.
type Info struct {
	Feature   string      `json:"feature"`
	UserTier  models.Tier `json:"user_tier"`
	Date      string      `json:"date"`
	Limit     int         `json:"limit"`
	Used      int         `json:"used"`
	Remaining int         `json:"remaining"`
	ResetAt   time.Time   `json:"reset_at"`
}

// Service reads and updates usage counters.
type Service struct {
	db  *gorm.DB
	loc *time.Location
	now func() time.Time
}

// NewService constructs a Service. loc defines the local day.
func NewService(conn *gorm.DB, loc *time.Location, now func() time.Time) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Service{db: conn, loc: loc, now: now}
}

func (s *Service) day() (string, time.Time) {
	local := s.now().In(s.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	return local.Format(dateLayout), midnight.AddDate(0, 0, 1).UTC()
}

func remaining(limit, used int) int {
	if limit == Unlimited {
		return Unlimited
	}
	if used >= limit {
		return 0
	}
	return limit - used
}

// ResolveTier returns the stored tier of userID. The claimed tier is never
// trusted; unknown users are free.
func (s *Service) ResolveTier(ctx context.Context, userID, claimed string) models.Tier {
	var user models.User
	errFind := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errFind != nil {
		if !db.IsNotFound(errFind) {
			logging.Module("quota").WithError(errFind).Warn("tier lookup failed")
		}
		return models.TierFree
	}
	tier := user.EffectiveTier(s.now())
	if claimed != "" && models.Tier(claimed) != tier {
		logging.Module("quota").WithFields(logging.Fields(logging.UserID(userID))).
			WithField("claimed_tier", claimed).WithField("tier", tier).Debug("claimed tier ignored")
	}
	return tier
}

// Consume counts one use of feature. The counter row is locked for the
// read-modify-write so bursts cannot under-count.
func (s *Service) Consume(ctx context.Context, userID string, tier models.Tier, feature string) (Info, error) {
	limit, errLimit := Limit(feature, tier)
	if errLimit != nil {
		return Info{}, errLimit
	}
	date, resetAt := s.day()
	info := Info{Feature: feature, UserTier: tier, Date: date, Limit: limit, ResetAt: resetAt}
	if limit == 0 {
		return info, ErrQuotaExceeded
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.QuotaUsage{UserID: userID, Date: date, Feature: feature}
		if errSeed := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; errSeed != nil {
			return fmt.Errorf("quota: seed counter: %w", errSeed)
		}
		var usage models.QuotaUsage
		if errFind := db.ForUpdate(tx.WithContext(ctx)).
			Where("user_id = ? AND date = ? AND feature = ?", userID, date, feature).
			First(&usage).Error; errFind != nil {
			return fmt.Errorf("quota: load counter: %w", errFind)
		}
		if limit != Unlimited && usage.Count >= limit {
			info.Used = usage.Count
			return ErrQuotaExceeded
		}
		if errUpdate := tx.WithContext(ctx).Model(&models.QuotaUsage{}).
			Where("id = ?", usage.ID).
			Updates(map[string]any{"count": usage.Count + 1, "updated_at": s.now().UTC()}).Error; errUpdate != nil {
			return fmt.Errorf("quota: increment counter: %w", errUpdate)
		}
		info.Used = usage.Count + 1
		return nil
	})
	info.Remaining = remaining(limit, info.Used)
	return info, errTx
}

// Status is the per-feature usage of a user today.
type Status struct {
	UserID    string         `json:"user_id"`
	UserTier  models.Tier    `json:"user_tier"`
	Date      string         `json:"date"`
	Usage     map[string]int `json:"usage"`
	Limits    map[string]int `json:"limits"`
	Remaining map[string]int `json:"remaining"`
	ResetAt   time.Time      `json:"reset_at"`
}

// Status reports today's usage of every feature.
func (s *Service) Status(ctx context.Context, userID string, tier models.Tier) (*Status, error) {
	date, resetAt := s.day()
	var rows []models.QuotaUsage
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ? AND date = ?", userID, date).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("quota: status: %w", errFind)
	}
	used := make(map[string]int, len(rows))
	for _, row := range rows {
		used[row.Feature] = row.Count
	}
	out := &Status{
		UserID:    userID,
		UserTier:  tier,
		Date:      date,
		Usage:     make(map[string]int),
		Limits:    make(map[string]int),
		Remaining: make(map[string]int),
		ResetAt:   resetAt,
	}
	for _, feature := range Features() {
		limit, _ := Limit(feature, tier)
		out.Usage[feature] = used[feature]
		out.Limits[feature] = limit
		out.Remaining[feature] = remaining(limit, used[feature])
	}
	return out, nil
}

// Purge deletes counters for days before cutoff.
func Purge(ctx context.Context, conn *gorm.DB, cutoff time.Time, loc *time.Location) (int64, error) {
	if loc == nil {
		loc = time.UTC
	}
	res := conn.WithContext(ctx).Where("date < ?", cutoff.In(loc).Format(dateLayout)).Delete(&models.QuotaUsage{})
	if res.Error != nil {
		return 0, fmt.Errorf("quota: purge: %w", res.Error)
	}
	return res.RowsAffected, nil
}
