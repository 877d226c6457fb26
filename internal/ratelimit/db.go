package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/gaiya-app/gaiya-cloud/internal/db"
	"github.com/gaiya-app/gaiya-cloud/internal/models"
	"gorm.io/gorm"
)

// DBLimiter implements a sliding-window limiter on the rate_limit_entries table.
type DBLimiter struct {
	db *gorm.DB
}

// NewDBLimiter constructs a DBLimiter.
func NewDBLimiter(conn *gorm.DB) *DBLimiter {
	return &DBLimiter{db: conn}
}

// Allow counts admitted requests newer than now-window and records this one
// when under the limit.
func (l *DBLimiter) Allow(ctx context.Context, key string, rule Rule, now time.Time) (Result, error) {
	if rule.Max <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	if l == nil || l.db == nil {
		return Result{}, errors.New("rate limit db: nil connection")
	}
	now = now.UTC()
	since := now.Add(-rule.Window)

	var result Result
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !db.IsSQLite(tx) {
			if errLock := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; errLock != nil {
				return errLock
			}
		}
		window := tx.Model(&models.RateLimitEntry{}).Where("limit_key = ? AND created_at > ?", key, since)

		var count int64
		if errCount := window.Session(&gorm.Session{}).Count(&count).Error; errCount != nil {
			return errCount
		}
		var oldest models.RateLimitEntry
		errOldest := window.Session(&gorm.Session{}).Order("created_at ASC").Limit(1).Take(&oldest).Error
		if errOldest != nil && !errors.Is(errOldest, gorm.ErrRecordNotFound) {
			return errOldest
		}

		if count >= int64(rule.Max) {
			result = deniedResult(rule, oldest.CreatedAt, now)
			return nil
		}
		entry := models.RateLimitEntry{
			LimitKey:       key,
			Endpoint:       rule.Endpoint,
			IdentifierType: string(rule.Kind),
			CreatedAt:      now,
		}
		if errCreate := tx.Create(&entry).Error; errCreate != nil {
			return errCreate
		}
		result = allowedResult(rule, int(count)+1, oldest.CreatedAt, now)
		return nil
	})
	if errTx != nil {
		return Result{}, errTx
	}
	return result, nil
}

// Cleanup deletes entries created before cutoff and returns the row count.
func Cleanup(ctx context.Context, conn *gorm.DB, cutoff time.Time) (int64, error) {
	res := conn.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&models.RateLimitEntry{})
	return res.RowsAffected, res.Error
}
