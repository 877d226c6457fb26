package models

import "time"

// QuotaUsage counts feature uses for a user on a local calendar day.
type QuotaUsage struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID  string `gorm:"type:varchar(36);not null;uniqueIndex:idx_quota_user_date_feature,priority:1"` // Counted user.
	Date    string `gorm:"type:varchar(10);not null;uniqueIndex:idx_quota_user_date_feature,priority:2"` // Local day, YYYY-MM-DD.
	Feature string `gorm:"type:varchar(32);not null;uniqueIndex:idx_quota_user_date_feature,priority:3"` // Quota feature.
	Count   int    `gorm:"not null;default:0"`                                                          // Uses so far.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
