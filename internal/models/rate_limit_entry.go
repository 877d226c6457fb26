package models

import "time"

// RateLimitEntry records one admitted request inside a sliding window.
type RateLimitEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	LimitKey       string `gorm:"type:varchar(64);not null;index:idx_rate_limit_key_created,priority:1"` // Hashed (endpoint, kind, identifier).
	Endpoint       string `gorm:"type:varchar(64);not null"`                                              // Rate-limited endpoint.
	IdentifierType string `gorm:"type:varchar(16);not null"`                                              // ip, email, or user_id.

	CreatedAt time.Time `gorm:"not null;index:idx_rate_limit_key_created,priority:2;index"` // Admission time.
}
