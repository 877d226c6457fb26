package models

import "time"

// Tier is the subscription tier of an account.
type Tier string

// Tier constants define the supported subscription tiers.
const (
	// TierFree is the default tier.
	TierFree Tier = "free"
	// TierPro is a time-bounded paid tier.
	TierPro Tier = "pro"
	// TierLifetime is a permanent paid tier.
	TierLifetime Tier = "lifetime"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierLifetime:
		return true
	default:
		return false
	}
}

// User represents an account stored in the database.
type User struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // UUID primary key.

	Email        string `gorm:"type:varchar(254);not null;uniqueIndex"` // Normalized email address.
	Username     string `gorm:"type:text"`                              // Display name.
	PasswordHash string `gorm:"type:text;not null"`                     // Bcrypt password hash.

	Tier                  Tier       `gorm:"type:varchar(16);not null;default:'free'"` // Current subscription tier.
	SubscriptionExpiresAt *time.Time // End of the paid window; nil for free and lifetime.
	IsActive              bool       `gorm:"not null"` // Whether the account may sign in.

	EmailConfirmedAt *time.Time // When the email address was confirmed.
	OTPSecret        string     `gorm:"type:text"` // Secret backing emailed one-time codes.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// EffectiveTier returns the tier the user is entitled to at now.
// An expired pro subscription falls back to free.
func (u *User) EffectiveTier(now time.Time) Tier {
	if u == nil || !u.IsActive {
		return TierFree
	}
	if u.Tier == TierPro && (u.SubscriptionExpiresAt == nil || !u.SubscriptionExpiresAt.After(now)) {
		return TierFree
	}
	if !u.Tier.Valid() {
		return TierFree
	}
	return u.Tier
}
