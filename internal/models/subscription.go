package models

import "time"

// SubscriptionStatus represents whether a subscription window is current.
type SubscriptionStatus string

// SubscriptionStatus constants define subscription states.
const (
	// SubscriptionStatusActive marks the user's current window.
	SubscriptionStatusActive SubscriptionStatus = "active"
	// SubscriptionStatusSuperseded marks a window replaced by a later activation.
	SubscriptionStatusSuperseded SubscriptionStatus = "superseded"
)

// Subscription records one activation of a plan for a user.
type Subscription struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID    string `gorm:"type:varchar(36);not null;index"` // Subscribed user.
	PlanType  string `gorm:"type:varchar(32);not null"`       // Activated plan id.
	Tier      Tier   `gorm:"type:varchar(16);not null"`       // Tier granted by the plan.
	PaymentID uint64 `gorm:"not null;uniqueIndex"`            // Settling payment; one activation per payment.

	StartedAt time.Time          `gorm:"not null"`                  // Window start.
	ExpiresAt *time.Time         // Window end; nil for lifetime.
	Status    SubscriptionStatus `gorm:"type:varchar(16);not null"` // Whether this is the current window.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
