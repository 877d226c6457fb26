package models

import "time"

// EmailVerificationPurpose identifies what a verification token confirms.
type EmailVerificationPurpose string

// EmailVerificationPurposeSignup confirms the address given at signup.
const EmailVerificationPurposeSignup EmailVerificationPurpose = "signup"

// EmailVerification is an outstanding email confirmation link. Only the
// SHA-256 of the token is stored.
type EmailVerification struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID    string                   `gorm:"type:varchar(36);not null;index"`     // Account being confirmed.
	Email     string                   `gorm:"type:varchar(254);not null;index"`    // Address the link was sent to.
	TokenHash string                   `gorm:"type:varchar(64);not null;uniqueIndex"` // Hex SHA-256 of the token.
	Purpose   EmailVerificationPurpose `gorm:"type:varchar(16);not null"`           // What the token confirms.

	ExpiresAt  time.Time  `gorm:"not null"` // Link expiry.
	ConsumedAt *time.Time // When the link was used.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
