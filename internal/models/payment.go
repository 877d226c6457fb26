package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentProvider identifies the gateway that settled a payment.
type PaymentProvider string

// PaymentProvider constants define the supported gateways.
const (
	// PaymentProviderZPay is the Z-Pay aggregator (alipay, wxpay).
	PaymentProviderZPay PaymentProvider = "zpay"
	// PaymentProviderStripe is Stripe Checkout.
	PaymentProviderStripe PaymentProvider = "stripe"
)

// PaymentStatus represents the lifecycle state of a payment.
type PaymentStatus string

// PaymentStatus constants define payment lifecycle states.
const (
	// PaymentStatusPending marks an order awaiting settlement.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusCompleted marks a settled payment.
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusFailed marks a rejected payment.
	PaymentStatusFailed PaymentStatus = "failed"
)

// Payment is the ledger row for a settled order. (Provider, OrderID) is unique.
type Payment struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID   string          `gorm:"type:varchar(36);not null;index"`                                         // Paying user.
	Provider PaymentProvider `gorm:"type:varchar(16);not null;uniqueIndex:idx_payments_provider_order,priority:1"` // Settling gateway.
	OrderID  string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_payments_provider_order,priority:2"` // Merchant order id.

	ProviderTradeNo string          `gorm:"type:varchar(128)"`          // Gateway transaction id.
	PayType         string          `gorm:"type:varchar(16)"`           // Payment channel (alipay, wxpay, stripe, manual).
	Amount          decimal.Decimal `gorm:"type:decimal(10,2);not null"` // Settled amount.
	Currency        string          `gorm:"type:varchar(8);not null"`    // ISO currency code.
	PlanType        string          `gorm:"type:varchar(32);not null"`   // Purchased plan id.
	Status          PaymentStatus   `gorm:"type:varchar(16);not null"`   // Lifecycle state.

	CompletedAt *time.Time // Settlement time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
