package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentCacheStatusPaid marks a cached order as settled.
const PaymentCacheStatusPaid = "paid"

// PaymentCache is a short-lived snapshot of a settled order so status polls
// do not hit the provider.
type PaymentCache struct {
	OutTradeNo string          `gorm:"type:varchar(64);primaryKey"` // Merchant order id.
	TradeNo    string          `gorm:"type:varchar(128)"`           // Gateway transaction id.
	Provider   PaymentProvider `gorm:"type:varchar(16);not null"`   // Settling gateway.
	Type       string          `gorm:"type:varchar(16)"`            // Payment channel.
	Status     string          `gorm:"type:varchar(16);not null"`   // Cached status.
	Money      decimal.Decimal `gorm:"type:decimal(10,2);not null"` // Settled amount.
	PlanType   string          `gorm:"type:varchar(32)"`            // Purchased plan id.
	UserID     string          `gorm:"type:varchar(36);index"`      // Paying user.
	Param      datatypes.JSON                                       // Opaque order parameters.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`       // Last update timestamp.
}

// TableName pins the table name.
func (PaymentCache) TableName() string {
	return "payment_cache"
}
