package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusCleared Status = "cleared"
	StatusPaid    Status = "paid"
	StatusVoided  Status = "voided"
)

// Conversion is one commission-bearing event, exactly one per order. The
// commission rate is snapshotted at creation so later tier changes never
// retroactively alter history. Rows are never deleted.
type Conversion struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	AffiliateID snowflake.ID `gorm:"not null;index" json:"affiliate_id"`
	OrderID     string       `gorm:"uniqueIndex;size:64;not null" json:"order_id"`

	OrderSubtotal    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"order_subtotal"`
	CommissionRate   decimal.Decimal `gorm:"type:decimal(6,4);not null" json:"commission_rate"`
	CommissionAmount decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"commission_amount"`

	Status Status `gorm:"size:20;not null;index" json:"status"`

	PurchasedAt time.Time  `gorm:"not null;index" json:"purchased_at"`
	ClearedAt   *time.Time `json:"cleared_at,omitempty"`
	VoidedAt    *time.Time `json:"voided_at,omitempty"`
	VoidReason  string     `gorm:"size:255" json:"void_reason,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Conversion) TableName() string {
	return "affiliate_conversions"
}
