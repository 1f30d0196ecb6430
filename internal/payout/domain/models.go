package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Payout is a batched withdrawal request against available balance. While
// pending or processing it reserves balance in the clearing engine's
// recompute; it never mutates conversion rows itself.
type Payout struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	AffiliateID snowflake.ID    `gorm:"not null;index" json:"affiliate_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Status      Status          `gorm:"size:20;not null;index" json:"status"`

	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (Payout) TableName() string {
	return "affiliate_payouts"
}
