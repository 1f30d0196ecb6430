package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

type Tier string

const (
	TierStarter Tier = "starter"
	TierActive  Tier = "active"
	TierPartner Tier = "partner"
)

// PublishedRate returns the fixed commission rate for a tier.
func (t Tier) PublishedRate() decimal.Decimal {
	switch t {
	case TierActive:
		return decimal.NewFromFloat(0.25)
	case TierPartner:
		return decimal.NewFromFloat(0.30)
	default:
		return decimal.NewFromFloat(0.20)
	}
}

// Affiliate is a person enrolled in the program. Rows are never hard-deleted;
// status moves to inactive instead.
type Affiliate struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Code        string       `gorm:"uniqueIndex;size:20;not null" json:"code"`
	DisplayName string       `gorm:"size:255;not null" json:"display_name"`
	Email       string       `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Status      Status       `gorm:"size:20;not null;default:'active'" json:"status"`

	// Tier and the rate snapshot it implies. The rate is stored for audit
	// stability; it always equals the tier's published rate unless a
	// conversion overrides it explicitly.
	Tier           Tier            `gorm:"size:20;not null;default:'starter'" json:"tier"`
	CommissionRate decimal.Decimal `gorm:"type:decimal(6,4);not null" json:"commission_rate"`

	TotalClicks      int64 `gorm:"not null;default:0" json:"total_clicks"`
	TotalConversions int64 `gorm:"not null;default:0" json:"total_conversions"`

	// Rolling monthly counters, owned by the tiering engine.
	CurrentMonthSales       int       `gorm:"not null;default:0" json:"current_month_sales"`
	LastMonthSales          int       `gorm:"not null;default:0" json:"last_month_sales"`
	PartnerQualifyingMonths int       `gorm:"not null;default:0" json:"partner_qualifying_months"`
	LastMonthResetAt        time.Time `gorm:"not null" json:"last_month_reset_at"`
	LastRewardMonth         string    `gorm:"size:7" json:"last_reward_month"`

	// Balance aggregates, owned by the clearing engine.
	PendingEarnings  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"pending_earnings"`
	AvailableBalance decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"available_balance"`
	TotalEarnings    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_earnings"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Affiliate) TableName() string {
	return "affiliates"
}

// Adjustment is a balance credit outside the conversion ledger, today only
// the monthly volume reward. Keeping credits as rows lets the clearing
// engine recompute balances from source data without losing them.
type Adjustment struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	AffiliateID snowflake.ID    `gorm:"index;not null" json:"affiliate_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Kind        string          `gorm:"size:32;not null" json:"kind"`
	Note        string          `gorm:"size:255" json:"note"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

func (Adjustment) TableName() string {
	return "affiliate_adjustments"
}

const AdjustmentKindMonthlyReward = "monthly_reward"
