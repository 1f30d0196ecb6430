package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Repository persists affiliates. Counter mutations are split per owning
// engine: clicks belong to tracking, lifetime conversions to the recorder,
// monthly counters to the tiering engine and balances to the clearing
// engine. Each method only ever increments its own counter or replaces its
// own aggregate.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, affiliate *Affiliate) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Affiliate, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Affiliate, error)
	CodeExists(ctx context.Context, db *gorm.DB, code string) (bool, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status) error

	IncrementClicks(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	IncrementTotalConversions(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	// DecrementTotalConversions backs a conversion out of the lifetime
	// count when it is voided. Floored at zero.
	DecrementTotalConversions(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	IncrementMonthSales(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	// SaveMonthlyRollover persists the tiering engine's month-boundary state.
	SaveMonthlyRollover(ctx context.Context, db *gorm.DB, affiliate *Affiliate) error
	UpdateTier(ctx context.Context, db *gorm.DB, id snowflake.ID, tier Tier, rate decimal.Decimal) error

	// UpdateBalances replaces the clearing engine's aggregates.
	UpdateBalances(ctx context.Context, db *gorm.DB, id snowflake.ID, pending, available, total decimal.Decimal) error

	InsertAdjustment(ctx context.Context, db *gorm.DB, adjustment *Adjustment) error
	SumAdjustments(ctx context.Context, db *gorm.DB, id snowflake.ID) (decimal.Decimal, error)
}
