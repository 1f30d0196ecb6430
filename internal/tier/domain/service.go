package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	affdomain "github.com/smallbiznis/affiliate/internal/affiliate/domain"
)

type ResetResult struct {
	Rolled        bool
	RewardGranted bool
	RewardAmount  decimal.Decimal
}

type UpgradeResult struct {
	Upgraded bool
	OldTier  affdomain.Tier
	NewTier  affdomain.Tier
	NewRate  decimal.Decimal
}

// Service is the tiering engine. All three entry points are lazy: they
// re-derive month-boundary state from stored counters on access instead of
// relying on a scheduler, so correctness is never more than one access
// cycle stale.
type Service interface {
	// CheckAndReset rolls the monthly counters when the calendar month has
	// moved on since the last reset, granting the volume reward at most
	// once per month.
	CheckAndReset(ctx context.Context, affiliateID snowflake.ID) (ResetResult, error)

	// OnNewSale runs the reset check first so a sale landing exactly on a
	// month boundary lands in the correct month, then counts the sale.
	OnNewSale(ctx context.Context, affiliateID snowflake.ID) error

	// CheckAndUpgrade runs the monthly reset check, then applies
	// forward-only tier transitions. Partner eligibility is evaluated
	// before active.
	CheckAndUpgrade(ctx context.Context, affiliateID snowflake.ID) (UpgradeResult, error)
}
