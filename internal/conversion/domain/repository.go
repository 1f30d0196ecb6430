package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/affiliate/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, conversion *Conversion) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Conversion, error)
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*Conversion, error)

	// PromotePending transitions every pending conversion purchased before
	// cutoff to cleared in one statement, stamping clearedAt. Returns the
	// number of rows promoted.
	PromotePending(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID, cutoff, now time.Time) (int64, error)

	// SumAmountByStatus aggregates commission amounts from the rows
	// themselves; balances are always rederived, never carried forward.
	SumAmountByStatus(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID, statuses ...Status) (decimal.Decimal, error)

	// MarkVoided stamps the void, guarded by the allowed source statuses.
	// Returns the number of rows touched (zero means the guard failed).
	MarkVoided(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, at time.Time) (int64, error)

	// List returns up to limit+1 conversions newest first, resuming after
	// cursor when present. The extra row lets the caller detect more pages.
	List(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID, status Status, cursor *pagination.Cursor, limit int) ([]*Conversion, error)

	// ListClearedOldestFirst returns cleared conversions for payout
	// settlement ordering.
	ListClearedOldestFirst(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) ([]*Conversion, error)

	// MarkPaid settles the given cleared conversions.
	MarkPaid(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error
}
