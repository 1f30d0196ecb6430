package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payout *Payout) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payout, error)
	ListByAffiliate(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) ([]*Payout, error)

	// SumReserved aggregates pending and processing payout amounts, the
	// reservation against available balance.
	SumReserved(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) (decimal.Decimal, error)

	// SumCompleted aggregates completed payout amounts, money already sent
	// out of the program.
	SumCompleted(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) (decimal.Decimal, error)

	// UpdateStatus transitions a payout, guarded by the allowed source
	// statuses. Returns rows touched (zero means the guard failed).
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []Status, to Status, at time.Time) (int64, error)
}
