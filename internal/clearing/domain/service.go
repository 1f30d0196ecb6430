package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Balances is the result of a full recompute from the conversion, payout
// and adjustment tables.
type Balances struct {
	PendingEarnings  decimal.Decimal
	ClearedEarnings  decimal.Decimal
	ReservedPayouts  decimal.Decimal
	Adjustments      decimal.Decimal
	AvailableBalance decimal.Decimal
	TotalEarnings    decimal.Decimal
}

type ClearResult struct {
	ClearedCount     int64
	PendingEarnings  decimal.Decimal
	AvailableBalance decimal.Decimal
}

// Service is the clearing engine. It is the only writer of the affiliate's
// balance aggregates; every other engine increments its own counters and
// leaves balances alone, which is what keeps concurrent writers from
// disagreeing.
type Service interface {
	// ClearPending matures pending conversions past the hold window, then
	// recomputes balances from first principles. Safe to call arbitrarily
	// often; a call with nothing eligible changes nothing.
	ClearPending(ctx context.Context, affiliateID snowflake.ID) (ClearResult, error)

	// Recompute rederives and persists the balance aggregates without
	// promoting anything.
	Recompute(ctx context.Context, affiliateID snowflake.ID) (Balances, error)

	// Void cancels a pending or cleared conversion (refund, fraud) and
	// immediately removes its amount from both totals.
	Void(ctx context.Context, conversionID snowflake.ID, reason string) error
}
