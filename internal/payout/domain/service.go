package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type RequestPayoutRequest struct {
	AffiliateID snowflake.ID
	Amount      decimal.Decimal
}

type Service interface {
	// Request reserves a withdrawal against available balance. Runs the
	// clearing engine first so the balance it checks is current.
	Request(ctx context.Context, req RequestPayoutRequest) (Payout, error)

	List(ctx context.Context, affiliateID snowflake.ID) ([]Payout, error)

	// Complete settles a payout: the covered cleared conversions move to
	// paid and balances are recomputed.
	Complete(ctx context.Context, id string) (Payout, error)

	// Fail releases the reservation; the next recompute restores balance.
	Fail(ctx context.Context, id string) (Payout, error)
}

var (
	ErrNotFound            = errors.New("payout_not_found")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrBelowMinimum        = errors.New("below_minimum_payout")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrInvalidTransition   = errors.New("invalid_payout_transition")
)
