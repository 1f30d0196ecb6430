package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/affiliate/pkg/db/pagination"
)

// RecordRequest is an order-completed event from the checkout system. Rate
// is an optional per-conversion override; when nil the affiliate's stored
// tier rate applies.
type RecordRequest struct {
	AffiliateCode string
	SessionID     string
	OrderID       string
	OrderSubtotal decimal.Decimal
	Rate          *decimal.Decimal
}

type RecordResult struct {
	Conversion Conversion
	// Existing is true when the order had already been recorded and the
	// pre-existing conversion was returned (webhook retry path).
	Existing bool
}

type ListRequest struct {
	AffiliateID string
	Status      string
	PageToken   string
	PageSize    int
}

type ListResponse struct {
	pagination.PageInfo
	Conversions []Conversion `json:"conversions"`
}

type Service interface {
	// Record creates at most one commission per order. Calling it again for
	// the same orderID returns the existing conversion as success.
	Record(ctx context.Context, req RecordRequest) (RecordResult, error)

	Get(ctx context.Context, id string) (Conversion, error)

	// List pages through an affiliate's conversions, newest first, with an
	// optional status filter.
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrNotFound               = errors.New("conversion_not_found")
	ErrInvalidOrder           = errors.New("invalid_order")
	ErrInvalidSubtotal        = errors.New("invalid_subtotal")
	ErrInvalidID              = errors.New("invalid_id")
	ErrInvalidStatus          = errors.New("invalid_status")
	ErrInvalidPageToken       = errors.New("invalid_page_token")
	ErrInvalidStateTransition = errors.New("invalid_state_transition")
)
