package domain

import (
	"context"
	"errors"
)

type EnrollRequest struct {
	DisplayName string
	Email       string
}

type Service interface {
	Enroll(ctx context.Context, req EnrollRequest) (Affiliate, error)
	GetByID(ctx context.Context, id string) (Affiliate, error)
	GetByCode(ctx context.Context, code string) (Affiliate, error)
	Deactivate(ctx context.Context, id string) error
}

var (
	ErrNotFound           = errors.New("affiliate_not_found")
	ErrNotEligible        = errors.New("affiliate_not_eligible")
	ErrEmailTaken         = errors.New("email_taken")
	ErrInvalidDisplayName = errors.New("invalid_display_name")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidCode        = errors.New("invalid_code")
)
