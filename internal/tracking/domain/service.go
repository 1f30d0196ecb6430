package domain

import (
	"context"
	"errors"
)

// AttributeClickRequest carries transport-layer facts into the domain. The
// caller IP arrives raw and leaves this package only as a digest.
type AttributeClickRequest struct {
	AffiliateID int64
	SessionID   string
	IP          string
	UserAgent   string
	Referrer    string
	LandingPage string
}

type Service interface {
	// AttributeClick records the visit and increments the affiliate's click
	// counter. A session that already has a click is returned as-is; a
	// browser refresh does not inflate counters.
	AttributeClick(ctx context.Context, req AttributeClickRequest) (Click, error)

	// NewSessionID mints a fresh session token.
	NewSessionID() string
}

var (
	ErrInvalidAffiliate = errors.New("invalid_affiliate")
	ErrInvalidSession   = errors.New("invalid_session")
)
