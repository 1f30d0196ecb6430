package affctx

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// AffiliateContextKey is the request context key for the authenticated affiliate.
type AffiliateContextKey struct{}

// WithAffiliateID stores the affiliate ID in the context. The session
// provider in front of this service has already verified it.
func WithAffiliateID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, AffiliateContextKey{}, id)
}

// AffiliateIDFromContext returns the affiliate ID from context, if set.
func AffiliateIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}

	switch typed := ctx.Value(AffiliateContextKey{}).(type) {
	case int64:
		return snowflake.ID(typed), true
	case snowflake.ID:
		return typed, true
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil {
			return parsed, true
		}
	}
	return 0, false
}
