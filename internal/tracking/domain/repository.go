package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, click *Click) error
	FindBySession(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID, sessionID string) (*Click, error)

	// MarkConverted stamps the session's click with the order, only if it
	// has not already converted. Returns the number of rows touched.
	MarkConverted(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID, sessionID, orderID string, at time.Time) (int64, error)
}
