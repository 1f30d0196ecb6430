package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/affiliate/internal/tracking/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, click *domain.Click) error {
	return db.WithContext(ctx).Create(click).Error
}

func (r *repo) FindBySession(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID, sessionID string) (*domain.Click, error) {
	var click domain.Click
	err := db.WithContext(ctx).
		Where("affiliate_id = ? AND session_id = ?", affiliateID, sessionID).
		Order("created_at asc").
		Take(&click).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &click, nil
}

func (r *repo) MarkConverted(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID, sessionID, orderID string, at time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Model(&domain.Click{}).
		Where("affiliate_id = ? AND session_id = ? AND converted_at IS NULL", affiliateID, sessionID).
		Updates(map[string]interface{}{
			"converted_at": at,
			"order_id":     orderID,
		})
	return result.RowsAffected, result.Error
}
