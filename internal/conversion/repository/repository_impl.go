package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/affiliate/internal/conversion/domain"
	"github.com/smallbiznis/affiliate/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, conversion *domain.Conversion) error {
	return db.WithContext(ctx).Create(conversion).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Conversion, error) {
	var conversion domain.Conversion
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Take(&conversion).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conversion, nil
}

func (r *repo) FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*domain.Conversion, error) {
	var conversion domain.Conversion
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Take(&conversion).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conversion, nil
}

func (r *repo) PromotePending(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID, cutoff, now time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Model(&domain.Conversion{}).
		Where("affiliate_id = ? AND status = ? AND purchased_at < ?", affiliateID, domain.StatusPending, cutoff).
		Updates(map[string]interface{}{
			"status":     domain.StatusCleared,
			"cleared_at": now,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *repo) SumAmountByStatus(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID, statuses ...domain.Status) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := db.WithContext(ctx).
		Model(&domain.Conversion{}).
		Select("COALESCE(SUM(commission_amount), 0)").
		Where("affiliate_id = ? AND status IN ?", affiliateID, statuses).
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

func (r *repo) MarkVoided(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, at time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Model(&domain.Conversion{}).
		Where("id = ? AND status IN ?", id, []domain.Status{domain.StatusPending, domain.StatusCleared}).
		Updates(map[string]interface{}{
			"status":      domain.StatusVoided,
			"voided_at":   at,
			"void_reason": reason,
			"updated_at":  at,
		})
	return result.RowsAffected, result.Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID, status domain.Status, cursor *pagination.Cursor, limit int) ([]*domain.Conversion, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Conversion{}).
		Where("affiliate_id = ?", affiliateID)
	if status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if cursor != nil {
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, err
		}
		lastID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("created_at < ? OR (created_at = ? AND id < ?)", createdAt, createdAt, lastID)
	}

	var conversions []*domain.Conversion
	err := stmt.
		Order("created_at desc, id desc").
		Limit(limit + 1).
		Find(&conversions).Error
	if err != nil {
		return nil, err
	}
	return conversions, nil
}

func (r *repo) ListClearedOldestFirst(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) ([]*domain.Conversion, error) {
	var conversions []*domain.Conversion
	err := db.WithContext(ctx).
		Where("affiliate_id = ? AND status = ?", affiliateID, domain.StatusCleared).
		Order("purchased_at asc, id asc").
		Find(&conversions).Error
	if err != nil {
		return nil, err
	}
	return conversions, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.Conversion{}).
		Where("id IN ? AND status = ?", ids, domain.StatusCleared).
		Updates(map[string]interface{}{
			"status":     domain.StatusPaid,
			"updated_at": at,
		}).Error
}
