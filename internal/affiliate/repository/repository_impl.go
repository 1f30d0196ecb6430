package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/affiliate/internal/affiliate/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, affiliate *domain.Affiliate) error {
	return db.WithContext(ctx).Create(affiliate).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Affiliate, error) {
	var affiliate domain.Affiliate
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Take(&affiliate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Affiliate, error) {
	var affiliate domain.Affiliate
	err := db.WithContext(ctx).
		Where("code = ?", code).
		Take(&affiliate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

func (r *repo) CodeExists(ctx context.Context, db *gorm.DB, code string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Affiliate{}).
		Where("code = ?", code).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status) error {
	return db.WithContext(ctx).
		Model(&domain.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repo) IncrementClicks(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&domain.Affiliate{}).
		Where("id = ?", id).
		UpdateColumn("total_clicks", gorm.Expr("total_clicks + 1")).Error
}

func (r *repo) IncrementTotalConversions(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&domain.Affiliate{}).
		Where("id = ?", id).
		UpdateColumn("total_conversions", gorm.Expr("total_conversions + 1")).Error
}

func (r *repo) DecrementTotalConversions(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&domain.Affiliate{}).
		Where("id = ? AND total_conversions > 0", id).
		UpdateColumn("total_conversions", gorm.Expr("total_conversions - 1")).Error
}

func (r *repo) IncrementMonthSales(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&domain.Affiliate{}).
		Where("id = ?", id).
		UpdateColumn("current_month_sales", gorm.Expr("current_month_sales + 1")).Error
}

func (r *repo) SaveMonthlyRollover(ctx context.Context, db *gorm.DB, affiliate *domain.Affiliate) error {
	return db.WithContext(ctx).
		Model(&domain.Affiliate{}).
		Where("id = ?", affiliate.ID).
		Updates(map[string]interface{}{
			"current_month_sales":       affiliate.CurrentMonthSales,
			"last_month_sales":          affiliate.LastMonthSales,
			"partner_qualifying_months": affiliate.PartnerQualifyingMonths,
			"last_month_reset_at":       affiliate.LastMonthResetAt,
			"last_reward_month":         affiliate.LastRewardMonth,
			"available_balance":         affiliate.AvailableBalance,
			"updated_at":                time.Now().UTC(),
		}).Error
}

func (r *repo) UpdateTier(ctx context.Context, db *gorm.DB, id snowflake.ID, tier domain.Tier, rate decimal.Decimal) error {
	return db.WithContext(ctx).
		Model(&domain.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"tier":            tier,
			"commission_rate": rate,
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *repo) UpdateBalances(ctx context.Context, db *gorm.DB, id snowflake.ID, pending, available, total decimal.Decimal) error {
	return db.WithContext(ctx).
		Model(&domain.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"pending_earnings":  pending,
			"available_balance": available,
			"total_earnings":    total,
			"updated_at":        time.Now().UTC(),
		}).Error
}

func (r *repo) InsertAdjustment(ctx context.Context, db *gorm.DB, adjustment *domain.Adjustment) error {
	return db.WithContext(ctx).Create(adjustment).Error
}

func (r *repo) SumAdjustments(ctx context.Context, db *gorm.DB, id snowflake.ID) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := db.WithContext(ctx).
		Model(&domain.Adjustment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("affiliate_id = ?", id).
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}
