package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	affdomain "github.com/smallbiznis/affiliate/internal/affiliate/domain"
	"github.com/smallbiznis/affiliate/internal/clock"
	"github.com/smallbiznis/affiliate/internal/conversion/domain"
	obsmetrics "github.com/smallbiznis/affiliate/internal/observability/metrics"
	tierdomain "github.com/smallbiznis/affiliate/internal/tier/domain"
	trackingdomain "github.com/smallbiznis/affiliate/internal/tracking/domain"
	"github.com/smallbiznis/affiliate/pkg/db"
	"github.com/smallbiznis/affiliate/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	AffRepo   affdomain.Repository
	ClickRepo trackingdomain.Repository
	TierSvc   tierdomain.Service
	Metrics   *obsmetrics.Metrics
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	affRepo   affdomain.Repository
	clickRepo trackingdomain.Repository
	tierSvc   tierdomain.Service
	metrics   *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("conversion.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		affRepo:   p.AffRepo,
		clickRepo: p.ClickRepo,
		tierSvc:   p.TierSvc,
		metrics:   p.Metrics,
	}
}

// Record creates the commission for a completed order. The conversion row
// is the primary financial write; click stamping and counter increments
// ride in the same transaction, while the tiering engine's monthly counter
// runs after commit so its failure can never undo the commission.
func (s *Service) Record(ctx context.Context, req domain.RecordRequest) (domain.RecordResult, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return domain.RecordResult{}, domain.ErrInvalidOrder
	}
	if req.OrderSubtotal.IsNegative() || req.OrderSubtotal.IsZero() {
		return domain.RecordResult{}, domain.ErrInvalidSubtotal
	}

	affiliate, err := s.affRepo.FindByCode(ctx, s.db, strings.ToUpper(strings.TrimSpace(req.AffiliateCode)))
	if err != nil {
		return domain.RecordResult{}, err
	}
	if affiliate == nil {
		return domain.RecordResult{}, affdomain.ErrNotFound
	}
	if affiliate.Status != affdomain.StatusActive {
		// Expected in the wild: a deactivated affiliate's old link is
		// still live somewhere. Decline without creating a partial record.
		s.log.Warn("conversion declined, affiliate not active",
			zap.String("affiliate_id", affiliate.ID.String()),
			zap.String("order_id", orderID),
			zap.String("status", string(affiliate.Status)),
		)
		return domain.RecordResult{}, affdomain.ErrNotEligible
	}

	// Webhook retries must not double-charge commission.
	if existing, err := s.repo.FindByOrderID(ctx, s.db, orderID); err != nil {
		return domain.RecordResult{}, err
	} else if existing != nil {
		return domain.RecordResult{Conversion: *existing, Existing: true}, nil
	}

	// Rate resolution: explicit override, else the affiliate's stored tier
	// rate, else the tier's published default. Snapshotted permanently.
	rate := affiliate.CommissionRate
	if req.Rate != nil {
		rate = *req.Rate
	}
	if rate.IsZero() {
		rate = affiliate.Tier.PublishedRate()
	}

	now := s.clock.Now()
	conversion := domain.Conversion{
		ID:               s.genID.Generate(),
		AffiliateID:      affiliate.ID,
		OrderID:          orderID,
		OrderSubtotal:    req.OrderSubtotal,
		CommissionRate:   rate,
		CommissionAmount: req.OrderSubtotal.Mul(rate).Round(2),
		Status:           domain.StatusPending,
		PurchasedAt:      now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &conversion); err != nil {
			return err
		}
		if sessionID := strings.TrimSpace(req.SessionID); sessionID != "" {
			if _, err := s.clickRepo.MarkConverted(ctx, tx, affiliate.ID, sessionID, orderID, now); err != nil {
				return err
			}
		}
		return s.affRepo.IncrementTotalConversions(ctx, tx, affiliate.ID)
	})
	if err != nil {
		// A concurrent call for the same order won the unique constraint
		// race; treat it identically to "already exists".
		if db.IsDuplicateKeyErr(err) {
			existing, findErr := s.repo.FindByOrderID(ctx, s.db, orderID)
			if findErr != nil {
				return domain.RecordResult{}, findErr
			}
			if existing != nil {
				return domain.RecordResult{Conversion: *existing, Existing: true}, nil
			}
		}
		return domain.RecordResult{}, err
	}

	if err := s.tierSvc.OnNewSale(ctx, affiliate.ID); err != nil {
		s.log.Warn("monthly sale counter update failed",
			zap.String("affiliate_id", affiliate.ID.String()),
			zap.Error(err),
		)
	}

	if s.metrics != nil {
		s.metrics.ConversionsRecorded.Inc()
	}
	s.log.Info("conversion recorded",
		zap.String("conversion_id", conversion.ID.String()),
		zap.String("affiliate_id", affiliate.ID.String()),
		zap.String("order_id", orderID),
		zap.String("commission_amount", conversion.CommissionAmount.StringFixed(2)),
	)
	return domain.RecordResult{Conversion: conversion}, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Conversion, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return domain.Conversion{}, domain.ErrInvalidID
	}

	conversion, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return domain.Conversion{}, err
	}
	if conversion == nil {
		return domain.Conversion{}, domain.ErrNotFound
	}
	return *conversion, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	affiliateID, err := snowflake.ParseString(strings.TrimSpace(req.AffiliateID))
	if err != nil || affiliateID == 0 {
		return domain.ListResponse{}, affdomain.ErrInvalidID
	}

	status := domain.Status(strings.ToLower(strings.TrimSpace(req.Status)))
	switch status {
	case "", domain.StatusPending, domain.StatusCleared, domain.StatusPaid, domain.StatusVoided:
	default:
		return domain.ListResponse{}, domain.ErrInvalidStatus
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	var cursor *pagination.Cursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err = pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
	}

	rows, err := s.repo.List(ctx, s.db, affiliateID, status, cursor, pageSize)
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(rows, pageSize, func(conversion *domain.Conversion) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        conversion.ID.String(),
			CreatedAt: conversion.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(rows) > pageSize {
		rows = rows[:pageSize]
	}

	conversions := make([]domain.Conversion, 0, len(rows))
	for _, row := range rows {
		conversions = append(conversions, *row)
	}

	resp := domain.ListResponse{Conversions: conversions}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}
