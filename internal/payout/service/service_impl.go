package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	affdomain "github.com/smallbiznis/affiliate/internal/affiliate/domain"
	clearingdomain "github.com/smallbiznis/affiliate/internal/clearing/domain"
	"github.com/smallbiznis/affiliate/internal/clock"
	convdomain "github.com/smallbiznis/affiliate/internal/conversion/domain"
	obsmetrics "github.com/smallbiznis/affiliate/internal/observability/metrics"
	"github.com/smallbiznis/affiliate/internal/payout/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MinimumPayout is the smallest withdrawal the program accepts.
var MinimumPayout = decimal.NewFromInt(25)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	AffRepo  affdomain.Repository
	ConvRepo convdomain.Repository
	Clearing clearingdomain.Service
	Metrics  *obsmetrics.Metrics
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	affRepo  affdomain.Repository
	convRepo convdomain.Repository
	clearing clearingdomain.Service
	metrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payout.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		affRepo:  p.AffRepo,
		convRepo: p.ConvRepo,
		clearing: p.Clearing,
		metrics:  p.Metrics,
	}
}

func (s *Service) Request(ctx context.Context, req domain.RequestPayoutRequest) (domain.Payout, error) {
	if req.Amount.IsZero() || req.Amount.IsNegative() {
		return domain.Payout{}, domain.ErrInvalidAmount
	}
	if req.Amount.LessThan(MinimumPayout) {
		return domain.Payout{}, domain.ErrBelowMinimum
	}

	// Mature anything whose hold window has lapsed so the balance check
	// sees today's truth, not the last access's.
	if _, err := s.clearing.ClearPending(ctx, req.AffiliateID); err != nil {
		return domain.Payout{}, err
	}

	now := s.clock.Now()
	payout := domain.Payout{
		ID:          s.genID.Generate(),
		AffiliateID: req.AffiliateID,
		Amount:      req.Amount.Round(2),
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affiliate, err := s.affRepo.FindByID(ctx, tx, req.AffiliateID)
		if err != nil {
			return err
		}
		if affiliate == nil {
			return affdomain.ErrNotFound
		}
		if payout.Amount.GreaterThan(affiliate.AvailableBalance) {
			return domain.ErrInsufficientBalance
		}

		if err := s.repo.Insert(ctx, tx, &payout); err != nil {
			return err
		}
		// The new reservation lowers available balance immediately.
		available := affiliate.AvailableBalance.Sub(payout.Amount)
		return s.affRepo.UpdateBalances(ctx, tx, affiliate.ID, affiliate.PendingEarnings, available, affiliate.TotalEarnings)
	})
	if err != nil {
		return domain.Payout{}, err
	}

	if s.metrics != nil {
		s.metrics.PayoutsRequested.Inc()
	}
	s.log.Info("payout requested",
		zap.String("payout_id", payout.ID.String()),
		zap.String("affiliate_id", req.AffiliateID.String()),
		zap.String("amount", payout.Amount.StringFixed(2)),
	)
	return payout, nil
}

func (s *Service) List(ctx context.Context, affiliateID snowflake.ID) ([]domain.Payout, error) {
	rows, err := s.repo.ListByAffiliate(ctx, s.db, affiliateID)
	if err != nil {
		return nil, err
	}
	payouts := make([]domain.Payout, 0, len(rows))
	for _, row := range rows {
		payouts = append(payouts, *row)
	}
	return payouts, nil
}

func (s *Service) Complete(ctx context.Context, id string) (domain.Payout, error) {
	payoutID, err := parseID(id)
	if err != nil {
		return domain.Payout{}, err
	}

	now := s.clock.Now()
	var payout *domain.Payout
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payout, err = s.repo.FindByID(ctx, tx, payoutID)
		if err != nil {
			return err
		}
		if payout == nil {
			return domain.ErrNotFound
		}

		n, err := s.repo.UpdateStatus(ctx, tx, payoutID,
			[]domain.Status{domain.StatusPending, domain.StatusProcessing},
			domain.StatusCompleted, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrInvalidTransition
		}

		if err := s.settle(ctx, tx, payout); err != nil {
			return err
		}

		payout.Status = domain.StatusCompleted
		payout.ProcessedAt = &now
		payout.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Payout{}, err
	}

	if _, err := s.clearing.Recompute(ctx, payout.AffiliateID); err != nil {
		return domain.Payout{}, err
	}

	s.log.Info("payout completed",
		zap.String("payout_id", payout.ID.String()),
		zap.String("amount", payout.Amount.StringFixed(2)),
	)
	return *payout, nil
}

func (s *Service) Fail(ctx context.Context, id string) (domain.Payout, error) {
	payoutID, err := parseID(id)
	if err != nil {
		return domain.Payout{}, err
	}

	now := s.clock.Now()
	var payout *domain.Payout
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payout, err = s.repo.FindByID(ctx, tx, payoutID)
		if err != nil {
			return err
		}
		if payout == nil {
			return domain.ErrNotFound
		}

		n, err := s.repo.UpdateStatus(ctx, tx, payoutID,
			[]domain.Status{domain.StatusPending, domain.StatusProcessing},
			domain.StatusFailed, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrInvalidTransition
		}

		payout.Status = domain.StatusFailed
		payout.ProcessedAt = &now
		payout.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Payout{}, err
	}

	// Dropping the reservation restores the amount to available balance.
	if _, err := s.clearing.Recompute(ctx, payout.AffiliateID); err != nil {
		return domain.Payout{}, err
	}

	s.log.Info("payout failed",
		zap.String("payout_id", payout.ID.String()),
		zap.String("amount", payout.Amount.StringFixed(2)),
	)
	return *payout, nil
}

// settle marks the oldest cleared conversions paid up to the payout amount.
// A conversion that would overshoot stays cleared. Whatever the payout
// amount exceeds the settled sum by has no ledger rows to mark; the balance
// recompute keeps that remainder debited as the completed-minus-paid gap.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, payout *domain.Payout) error {
	rows, err := s.convRepo.ListClearedOldestFirst(ctx, tx, payout.AffiliateID)
	if err != nil {
		return err
	}

	remaining := payout.Amount
	var ids []snowflake.ID
	for _, row := range rows {
		if row.CommissionAmount.GreaterThan(remaining) {
			break
		}
		ids = append(ids, row.ID)
		remaining = remaining.Sub(row.CommissionAmount)
	}
	if len(ids) == 0 {
		return nil
	}
	return s.convRepo.MarkPaid(ctx, tx, ids, s.clock.Now())
}

func parseID(id string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return 0, domain.ErrInvalidID
	}
	return parsed, nil
}
