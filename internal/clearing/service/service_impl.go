package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	affdomain "github.com/smallbiznis/affiliate/internal/affiliate/domain"
	"github.com/smallbiznis/affiliate/internal/clearing/domain"
	"github.com/smallbiznis/affiliate/internal/clock"
	convdomain "github.com/smallbiznis/affiliate/internal/conversion/domain"
	obsmetrics "github.com/smallbiznis/affiliate/internal/observability/metrics"
	payoutdomain "github.com/smallbiznis/affiliate/internal/payout/domain"
	tierdomain "github.com/smallbiznis/affiliate/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HoldPeriod is the fixed window a commission stays pending before it can
// clear, covering the storefront's refund window.
const HoldPeriod = 30 * 24 * time.Hour

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	ConvRepo   convdomain.Repository
	AffRepo    affdomain.Repository
	PayoutRepo payoutdomain.Repository
	TierSvc    tierdomain.Service
	Metrics    *obsmetrics.Metrics
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	convRepo   convdomain.Repository
	affRepo    affdomain.Repository
	payoutRepo payoutdomain.Repository
	tierSvc    tierdomain.Service
	metrics    *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("clearing.service"),
		clock:      p.Clock,
		convRepo:   p.ConvRepo,
		affRepo:    p.AffRepo,
		payoutRepo: p.PayoutRepo,
		tierSvc:    p.TierSvc,
		metrics:    p.Metrics,
	}
}

func (s *Service) ClearPending(ctx context.Context, affiliateID snowflake.ID) (domain.ClearResult, error) {
	now := s.clock.Now()
	cutoff := now.Add(-HoldPeriod)

	var cleared int64
	var balances domain.Balances
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := s.convRepo.PromotePending(ctx, tx, affiliateID, cutoff, now)
		if err != nil {
			return err
		}
		cleared = n

		balances, err = s.recompute(ctx, tx, affiliateID)
		return err
	})
	if err != nil {
		return domain.ClearResult{}, err
	}

	if cleared > 0 {
		if s.metrics != nil {
			s.metrics.ConversionsCleared.Add(float64(cleared))
		}
		s.log.Info("conversions cleared",
			zap.String("affiliate_id", affiliateID.String()),
			zap.Int64("cleared_count", cleared),
			zap.String("available_balance", balances.AvailableBalance.StringFixed(2)),
		)

		// Post-clear hook: cleared conversions may push the affiliate over
		// a tier threshold.
		if _, err := s.tierSvc.CheckAndUpgrade(ctx, affiliateID); err != nil {
			s.log.Warn("tier upgrade check failed",
				zap.String("affiliate_id", affiliateID.String()),
				zap.Error(err),
			)
		}
	}

	return domain.ClearResult{
		ClearedCount:     cleared,
		PendingEarnings:  balances.PendingEarnings,
		AvailableBalance: balances.AvailableBalance,
	}, nil
}

func (s *Service) Recompute(ctx context.Context, affiliateID snowflake.ID) (domain.Balances, error) {
	var balances domain.Balances
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		balances, err = s.recompute(ctx, tx, affiliateID)
		return err
	})
	return balances, err
}

func (s *Service) Void(ctx context.Context, conversionID snowflake.ID, reason string) error {
	now := s.clock.Now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conversion, err := s.convRepo.FindByID(ctx, tx, conversionID)
		if err != nil {
			return err
		}
		if conversion == nil {
			return convdomain.ErrNotFound
		}

		n, err := s.convRepo.MarkVoided(ctx, tx, conversionID, reason, now)
		if err != nil {
			return err
		}
		// Guard failed: the row is paid or already voided.
		if n == 0 {
			return convdomain.ErrInvalidStateTransition
		}

		// The lifetime count only covers non-voided conversions.
		if err := s.affRepo.DecrementTotalConversions(ctx, tx, conversion.AffiliateID); err != nil {
			return err
		}

		_, err = s.recompute(ctx, tx, conversion.AffiliateID)
		return err
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.ConversionsVoided.Inc()
	}
	s.log.Info("conversion voided",
		zap.String("conversion_id", conversionID.String()),
		zap.String("reason", reason),
	)
	return nil
}

// recompute rederives every balance aggregate from the conversion, payout
// and adjustment tables. Stored balances are replaced wholesale so they can
// never drift from the ledger, whatever sequence of void and payout edge
// cases preceded the call.
func (s *Service) recompute(ctx context.Context, tx *gorm.DB, affiliateID snowflake.ID) (domain.Balances, error) {
	pending, err := s.convRepo.SumAmountByStatus(ctx, tx, affiliateID, convdomain.StatusPending)
	if err != nil {
		return domain.Balances{}, err
	}
	cleared, err := s.convRepo.SumAmountByStatus(ctx, tx, affiliateID, convdomain.StatusCleared)
	if err != nil {
		return domain.Balances{}, err
	}
	paid, err := s.convRepo.SumAmountByStatus(ctx, tx, affiliateID, convdomain.StatusPaid)
	if err != nil {
		return domain.Balances{}, err
	}
	reserved, err := s.payoutRepo.SumReserved(ctx, tx, affiliateID)
	if err != nil {
		return domain.Balances{}, err
	}
	completed, err := s.payoutRepo.SumCompleted(ctx, tx, affiliateID)
	if err != nil {
		return domain.Balances{}, err
	}
	adjustments, err := s.affRepo.SumAdjustments(ctx, tx, affiliateID)
	if err != nil {
		return domain.Balances{}, err
	}

	// Completed payouts beyond what settlement marked paid still left the
	// program as real money. That remainder stays debited, it must never
	// reappear as available balance.
	unsettled := completed.Sub(paid)
	if unsettled.IsNegative() {
		unsettled = decimal.Zero
	}

	available := cleared.Add(adjustments).Sub(reserved).Sub(unsettled)
	if available.IsNegative() {
		available = decimal.Zero
	}

	balances := domain.Balances{
		PendingEarnings:  pending,
		ClearedEarnings:  cleared,
		ReservedPayouts:  reserved,
		Adjustments:      adjustments,
		AvailableBalance: available,
		TotalEarnings:    cleared.Add(paid).Add(adjustments),
	}

	if err := s.affRepo.UpdateBalances(ctx, tx, affiliateID, balances.PendingEarnings, balances.AvailableBalance, balances.TotalEarnings); err != nil {
		return domain.Balances{}, err
	}
	return balances, nil
}
