package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	affdomain "github.com/smallbiznis/affiliate/internal/affiliate/domain"
	"github.com/smallbiznis/affiliate/internal/clock"
	obsmetrics "github.com/smallbiznis/affiliate/internal/observability/metrics"
	"github.com/smallbiznis/affiliate/internal/providers/email"
	"github.com/smallbiznis/affiliate/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// monthKeyLayout identifies a calendar month in UTC.
	monthKeyLayout = "2006-01"

	activeConversionThreshold = 3
	partnerMonthlySales       = 10
	partnerQualifyingStreak   = 2

	rewardSalesThreshold = 3
)

// rewardAmount is the flat monthly volume bonus.
var rewardAmount = decimal.NewFromInt(50)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	AffRepo affdomain.Repository
	Email   email.Provider
	Metrics *obsmetrics.Metrics
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	affRepo affdomain.Repository
	email   email.Provider
	metrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("tier.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		affRepo: p.AffRepo,
		email:   p.Email,
		metrics: p.Metrics,
	}
}

func (s *Service) CheckAndReset(ctx context.Context, affiliateID snowflake.ID) (domain.ResetResult, error) {
	now := s.clock.Now()

	var result domain.ResetResult
	var affiliate *affdomain.Affiliate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		affiliate, err = s.affRepo.FindByID(ctx, tx, affiliateID)
		if err != nil {
			return err
		}
		if affiliate == nil {
			return affdomain.ErrNotFound
		}

		currentKey := now.UTC().Format(monthKeyLayout)
		counterKey := affiliate.LastMonthResetAt.UTC().Format(monthKeyLayout)
		if currentKey == counterKey {
			return nil
		}
		result.Rolled = true

		// The counters accumulated in the month of the last reset. That
		// month is the one being settled now.
		finishedSales := affiliate.CurrentMonthSales

		if finishedSales >= rewardSalesThreshold && affiliate.LastRewardMonth != counterKey {
			adjustment := affdomain.Adjustment{
				ID:          s.genID.Generate(),
				AffiliateID: affiliate.ID,
				Amount:      rewardAmount,
				Kind:        affdomain.AdjustmentKindMonthlyReward,
				Note:        fmt.Sprintf("volume reward for %s (%d sales)", counterKey, finishedSales),
				CreatedAt:   now,
			}
			if err := s.affRepo.InsertAdjustment(ctx, tx, &adjustment); err != nil {
				return err
			}
			affiliate.AvailableBalance = affiliate.AvailableBalance.Add(rewardAmount)
			affiliate.LastRewardMonth = counterKey
			result.RewardGranted = true
			result.RewardAmount = rewardAmount
		}

		if finishedSales >= partnerMonthlySales {
			affiliate.PartnerQualifyingMonths++
		} else {
			affiliate.PartnerQualifyingMonths = 0
		}
		// Months with no activity at all never reach this code while they
		// are current, so a gap longer than one month means at least one
		// zero-sale month sat between the counters and today.
		if monthsApart(affiliate.LastMonthResetAt, now) > 1 {
			affiliate.PartnerQualifyingMonths = 0
		}

		affiliate.LastMonthSales = finishedSales
		affiliate.CurrentMonthSales = 0
		affiliate.LastMonthResetAt = now

		return s.affRepo.SaveMonthlyRollover(ctx, tx, affiliate)
	})
	if err != nil {
		return domain.ResetResult{}, err
	}

	if result.RewardGranted {
		if s.metrics != nil {
			s.metrics.RewardsGranted.Inc()
		}
		s.log.Info("monthly reward granted",
			zap.String("affiliate_id", affiliateID.String()),
			zap.String("amount", result.RewardAmount.StringFixed(2)),
		)
		s.notify(ctx, affiliate,
			"You earned a monthly volume bonus",
			fmt.Sprintf("<p>Hi %s,</p><p>Your sales last month earned you a $%s bonus. It has been added to your available balance.</p>",
				affiliate.DisplayName, result.RewardAmount.StringFixed(2)),
		)
	}
	return result, nil
}

func (s *Service) OnNewSale(ctx context.Context, affiliateID snowflake.ID) error {
	if _, err := s.CheckAndReset(ctx, affiliateID); err != nil {
		return err
	}
	if err := s.affRepo.IncrementMonthSales(ctx, s.db, affiliateID); err != nil {
		return err
	}
	_, err := s.CheckAndUpgrade(ctx, affiliateID)
	return err
}

func (s *Service) CheckAndUpgrade(ctx context.Context, affiliateID snowflake.ID) (domain.UpgradeResult, error) {
	// Roll the month first so the qualifying streak the upgrade reads is
	// current. Same-month calls make this a no-op.
	if _, err := s.CheckAndReset(ctx, affiliateID); err != nil {
		return domain.UpgradeResult{}, err
	}

	var result domain.UpgradeResult
	var affiliate *affdomain.Affiliate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		affiliate, err = s.affRepo.FindByID(ctx, tx, affiliateID)
		if err != nil {
			return err
		}
		if affiliate == nil {
			return affdomain.ErrNotFound
		}

		target := nextTier(affiliate)
		if target == affiliate.Tier {
			return nil
		}

		result = domain.UpgradeResult{
			Upgraded: true,
			OldTier:  affiliate.Tier,
			NewTier:  target,
			NewRate:  target.PublishedRate(),
		}
		return s.affRepo.UpdateTier(ctx, tx, affiliate.ID, target, result.NewRate)
	})
	if err != nil {
		return domain.UpgradeResult{}, err
	}

	if result.Upgraded {
		if s.metrics != nil {
			s.metrics.TierUpgrades.WithLabelValues(string(result.NewTier)).Inc()
		}
		s.log.Info("tier upgraded",
			zap.String("affiliate_id", affiliateID.String()),
			zap.String("old_tier", string(result.OldTier)),
			zap.String("new_tier", string(result.NewTier)),
		)
		s.notify(ctx, affiliate,
			fmt.Sprintf("You reached the %s tier", result.NewTier),
			fmt.Sprintf("<p>Hi %s,</p><p>Congratulations, you are now a %s affiliate. Your commission rate is %s%% from here on.</p>",
				affiliate.DisplayName, result.NewTier, result.NewRate.Mul(decimal.NewFromInt(100)).StringFixed(0)),
		)
	}
	return result, nil
}

// nextTier returns the highest tier the affiliate currently qualifies for,
// never below the current one. Tiers are forward-only, so demotion criteria
// are deliberately absent.
func nextTier(affiliate *affdomain.Affiliate) affdomain.Tier {
	if affiliate.Tier == affdomain.TierPartner {
		return affdomain.TierPartner
	}
	if affiliate.PartnerQualifyingMonths >= partnerQualifyingStreak {
		return affdomain.TierPartner
	}
	if affiliate.Tier == affdomain.TierActive {
		return affdomain.TierActive
	}
	if affiliate.TotalConversions >= activeConversionThreshold {
		return affdomain.TierActive
	}
	return affiliate.Tier
}

// monthsApart counts whole calendar-month boundaries between two instants.
func monthsApart(from, to time.Time) int {
	from, to = from.UTC(), to.UTC()
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

func (s *Service) notify(ctx context.Context, affiliate *affdomain.Affiliate, subject, body string) {
	if err := s.email.Send(ctx, []string{affiliate.Email}, subject, body); err != nil {
		s.log.Warn("notification send failed",
			zap.String("affiliate_id", affiliate.ID.String()),
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}
