package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	affdomain "github.com/smallbiznis/affiliate/internal/affiliate/domain"
	affrepository "github.com/smallbiznis/affiliate/internal/affiliate/repository"
	clearingservice "github.com/smallbiznis/affiliate/internal/clearing/service"
	"github.com/smallbiznis/affiliate/internal/clock"
	convdomain "github.com/smallbiznis/affiliate/internal/conversion/domain"
	convrepository "github.com/smallbiznis/affiliate/internal/conversion/repository"
	"github.com/smallbiznis/affiliate/internal/payout/domain"
	"github.com/smallbiznis/affiliate/internal/payout/repository"
	tierdomain "github.com/smallbiznis/affiliate/internal/tier/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type tierStub struct{}

func (tierStub) CheckAndReset(ctx context.Context, affiliateID snowflake.ID) (tierdomain.ResetResult, error) {
	return tierdomain.ResetResult{}, nil
}

func (tierStub) OnNewSale(ctx context.Context, affiliateID snowflake.ID) error {
	return nil
}

func (tierStub) CheckAndUpgrade(ctx context.Context, affiliateID snowflake.ID) (tierdomain.UpgradeResult, error) {
	return tierdomain.UpgradeResult{}, nil
}

type fixture struct {
	svc       *Service
	db        *gorm.DB
	node      *snowflake.Node
	clock     *clock.FakeClock
	affiliate affdomain.Affiliate
}

// newFixture wires the payout service against a real clearing engine so
// reservation and settlement effects show up in recomputed balances the same
// way they do in production.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&affdomain.Affiliate{},
		&affdomain.Adjustment{},
		&convdomain.Conversion{},
		&domain.Payout{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))

	affiliate := affdomain.Affiliate{
		ID:               node.Generate(),
		Code:             "JANE-X7K2",
		DisplayName:      "Jane",
		Email:            "jane@example.com",
		Status:           affdomain.StatusActive,
		Tier:             affdomain.TierStarter,
		CommissionRate:   affdomain.TierStarter.PublishedRate(),
		LastMonthResetAt: fake.Now(),
	}
	require.NoError(t, db.Create(&affiliate).Error)

	affRepo := affrepository.Provide()
	convRepo := convrepository.Provide()
	payoutRepo := repository.Provide()

	clearing := clearingservice.New(clearingservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		Clock:      fake,
		ConvRepo:   convRepo,
		AffRepo:    affRepo,
		PayoutRepo: payoutRepo,
		TierSvc:    tierStub{},
	})

	svc := &Service{
		db:       db,
		log:      zap.NewNop(),
		genID:    node,
		clock:    fake,
		repo:     payoutRepo,
		affRepo:  affRepo,
		convRepo: convRepo,
		clearing: clearing,
	}
	return &fixture{svc: svc, db: db, node: node, clock: fake, affiliate: affiliate}
}

// seedCleared inserts a conversion old enough to have cleared and refreshes
// the stored balances through the clearing engine.
func (f *fixture) seedCleared(t *testing.T, amounts ...int64) {
	t.Helper()
	now := f.clock.Now()
	for i, amount := range amounts {
		purchased := now.Add(-clearingservice.HoldPeriod - time.Duration(len(amounts)-i)*time.Hour)
		conversion := convdomain.Conversion{
			ID:               f.node.Generate(),
			AffiliateID:      f.affiliate.ID,
			OrderID:          "ord_" + f.node.Generate().String(),
			OrderSubtotal:    decimal.NewFromInt(amount * 5),
			CommissionRate:   decimal.NewFromFloat(0.20),
			CommissionAmount: decimal.NewFromInt(amount),
			Status:           convdomain.StatusPending,
			PurchasedAt:      purchased,
			CreatedAt:        purchased,
			UpdatedAt:        purchased,
		}
		require.NoError(t, f.db.Create(&conversion).Error)
	}
	_, err := f.svc.clearing.ClearPending(context.Background(), f.affiliate.ID)
	require.NoError(t, err)
}

func (f *fixture) reload(t *testing.T) affdomain.Affiliate {
	t.Helper()
	var stored affdomain.Affiliate
	require.NoError(t, f.db.Where("id = ?", f.affiliate.ID).Take(&stored).Error)
	return stored
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Request(ctx, domain.RequestPayoutRequest{
		AffiliateID: f.affiliate.ID,
		Amount:      decimal.Zero,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.Request(ctx, domain.RequestPayoutRequest{
		AffiliateID: f.affiliate.ID,
		Amount:      decimal.NewFromInt(-10),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.Request(ctx, domain.RequestPayoutRequest{
		AffiliateID: f.affiliate.ID,
		Amount:      decimal.NewFromFloat(24.99),
	})
	assert.ErrorIs(t, err, domain.ErrBelowMinimum)
}

func TestRequestInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.seedCleared(t, 30)

	_, err := f.svc.Request(context.Background(), domain.RequestPayoutRequest{
		AffiliateID: f.affiliate.ID,
		Amount:      decimal.NewFromInt(31),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	var count int64
	require.NoError(t, f.db.Model(&domain.Payout{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRequestReservesBalance(t *testing.T) {
	f := newFixture(t)
	f.seedCleared(t, 40, 20)

	payout, err := f.svc.Request(context.Background(), domain.RequestPayoutRequest{
		AffiliateID: f.affiliate.ID,
		Amount:      decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, payout.Status)
	assert.True(t, payout.Amount.Equal(decimal.NewFromInt(50)))

	stored := f.reload(t)
	assert.True(t, stored.AvailableBalance.Equal(decimal.NewFromInt(10)),
		"available %s", stored.AvailableBalance)

	// The reservation alone blocks a second request for more than the rest.
	_, err = f.svc.Request(context.Background(), domain.RequestPayoutRequest{
		AffiliateID: f.affiliate.ID,
		Amount:      decimal.NewFromInt(25),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestRequestClearsMaturedConversionsFirst(t *testing.T) {
	f := newFixture(t)

	// Still pending at insert time, but past its hold window.
	now := f.clock.Now()
	conversion := convdomain.Conversion{
		ID:               f.node.Generate(),
		AffiliateID:      f.affiliate.ID,
		OrderID:          "ord_mature",
		OrderSubtotal:    decimal.NewFromInt(150),
		CommissionRate:   decimal.NewFromFloat(0.20),
		CommissionAmount: decimal.NewFromInt(30),
		Status:           convdomain.StatusPending,
		PurchasedAt:      now.Add(-clearingservice.HoldPeriod - time.Hour),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, f.db.Create(&conversion).Error)

	payout, err := f.svc.Request(context.Background(), domain.RequestPayoutRequest{
		AffiliateID: f.affiliate.ID,
		Amount:      decimal.NewFromInt(30),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, payout.Status)
}

func TestCompleteSettlesOldestConversions(t *testing.T) {
	f := newFixture(t)
	f.seedCleared(t, 20, 15, 25)

	payout, err := f.svc.Request(context.Background(), domain.RequestPayoutRequest{
		AffiliateID: f.affiliate.ID,
		Amount:      decimal.NewFromInt(40),
	})
	require.NoError(t, err)

	completed, err := f.svc.Complete(context.Background(), payout.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
	require.NotNil(t, completed.ProcessedAt)

	// Oldest first: 20 and 15 fit inside 40, the 25 would overshoot the
	// remaining 5 and stays cleared.
	var paid, cleared int64
	require.NoError(t, f.db.Model(&convdomain.Conversion{}).
		Where("affiliate_id = ? AND status = ?", f.affiliate.ID, convdomain.StatusPaid).
		Count(&paid).Error)
	require.NoError(t, f.db.Model(&convdomain.Conversion{}).
		Where("affiliate_id = ? AND status = ?", f.affiliate.ID, convdomain.StatusCleared).
		Count(&cleared).Error)
	assert.Equal(t, int64(2), paid)
	assert.Equal(t, int64(1), cleared)

	stored := f.reload(t)
	// Of the 40 paid out only 35 matched conversion rows; the unmatched 5
	// stays debited. available = cleared 25 - 5.
	assert.True(t, stored.AvailableBalance.Equal(decimal.NewFromInt(20)),
		"available %s", stored.AvailableBalance)
	// total = cleared 25 + paid 35
	assert.True(t, stored.TotalEarnings.Equal(decimal.NewFromInt(60)),
		"total %s", stored.TotalEarnings)
}

func TestCompleteNeverRestoresPaidOutMoney(t *testing.T) {
	f := newFixture(t)
	f.seedCleared(t, 30)

	payout, err := f.svc.Request(context.Background(), domain.RequestPayoutRequest{
		AffiliateID: f.affiliate.ID,
		Amount:      decimal.NewFromInt(25),
	})
	require.NoError(t, err)
	require.True(t, f.reload(t).AvailableBalance.Equal(decimal.NewFromInt(5)))

	// The single 30 conversion overshoots the 25, so settlement marks
	// nothing paid. Completion must not hand the 25 back.
	_, err = f.svc.Complete(context.Background(), payout.ID.String())
	require.NoError(t, err)

	var cleared int64
	require.NoError(t, f.db.Model(&convdomain.Conversion{}).
		Where("affiliate_id = ? AND status = ?", f.affiliate.ID, convdomain.StatusCleared).
		Count(&cleared).Error)
	assert.Equal(t, int64(1), cleared)

	stored := f.reload(t)
	assert.True(t, stored.AvailableBalance.Equal(decimal.NewFromInt(5)),
		"available %s", stored.AvailableBalance)
	assert.True(t, stored.TotalEarnings.Equal(decimal.NewFromInt(30)))
}

func TestFailRestoresBalance(t *testing.T) {
	f := newFixture(t)
	f.seedCleared(t, 60)

	payout, err := f.svc.Request(context.Background(), domain.RequestPayoutRequest{
		AffiliateID: f.affiliate.ID,
		Amount:      decimal.NewFromInt(60),
	})
	require.NoError(t, err)
	require.True(t, f.reload(t).AvailableBalance.IsZero())

	failed, err := f.svc.Fail(context.Background(), payout.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, failed.Status)

	stored := f.reload(t)
	assert.True(t, stored.AvailableBalance.Equal(decimal.NewFromInt(60)))

	var count int64
	require.NoError(t, f.db.Model(&convdomain.Conversion{}).
		Where("affiliate_id = ? AND status = ?", f.affiliate.ID, convdomain.StatusPaid).
		Count(&count).Error)
	assert.Zero(t, count, "failed payouts settle nothing")
}

func TestCompleteRejectsTerminalStates(t *testing.T) {
	f := newFixture(t)
	f.seedCleared(t, 30)

	payout, err := f.svc.Request(context.Background(), domain.RequestPayoutRequest{
		AffiliateID: f.affiliate.ID,
		Amount:      decimal.NewFromInt(30),
	})
	require.NoError(t, err)

	_, err = f.svc.Complete(context.Background(), payout.ID.String())
	require.NoError(t, err)

	_, err = f.svc.Complete(context.Background(), payout.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.svc.Fail(context.Background(), payout.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCompleteUnknownAndMalformedIDs(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Complete(context.Background(), "not-a-number")
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = f.svc.Complete(context.Background(), f.node.Generate().String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListReturnsNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.seedCleared(t, 100)

	first, err := f.svc.Request(context.Background(), domain.RequestPayoutRequest{
		AffiliateID: f.affiliate.ID,
		Amount:      decimal.NewFromInt(25),
	})
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	second, err := f.svc.Request(context.Background(), domain.RequestPayoutRequest{
		AffiliateID: f.affiliate.ID,
		Amount:      decimal.NewFromInt(30),
	})
	require.NoError(t, err)

	payouts, err := f.svc.List(context.Background(), f.affiliate.ID)
	require.NoError(t, err)
	require.Len(t, payouts, 2)
	assert.Equal(t, second.ID, payouts[0].ID)
	assert.Equal(t, first.ID, payouts[1].ID)
}
