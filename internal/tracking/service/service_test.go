package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/oklog/ulid/v2"
	affdomain "github.com/smallbiznis/affiliate/internal/affiliate/domain"
	affrepository "github.com/smallbiznis/affiliate/internal/affiliate/repository"
	"github.com/smallbiznis/affiliate/internal/clock"
	"github.com/smallbiznis/affiliate/internal/tracking/domain"
	"github.com/smallbiznis/affiliate/internal/tracking/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, snowflake.ID) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&affdomain.Affiliate{}, &domain.Click{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	affiliate := affdomain.Affiliate{
		ID:               node.Generate(),
		Code:             "JANE-X7K2",
		DisplayName:      "Jane",
		Email:            "jane@example.com",
		Status:           affdomain.StatusActive,
		Tier:             affdomain.TierStarter,
		CommissionRate:   affdomain.TierStarter.PublishedRate(),
		LastMonthResetAt: time.Now().UTC(),
	}
	require.NoError(t, db.Create(&affiliate).Error)

	svc := &Service{
		db:      db,
		log:     zap.NewNop(),
		genID:   node,
		clock:   clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)),
		repo:    repository.Provide(),
		affRepo: affrepository.Provide(),
	}
	return svc, db, affiliate.ID
}

func TestAttributeClick(t *testing.T) {
	svc, db, affiliateID := newTestService(t)
	ctx := context.Background()

	click, err := svc.AttributeClick(ctx, domain.AttributeClickRequest{
		AffiliateID: int64(affiliateID),
		SessionID:   "01HZXK5T9GQ4R8W2N6M3P7V1BC",
		IP:          "203.0.113.7",
		UserAgent:   "Mozilla/5.0",
		Referrer:    "https://blog.example.com/post",
		LandingPage: "https://shop.example.com",
	})
	require.NoError(t, err)

	assert.NotZero(t, click.ID)
	assert.Equal(t, affiliateID, click.AffiliateID)
	assert.NotEmpty(t, click.IPHash)
	assert.NotEqual(t, "203.0.113.7", click.IPHash)
	assert.Nil(t, click.ConvertedAt)

	var stored affdomain.Affiliate
	require.NoError(t, db.Where("id = ?", affiliateID).Take(&stored).Error)
	assert.Equal(t, int64(1), stored.TotalClicks)
}

func TestAttributeClickDedupPerSession(t *testing.T) {
	svc, db, affiliateID := newTestService(t)
	ctx := context.Background()

	req := domain.AttributeClickRequest{
		AffiliateID: int64(affiliateID),
		SessionID:   "01HZXK5T9GQ4R8W2N6M3P7V1BC",
		IP:          "203.0.113.7",
	}

	first, err := svc.AttributeClick(ctx, req)
	require.NoError(t, err)

	// A refresh with the same session returns the original click and does
	// not inflate the counter.
	second, err := svc.AttributeClick(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var stored affdomain.Affiliate
	require.NoError(t, db.Where("id = ?", affiliateID).Take(&stored).Error)
	assert.Equal(t, int64(1), stored.TotalClicks)

	var count int64
	require.NoError(t, db.Model(&domain.Click{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAttributeClickValidation(t *testing.T) {
	svc, _, affiliateID := newTestService(t)
	ctx := context.Background()

	_, err := svc.AttributeClick(ctx, domain.AttributeClickRequest{
		AffiliateID: 0,
		SessionID:   "01HZXK5T9GQ4R8W2N6M3P7V1BC",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAffiliate)

	_, err = svc.AttributeClick(ctx, domain.AttributeClickRequest{
		AffiliateID: int64(affiliateID),
		SessionID:   "   ",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
}

func TestNewSessionID(t *testing.T) {
	svc, _, _ := newTestService(t)

	id := svc.NewSessionID()
	_, err := ulid.ParseStrict(id)
	assert.NoError(t, err)

	assert.NotEqual(t, id, svc.NewSessionID())
}

func TestHashIP(t *testing.T) {
	assert.Empty(t, HashIP(""))
	assert.Empty(t, HashIP("   "))

	h := HashIP("203.0.113.7")
	assert.Len(t, h, ipHashLen)
	assert.Equal(t, h, HashIP("203.0.113.7"))
	assert.NotEqual(t, h, HashIP("203.0.113.8"))
}
