package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/affiliate/internal/affiliate/domain"
	"github.com/smallbiznis/affiliate/internal/affiliate/repository"
	"github.com/smallbiznis/affiliate/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Affiliate{}, &domain.Adjustment{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := &Service{
		db:    db,
		log:   zap.NewNop(),
		genID: node,
		clock: fake,
		repo:  repository.Provide(),
	}
	return svc, db, fake
}

func TestEnroll(t *testing.T) {
	svc, _, fake := newTestService(t)
	ctx := context.Background()

	affiliate, err := svc.Enroll(ctx, domain.EnrollRequest{
		DisplayName: "Jane Doe",
		Email:       "Jane@Example.com",
	})
	require.NoError(t, err)

	assert.NotZero(t, affiliate.ID)
	assert.True(t, ValidCode(affiliate.Code))
	assert.Equal(t, "JANE", affiliate.Code[:4])
	assert.Equal(t, "jane@example.com", affiliate.Email)
	assert.Equal(t, domain.StatusActive, affiliate.Status)
	assert.Equal(t, domain.TierStarter, affiliate.Tier)
	assert.True(t, affiliate.CommissionRate.Equal(domain.TierStarter.PublishedRate()))
	assert.Equal(t, fake.Now(), affiliate.LastMonthResetAt)
	assert.Zero(t, affiliate.TotalConversions)
	assert.True(t, affiliate.AvailableBalance.IsZero())
}

func TestEnrollValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, domain.EnrollRequest{DisplayName: "  ", Email: "a@b.com"})
	assert.ErrorIs(t, err, domain.ErrInvalidDisplayName)

	_, err = svc.Enroll(ctx, domain.EnrollRequest{DisplayName: "Jane", Email: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	_, err = svc.Enroll(ctx, domain.EnrollRequest{DisplayName: "Jane", Email: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)
}

func TestEnrollDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, domain.EnrollRequest{DisplayName: "Jane", Email: "jane@example.com"})
	require.NoError(t, err)

	_, err = svc.Enroll(ctx, domain.EnrollRequest{DisplayName: "Janet", Email: "JANE@example.com"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestEnrollCodesAreUnique(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		affiliate, err := svc.Enroll(ctx, domain.EnrollRequest{
			DisplayName: "Jane",
			Email:       "jane" + string(rune('a'+i)) + "@example.com",
		})
		require.NoError(t, err)
		assert.False(t, seen[affiliate.Code], "code %s issued twice", affiliate.Code)
		seen[affiliate.Code] = true
	}
}

func TestGetByCode(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	enrolled, err := svc.Enroll(ctx, domain.EnrollRequest{DisplayName: "Jane", Email: "jane@example.com"})
	require.NoError(t, err)

	t.Run("case insensitive lookup", func(t *testing.T) {
		found, err := svc.GetByCode(ctx, "  "+enrolled.Code+" ")
		require.NoError(t, err)
		assert.Equal(t, enrolled.ID, found.ID)
	})

	t.Run("malformed code", func(t *testing.T) {
		_, err := svc.GetByCode(ctx, "not a code")
		assert.ErrorIs(t, err, domain.ErrInvalidCode)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := svc.GetByCode(ctx, "NOBODY-AAAA")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestDeactivate(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	enrolled, err := svc.Enroll(ctx, domain.EnrollRequest{DisplayName: "Jane", Email: "jane@example.com"})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, enrolled.ID.String()))

	var stored domain.Affiliate
	require.NoError(t, db.Where("id = ?", enrolled.ID).Take(&stored).Error)
	assert.Equal(t, domain.StatusInactive, stored.Status)
}
