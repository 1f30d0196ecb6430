package server

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/affiliate/internal/affctx"
	affdomain "github.com/smallbiznis/affiliate/internal/affiliate/domain"
	"github.com/smallbiznis/affiliate/internal/observability/logger"
	payoutdomain "github.com/smallbiznis/affiliate/internal/payout/domain"
	"go.uber.org/zap"
)

type dashboardResponse struct {
	Affiliate affdomain.Affiliate   `json:"affiliate"`
	Payouts   []payoutdomain.Payout `json:"payouts"`
}

// GetDashboard returns the affiliate's current standing. Settlement runs
// lazily on access: the month rollover and hold-window clearing both happen
// here before the row is read, so the numbers shown are always current even
// though no scheduler exists.
func (s *Server) GetDashboard(c *gin.Context) {
	ctx := c.Request.Context()
	affiliateID, ok := affctx.AffiliateIDFromContext(ctx)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.settle(ctx, affiliateID); err != nil {
		AbortWithError(c, err)
		return
	}

	affiliate, err := s.affiliateSvc.GetByID(ctx, affiliateID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payouts, err := s.payoutSvc.List(ctx, affiliateID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dashboardResponse{
		Affiliate: affiliate,
		Payouts:   payouts,
	})
}

// settle runs the lazy month rollover and clearing pass. When rate limiting
// is enabled the pass is serialized per affiliate across instances; losing
// the race just means another request is settling the same affiliate right
// now, so skipping is safe.
func (s *Server) settle(ctx context.Context, affiliateID snowflake.ID) error {
	if s.clickLimiter.Enabled() {
		token, acquired, err := s.clickLimiter.TryLockSettlement(ctx, affiliateID.String())
		if err != nil {
			logger.FromContext(ctx).Warn("settlement lock failed", zap.Error(err))
		} else if !acquired {
			return nil
		} else {
			defer func() {
				if err := s.clickLimiter.ReleaseSettlement(ctx, affiliateID.String(), token); err != nil {
					logger.FromContext(ctx).Warn("settlement unlock failed", zap.Error(err))
				}
			}()
		}
	}

	// CheckAndUpgrade rolls the month first, then promotes, so a
	// qualifying streak completed at the rollover is picked up even when
	// nothing is due to clear.
	if _, err := s.tierSvc.CheckAndUpgrade(ctx, affiliateID); err != nil {
		return err
	}
	_, err := s.clearingSvc.ClearPending(ctx, affiliateID)
	return err
}
