package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/affiliate/internal/affctx"
	payoutdomain "github.com/smallbiznis/affiliate/internal/payout/domain"
)

type requestPayoutRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) RequestPayout(c *gin.Context) {
	ctx := c.Request.Context()
	affiliateID, ok := affctx.AffiliateIDFromContext(ctx)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req requestPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	payout, err := s.payoutSvc.Request(ctx, payoutdomain.RequestPayoutRequest{
		AffiliateID: affiliateID,
		Amount:      req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payout)
}

func (s *Server) ListPayouts(c *gin.Context) {
	ctx := c.Request.Context()
	affiliateID, ok := affctx.AffiliateIDFromContext(ctx)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	payouts, err := s.payoutSvc.List(ctx, affiliateID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}

func (s *Server) CompletePayout(c *gin.Context) {
	payout, err := s.payoutSvc.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payout)
}

func (s *Server) FailPayout(c *gin.Context) {
	payout, err := s.payoutSvc.Fail(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payout)
}
