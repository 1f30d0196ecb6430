package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	affdomain "github.com/smallbiznis/affiliate/internal/affiliate/domain"
	convdomain "github.com/smallbiznis/affiliate/internal/conversion/domain"
	"github.com/smallbiznis/affiliate/internal/observability/logger"
	"github.com/smallbiznis/affiliate/internal/tracking/attribution"
	"go.uber.org/zap"
)

type orderWebhookRequest struct {
	OrderID  string          `json:"order_id"`
	Subtotal decimal.Decimal `json:"subtotal"`

	// Attribution is the packed pair the storefront copied from the
	// visitor's cookies into order metadata at checkout.
	Attribution string `json:"attribution"`

	// Explicit pair, for integrations that unpack themselves.
	AffiliateCode string `json:"affiliate_code"`
	SessionID     string `json:"session_id"`

	// Optional per-order rate override, e.g. a negotiated campaign rate.
	CommissionRate *decimal.Decimal `json:"commission_rate"`
}

type orderWebhookResponse struct {
	Attributed bool                   `json:"attributed"`
	Existing   bool                   `json:"existing,omitempty"`
	Conversion *convdomain.Conversion `json:"conversion,omitempty"`
}

// HandleOrderWebhook ingests order-completed events from the checkout
// system. Orders without attribution are acknowledged as no-ops so the
// sender does not retry them forever.
func (s *Server) HandleOrderWebhook(c *gin.Context) {
	var req orderWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	code := strings.TrimSpace(req.AffiliateCode)
	sessionID := strings.TrimSpace(req.SessionID)
	if code == "" {
		if packed := strings.TrimSpace(req.Attribution); packed != "" {
			code, sessionID, _ = attribution.Unpack(packed)
		}
	}
	if code == "" {
		c.JSON(http.StatusOK, orderWebhookResponse{Attributed: false})
		return
	}

	result, err := s.conversionSvc.Record(c.Request.Context(), convdomain.RecordRequest{
		AffiliateCode: code,
		SessionID:     sessionID,
		OrderID:       req.OrderID,
		OrderSubtotal: req.Subtotal,
		Rate:          req.CommissionRate,
	})
	if err != nil {
		// An unknown or ineligible code declines the attribution, it never
		// fails the order. A non-2xx here would put the checkout system
		// into a retry loop over an order we will never attribute.
		if errors.Is(err, affdomain.ErrNotFound) || errors.Is(err, affdomain.ErrNotEligible) {
			logger.FromContext(c.Request.Context()).Warn("order attribution declined",
				zap.String("order_id", req.OrderID),
				zap.String("affiliate_code", code),
				zap.Error(err),
			)
			c.JSON(http.StatusOK, orderWebhookResponse{Attributed: false})
			return
		}
		AbortWithError(c, err)
		return
	}

	if result.Existing {
		logger.FromContext(c.Request.Context()).Info("duplicate order webhook",
			zap.String("order_id", result.Conversion.OrderID),
		)
	}
	c.JSON(http.StatusOK, orderWebhookResponse{
		Attributed: true,
		Existing:   result.Existing,
		Conversion: &result.Conversion,
	})
}
