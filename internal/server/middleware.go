package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/affiliate/internal/affctx"
	"github.com/smallbiznis/affiliate/internal/observability/logger"
	"go.uber.org/zap"
)

// HeaderAffiliate carries the authenticated affiliate identity. The gateway
// in front of this service terminates the member session and injects it.
const HeaderAffiliate = "X-Affiliate-Id"

func (s *Server) AffiliateRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderAffiliate))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := affctx.WithAffiliateID(c.Request.Context(), int64(id))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) ClickRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.clickLimiter == nil || !s.clickLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := s.clickLimiter.AllowClick(ctx, c.ClientIP())
		if err != nil {
			// Redis trouble never blocks the redirect path.
			logger.FromContext(ctx).Warn("click rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !result.Allowed {
			logger.FromContext(ctx).Warn("click rate limit exceeded",
				zap.String("ip", c.ClientIP()),
			)
			c.Header("Retry-After", "1")
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
