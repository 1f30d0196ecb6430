package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	affdomain "github.com/smallbiznis/affiliate/internal/affiliate/domain"
	"github.com/smallbiznis/affiliate/internal/observability/logger"
	"github.com/smallbiznis/affiliate/internal/tracking/attribution"
	trackingdomain "github.com/smallbiznis/affiliate/internal/tracking/domain"
	"go.uber.org/zap"
)

// RedirectClick resolves an affiliate link, records the visit and sends the
// visitor to the storefront. A broken or unknown code still redirects; a
// human following a stale link gets the landing page, just without
// attribution.
func (s *Server) RedirectClick(c *gin.Context) {
	ctx := c.Request.Context()
	target := s.redirectTarget(c.Query("to"))

	affiliate, err := s.affiliateSvc.GetByCode(ctx, c.Param("code"))
	if err != nil {
		logger.FromContext(ctx).Info("unattributed click",
			zap.String("code", c.Param("code")),
			zap.Error(err),
		)
		c.Redirect(http.StatusFound, target)
		return
	}
	if affiliate.Status != affdomain.StatusActive {
		c.Redirect(http.StatusFound, target)
		return
	}

	// Re-use the session when the same affiliate referred this browser
	// before; a new affiliate takes over the attribution (last click wins).
	sessionID := ""
	if cookieCode, cookieSession, ok := attribution.FromRequest(c.Request); ok && cookieCode == affiliate.Code {
		sessionID = cookieSession
	}
	if sessionID == "" {
		sessionID = s.trackingSvc.NewSessionID()
	}

	_, err = s.trackingSvc.AttributeClick(ctx, trackingdomain.AttributeClickRequest{
		AffiliateID: int64(affiliate.ID),
		SessionID:   sessionID,
		IP:          c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		Referrer:    c.Request.Referer(),
		LandingPage: target,
	})
	if err != nil {
		// Attribution is best-effort; the visitor still reaches the store.
		logger.FromContext(ctx).Warn("click attribution failed",
			zap.String("code", affiliate.Code),
			zap.Error(err),
		)
		c.Redirect(http.StatusFound, target)
		return
	}

	if s.obsMetrics != nil {
		s.obsMetrics.ClicksAttributed.Inc()
	}
	attribution.SetCookies(c.Writer, attribution.CookieConfig{
		Domain: s.cfg.CookieDomain,
		Secure: s.cfg.CookieSecure,
	}, affiliate.Code, sessionID)
	c.Redirect(http.StatusFound, target)
}

// redirectTarget appends an optional relative path to the landing URL.
// Absolute or scheme-relative values are dropped to keep the redirect
// closed.
func (s *Server) redirectTarget(to string) string {
	base := strings.TrimRight(s.cfg.LandingURL, "/")
	to = strings.TrimSpace(to)
	if to == "" || !strings.HasPrefix(to, "/") || strings.HasPrefix(to, "//") {
		return base
	}
	return base + to
}
