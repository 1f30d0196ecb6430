package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes application-level instruments for the commission engine.
type Metrics struct {
	ClicksAttributed    prometheus.Counter
	ConversionsRecorded prometheus.Counter
	ConversionsCleared  prometheus.Counter
	ConversionsVoided   prometheus.Counter
	RewardsGranted      prometheus.Counter
	TierUpgrades        *prometheus.CounterVec
	PayoutsRequested    prometheus.Counter
}

// New registers the engine counters on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ClicksAttributed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_clicks_attributed_total",
			Help: "Inbound clicks attributed to an affiliate.",
		}),
		ConversionsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_conversions_recorded_total",
			Help: "Commission-bearing conversions recorded.",
		}),
		ConversionsCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_conversions_cleared_total",
			Help: "Conversions promoted from pending to cleared.",
		}),
		ConversionsVoided: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_conversions_voided_total",
			Help: "Conversions voided by refund or fraud review.",
		}),
		RewardsGranted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_monthly_rewards_granted_total",
			Help: "Monthly volume rewards credited.",
		}),
		TierUpgrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "affiliate_tier_upgrades_total",
			Help: "Tier upgrades applied, by target tier.",
		}, []string{"tier"}),
		PayoutsRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_payouts_requested_total",
			Help: "Payout requests accepted.",
		}),
	}

	reg.MustRegister(
		m.ClicksAttributed,
		m.ConversionsRecorded,
		m.ConversionsCleared,
		m.ConversionsVoided,
		m.RewardsGranted,
		m.TierUpgrades,
		m.PayoutsRequested,
	)
	return m
}

// HTTPMetrics instruments inbound HTTP traffic.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

// GinMiddleware records request counts and latency.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
