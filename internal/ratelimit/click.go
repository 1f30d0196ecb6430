package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/affiliate/internal/config"
)

const (
	keyClickIP      = "aff:click:ip:%s"
	keySettlePerAff = "aff:settle:lock:%s"

	settleLockTTL = 30 * time.Second
)

// ClickLimiter throttles anonymous click traffic per source IP and
// serializes per-affiliate settlement across instances. A nil limiter (rate
// limiting disabled) allows everything.
type ClickLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	clickRate  float64
	clickBurst int
}

func NewClickLimiter(cfg config.Config) (*ClickLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.ClickRate <= 0 || limitCfg.ClickBurst <= 0 {
		return nil, errors.New("click rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &ClickLimiter{
		enabled:    true,
		bucket:     NewTokenBucket(client),
		locker:     NewLocker(client),
		clickRate:  limitCfg.ClickRate,
		clickBurst: limitCfg.ClickBurst,
	}, nil
}

func (l *ClickLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *ClickLimiter) AllowClick(ctx context.Context, ip string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyClickIP, strings.TrimSpace(ip)), l.clickRate, l.clickBurst)
}

// TryLockSettlement guards the lazy clear-and-rollover pass for one
// affiliate. Both sides of a lost race still see correct balances on their
// next access, so callers skip the pass rather than wait.
func (l *ClickLimiter) TryLockSettlement(ctx context.Context, affiliateID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keySettlePerAff, strings.TrimSpace(affiliateID)), settleLockTTL)
}

func (l *ClickLimiter) ReleaseSettlement(ctx context.Context, affiliateID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keySettlePerAff, strings.TrimSpace(affiliateID)), token)
}
