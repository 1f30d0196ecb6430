package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	affdomain "github.com/smallbiznis/affiliate/internal/affiliate/domain"
	"github.com/smallbiznis/affiliate/internal/clock"
	"github.com/smallbiznis/affiliate/internal/tracking/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Truncated hex digest length for persisted IP hashes.
const ipHashLen = 16

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	AffRepo affdomain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	affRepo affdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("tracking.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		affRepo: p.AffRepo,
	}
}

func (s *Service) AttributeClick(ctx context.Context, req domain.AttributeClickRequest) (domain.Click, error) {
	if req.AffiliateID == 0 {
		return domain.Click{}, domain.ErrInvalidAffiliate
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return domain.Click{}, domain.ErrInvalidSession
	}
	affiliateID := snowflake.ID(req.AffiliateID)

	// One click per session: a repeat visit returns the existing record
	// without touching counters.
	existing, err := s.repo.FindBySession(ctx, s.db, affiliateID, sessionID)
	if err != nil {
		return domain.Click{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	click := domain.Click{
		ID:          s.genID.Generate(),
		AffiliateID: affiliateID,
		SessionID:   sessionID,
		IPHash:      HashIP(req.IP),
		UserAgent:   truncate(req.UserAgent, 512),
		Referrer:    truncate(req.Referrer, 512),
		LandingPage: truncate(req.LandingPage, 512),
		Metadata:    datatypes.JSONMap{},
		CreatedAt:   s.clock.Now(),
	}

	// Click insert and counter increment commit together.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &click); err != nil {
			return err
		}
		return s.affRepo.IncrementClicks(ctx, tx, affiliateID)
	})
	if err != nil {
		return domain.Click{}, err
	}

	return click, nil
}

func (s *Service) NewSessionID() string {
	return ulid.MustNew(ulid.Timestamp(s.clock.Now()), rand.Reader).String()
}

// HashIP reduces an IP address to a truncated one-way digest. The raw
// address is never stored.
func HashIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])[:ipHashLen]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
