package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/affiliate/internal/affiliate/domain"
	"github.com/smallbiznis/affiliate/internal/clock"
	"github.com/smallbiznis/affiliate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("affiliate.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Enroll(ctx context.Context, req domain.EnrollRequest) (domain.Affiliate, error) {
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return domain.Affiliate{}, domain.ErrInvalidDisplayName
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Affiliate{}, domain.ErrInvalidEmail
	}

	code, err := s.generateCode(ctx, name)
	if err != nil {
		return domain.Affiliate{}, err
	}

	now := s.clock.Now()
	affiliate := domain.Affiliate{
		ID:               s.genID.Generate(),
		Code:             code,
		DisplayName:      name,
		Email:            email,
		Status:           domain.StatusActive,
		Tier:             domain.TierStarter,
		CommissionRate:   domain.TierStarter.PublishedRate(),
		LastMonthResetAt: now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Insert(ctx, s.db, &affiliate); err != nil {
		// Code uniqueness was just verified by the generator, so a
		// duplicate-key failure here means the email is enrolled already.
		if db.IsDuplicateKeyErr(err) {
			return domain.Affiliate{}, domain.ErrEmailTaken
		}
		return domain.Affiliate{}, err
	}

	s.log.Info("affiliate enrolled",
		zap.String("affiliate_id", affiliate.ID.String()),
		zap.String("code", affiliate.Code),
	)
	return affiliate, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Affiliate, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return domain.Affiliate{}, domain.ErrInvalidID
	}

	affiliate, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return domain.Affiliate{}, err
	}
	if affiliate == nil {
		return domain.Affiliate{}, domain.ErrNotFound
	}
	return *affiliate, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (domain.Affiliate, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !ValidCode(code) {
		return domain.Affiliate{}, domain.ErrInvalidCode
	}

	affiliate, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return domain.Affiliate{}, err
	}
	if affiliate == nil {
		return domain.Affiliate{}, domain.ErrNotFound
	}
	return *affiliate, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) error {
	affiliate, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.UpdateStatus(ctx, s.db, affiliate.ID, domain.StatusInactive)
}
