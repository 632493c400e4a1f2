package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	tenantdomain "github.com/smallbiznis/kassa/internal/tenant/domain"
	"github.com/smallbiznis/kassa/internal/tenant/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  repository.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  repository.Repository
}

func New(p ServiceParam) tenantdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tenant.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req tenantdomain.CreateRequest) (*tenantdomain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, tenantdomain.ErrInvalidName
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	now := time.Now().UTC()
	record := &tenantdomain.Tenant{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      slug.Make(name),
		Currency:  currency,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, s.db, record); err != nil {
		return nil, err
	}
	return toResponse(record), nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*tenantdomain.Response, error) {
	tenantID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || tenantID == 0 {
		return nil, tenantdomain.ErrInvalidID
	}
	record, err := s.repo.FindByID(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, tenantdomain.ErrNotFound
	}
	return toResponse(record), nil
}

func (s *Service) GetBySlug(ctx context.Context, value string) (*tenantdomain.Response, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, tenantdomain.ErrInvalidID
	}
	record, err := s.repo.FindBySlug(ctx, s.db, value)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, tenantdomain.ErrNotFound
	}
	return toResponse(record), nil
}

func toResponse(record *tenantdomain.Tenant) *tenantdomain.Response {
	return &tenantdomain.Response{
		ID:        record.ID.String(),
		Name:      record.Name,
		Slug:      record.Slug,
		Currency:  record.Currency,
		Active:    record.Active,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}
