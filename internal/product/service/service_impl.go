package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	productdomain "github.com/smallbiznis/kassa/internal/product/domain"
	"github.com/smallbiznis/kassa/internal/product/repository"
	"github.com/smallbiznis/kassa/pkg/db"
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

func New(p ServiceParam) productdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("product.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, tenantID snowflake.ID, req productdomain.CreateRequest) (*productdomain.Response, error) {
	sku := strings.TrimSpace(req.SKU)
	if sku == "" {
		return nil, productdomain.ErrInvalidSKU
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, productdomain.ErrInvalidName
	}
	if req.PriceCents < 0 {
		return nil, productdomain.ErrInvalidPrice
	}

	now := time.Now().UTC()
	record := &productdomain.Product{
		ID:         s.genID.Generate(),
		TenantID:   tenantID,
		SKU:        sku,
		Name:       name,
		PriceCents: req.PriceCents,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, s.db, record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, productdomain.ErrDuplicateSKU
		}
		return nil, err
	}
	return toResponse(record), nil
}

func (s *Service) GetBySKU(ctx context.Context, tenantID snowflake.ID, sku string) (*productdomain.Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, productdomain.ErrInvalidSKU
	}
	record, err := s.repo.FindBySKU(ctx, s.db, tenantID, sku)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, productdomain.ErrNotFound
	}
	return record, nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID) ([]productdomain.Response, error) {
	records, err := s.repo.ListByTenant(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]productdomain.Response, 0, len(records))
	for i := range records {
		out = append(out, *toResponse(&records[i]))
	}
	return out, nil
}

func (s *Service) Deactivate(ctx context.Context, tenantID snowflake.ID, sku string) error {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return productdomain.ErrInvalidSKU
	}
	affected, err := s.repo.SetActive(ctx, s.db, tenantID, sku, false)
	if err != nil {
		return err
	}
	if affected == 0 {
		return productdomain.ErrNotFound
	}
	return nil
}

func toResponse(record *productdomain.Product) *productdomain.Response {
	return &productdomain.Response{
		ID:         record.ID.String(),
		SKU:        record.SKU,
		Name:       record.Name,
		PriceCents: record.PriceCents,
		Active:     record.Active,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
}
