package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	productdomain "github.com/smallbiznis/kassa/internal/product/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, product *productdomain.Product) error
	FindBySKU(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, sku string) (*productdomain.Product, error)
	ListByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]productdomain.Product, error)
	SetActive(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, sku string, active bool) (int64, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, product *productdomain.Product) error {
	return db.WithContext(ctx).Create(product).Error
}

// FindBySKU resolves an active product. Deactivated SKUs are invisible
// here so they cannot be priced into new orders; List still returns
// them for the catalog.
func (r *repo) FindBySKU(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, sku string) (*productdomain.Product, error) {
	var record productdomain.Product
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND sku = ? AND active = ?", tenantID, sku, true).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) ListByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]productdomain.Product, error) {
	var records []productdomain.Product
	err := db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("sku ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, sku string, active bool) (int64, error) {
	tx := db.WithContext(ctx).
		Model(&productdomain.Product{}).
		Where("tenant_id = ? AND sku = ?", tenantID, sku).
		Update("active", active)
	return tx.RowsAffected, tx.Error
}
