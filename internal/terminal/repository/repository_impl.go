package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	terminaldomain "github.com/smallbiznis/kassa/internal/terminal/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, terminal *terminaldomain.Terminal) error
	FindByCode(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (*terminaldomain.Terminal, error)
	ListByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]terminaldomain.Terminal, error)
	UpdateSecret(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code, secret string) (int64, error)
	SetLocked(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string, locked bool) (int64, error)
	SetActive(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string, active bool) (int64, error)
	TouchLastSeen(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, terminal *terminaldomain.Terminal) error {
	return db.WithContext(ctx).Create(terminal).Error
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (*terminaldomain.Terminal, error) {
	var record terminaldomain.Terminal
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND code = ?", tenantID, code).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) ListByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]terminaldomain.Terminal, error) {
	var records []terminaldomain.Terminal
	err := db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("code ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) UpdateSecret(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code, secret string) (int64, error) {
	tx := db.WithContext(ctx).
		Model(&terminaldomain.Terminal{}).
		Where("tenant_id = ? AND code = ?", tenantID, code).
		Updates(map[string]any{
			"secret":     secret,
			"updated_at": time.Now().UTC(),
		})
	return tx.RowsAffected, tx.Error
}

func (r *repo) SetLocked(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string, locked bool) (int64, error) {
	tx := db.WithContext(ctx).
		Model(&terminaldomain.Terminal{}).
		Where("tenant_id = ? AND code = ?", tenantID, code).
		Updates(map[string]any{
			"is_locked":  locked,
			"updated_at": time.Now().UTC(),
		})
	return tx.RowsAffected, tx.Error
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string, active bool) (int64, error) {
	tx := db.WithContext(ctx).
		Model(&terminaldomain.Terminal{}).
		Where("tenant_id = ? AND code = ?", tenantID, code).
		Updates(map[string]any{
			"is_active":  active,
			"updated_at": time.Now().UTC(),
		})
	return tx.RowsAffected, tx.Error
}

func (r *repo) TouchLastSeen(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).
		Model(&terminaldomain.Terminal{}).
		Where("id = ?", id).
		Update("last_seen_at", at).Error
}
