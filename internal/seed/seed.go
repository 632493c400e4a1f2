package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"github.com/smallbiznis/kassa/internal/config"
	tenantdomain "github.com/smallbiznis/kassa/internal/tenant/domain"
	terminaldomain "github.com/smallbiznis/kassa/internal/terminal/domain"
	"gorm.io/gorm"
)

const (
	defaultTenantName = "Main"
	defaultTenantSlug = "main"
)

// EnsureDefaultTenant seeds the default tenant for startup bootstrap,
// and optionally a demo terminal when the bootstrap config names one.
func EnsureDefaultTenant(db *gorm.DB, cfg config.Config) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant, err := ensureTenantTx(ctx, tx, node, cfg)
		if err != nil {
			return err
		}
		return ensureDemoTerminalTx(ctx, tx, node, tenant, cfg)
	})
}

func ensureTenantTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, cfg config.Config) (*tenantdomain.Tenant, error) {
	var tenant tenantdomain.Tenant
	err := tx.WithContext(ctx).
		Where("slug = ?", defaultTenantSlug).
		First(&tenant).Error
	if err == nil {
		return &tenant, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	id := node.Generate()
	if cfg.DefaultTenantID != 0 {
		id = snowflake.ID(cfg.DefaultTenantID)
	}

	now := time.Now().UTC()
	tenant = tenantdomain.Tenant{
		ID:        id,
		Name:      defaultTenantName,
		Slug:      defaultTenantSlug,
		Currency:  "USD",
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

func ensureDemoTerminalTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, tenant *tenantdomain.Tenant, cfg config.Config) error {
	code := strings.TrimSpace(cfg.Bootstrap.DemoTerminalCode)
	secret := strings.TrimSpace(cfg.Bootstrap.DemoTerminalSecret)
	if code == "" || secret == "" {
		return nil
	}

	var existing terminaldomain.Terminal
	err := tx.WithContext(ctx).
		Where("code = ?", code).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	terminal := terminaldomain.Terminal{
		ID:        node.Generate(),
		TenantID:  tenant.ID,
		Code:      code,
		Name:      "Demo Terminal",
		Secret:    secret,
		Scopes:    pq.StringArray{terminaldomain.ScopeSyncWrite},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return tx.WithContext(ctx).Create(&terminal).Error
}
