package migration

import (
	"strings"

	approvaldomain "github.com/smallbiznis/kassa/internal/approval/domain"
	"github.com/smallbiznis/kassa/internal/config"
	"github.com/smallbiznis/kassa/internal/events"
	inventorydomain "github.com/smallbiznis/kassa/internal/inventory/domain"
	orderdomain "github.com/smallbiznis/kassa/internal/order/domain"
	productdomain "github.com/smallbiznis/kassa/internal/product/domain"
	"github.com/smallbiznis/kassa/internal/seed"
	synclogdomain "github.com/smallbiznis/kassa/internal/synclog/domain"
	tenantdomain "github.com/smallbiznis/kassa/internal/tenant/domain"
	terminaldomain "github.com/smallbiznis/kassa/internal/terminal/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Models lists every persisted type in AutoMigrate order.
func Models() []any {
	return []any{
		&tenantdomain.Tenant{},
		&terminaldomain.Terminal{},
		&approvaldomain.Approver{},
		&approvaldomain.ApprovalRecord{},
		&productdomain.Product{},
		&inventorydomain.StockLevel{},
		&inventorydomain.StockMovement{},
		&orderdomain.Order{},
		&orderdomain.OrderItem{},
		&orderdomain.OrderCounter{},
		&synclogdomain.ProcessedOperation{},
		&events.OutboxEvent{},
	}
}

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if strings.EqualFold(conn.Dialector.Name(), "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// MySQL and SQLite are dev conveniences, gorm builds the
			// schema from the models there.
			if err := conn.AutoMigrate(Models()...); err != nil {
				return err
			}
		}

		if cfg.Bootstrap.EnsureDefaultTenant {
			return seed.EnsureDefaultTenant(conn, cfg)
		}
		return nil
	}),
)
