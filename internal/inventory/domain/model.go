package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// StockLevel tracks on-hand quantity for one SKU within a tenant.
type StockLevel struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"column:tenant_id;not null;uniqueIndex:ux_stock_levels_tenant_sku,priority:1"`
	SKU       string       `gorm:"column:sku;type:text;not null;uniqueIndex:ux_stock_levels_tenant_sku,priority:2"`
	OnHand    int64        `gorm:"column:on_hand;not null;default:0"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (StockLevel) TableName() string { return "stock_levels" }

// StockMovement is the append-only audit trail behind every stock
// change, including decrements made by offline order ingestion.
type StockMovement struct {
	ID         snowflake.ID  `gorm:"primaryKey"`
	TenantID   snowflake.ID  `gorm:"column:tenant_id;not null;index:ix_stock_movements_tenant_sku,priority:1"`
	SKU        string        `gorm:"column:sku;type:text;not null;index:ix_stock_movements_tenant_sku,priority:2"`
	Delta      int64         `gorm:"column:delta;not null"`
	Reason     string        `gorm:"column:reason;type:text;not null"`
	TerminalID *snowflake.ID `gorm:"column:terminal_id"`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (StockMovement) TableName() string { return "stock_movements" }
