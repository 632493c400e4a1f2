package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusHeld      Status = "held"
	StatusVoided    Status = "voided"
)

type Source string

const (
	SourceOffline  Source = "offline"
	SourceOnline   Source = "online"
	SourcePromoted Source = "promoted"
)

// Order is a finalized sale. Money lives in minor units; Number is a
// per-tenant sequence assigned at ingest time.
type Order struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	TenantID      snowflake.ID  `gorm:"column:tenant_id;not null;uniqueIndex:ux_orders_tenant_number,priority:1" json:"tenant_id"`
	Number        int64         `gorm:"column:number;not null;uniqueIndex:ux_orders_tenant_number,priority:2" json:"number"`
	Status        Status        `gorm:"column:status;type:text;not null" json:"status"`
	Source        Source        `gorm:"column:source;type:text;not null" json:"source"`
	TerminalID    *snowflake.ID `gorm:"column:terminal_id" json:"terminal_id,omitempty"`
	SubtotalCents int64         `gorm:"column:subtotal_cents;not null" json:"subtotal_cents"`
	DiscountCents int64         `gorm:"column:discount_cents;not null;default:0" json:"discount_cents"`
	TotalCents    int64         `gorm:"column:total_cents;not null" json:"total_cents"`
	PlacedAt      time.Time     `gorm:"column:placed_at;not null" json:"placed_at"`
	CreatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	VoidedAt      *time.Time    `gorm:"column:voided_at" json:"voided_at,omitempty"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

type OrderItem struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	OrderID        snowflake.ID `gorm:"column:order_id;not null;index:ix_order_items_order" json:"order_id"`
	TenantID       snowflake.ID `gorm:"column:tenant_id;not null" json:"tenant_id"`
	SKU            string       `gorm:"column:sku;type:text;not null" json:"sku"`
	Name           string       `gorm:"column:name;type:text;not null" json:"name"`
	Quantity       int64        `gorm:"column:quantity;not null" json:"quantity"`
	UnitPriceCents int64        `gorm:"column:unit_price_cents;not null" json:"unit_price_cents"`
	LineTotalCents int64        `gorm:"column:line_total_cents;not null" json:"line_total_cents"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (OrderItem) TableName() string { return "order_items" }

// OrderCounter hands out per-tenant order numbers. The row is bumped
// with an atomic increment so concurrent terminals never share a
// number.
type OrderCounter struct {
	TenantID   snowflake.ID `gorm:"column:tenant_id;primaryKey"`
	NextNumber int64        `gorm:"column:next_number;not null"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OrderCounter) TableName() string { return "order_counters" }
