package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Product is a sellable item in a tenant's catalog. Prices are stored
// in minor units so order math never touches floating point.
type Product struct {
	ID         snowflake.ID `json:"id,string" gorm:"primaryKey"`
	TenantID   snowflake.ID `json:"tenant_id,string" gorm:"not null;uniqueIndex:ux_products_tenant_sku"`
	SKU        string       `json:"sku" gorm:"not null;uniqueIndex:ux_products_tenant_sku"`
	Name       string       `json:"name" gorm:"not null"`
	PriceCents int64        `json:"price_cents" gorm:"not null"`
	Active     bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}
