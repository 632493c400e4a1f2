package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidSKU   = errors.New("invalid_sku")
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidPrice = errors.New("invalid_price")
	ErrDuplicateSKU = errors.New("duplicate_sku")
	ErrNotFound     = errors.New("product_not_found")
)

type CreateRequest struct {
	SKU        string `json:"sku" binding:"required"`
	Name       string `json:"name" binding:"required"`
	PriceCents int64  `json:"price_cents" binding:"required"`
}

type Response struct {
	ID         string    `json:"id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Service interface {
	Create(ctx context.Context, tenantID snowflake.ID, req CreateRequest) (*Response, error)
	GetBySKU(ctx context.Context, tenantID snowflake.ID, sku string) (*Product, error)
	List(ctx context.Context, tenantID snowflake.ID) ([]Response, error)
	Deactivate(ctx context.Context, tenantID snowflake.ID, sku string) error
}
