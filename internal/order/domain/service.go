package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrEmptyOrder      = errors.New("empty_order")
	ErrInvalidItem     = errors.New("invalid_item")
	ErrInvalidDiscount = errors.New("invalid_discount")
	ErrInvalidOrderID  = errors.New("invalid_order_id")
	ErrNotFound        = errors.New("order_not_found")
	ErrNotHeld         = errors.New("order_not_held")
	ErrAlreadyVoided   = errors.New("order_already_voided")
)

// OfflineOrderPayload is what a terminal queues while disconnected.
// Unit prices are optional: terminals carry a local catalog snapshot,
// but the server falls back to its own catalog when a line omits them.
type OfflineOrderPayload struct {
	Items         []OfflineOrderItem `json:"items"`
	DiscountCents int64              `json:"discount_cents,omitempty"`
	PlacedAt      *time.Time         `json:"placed_at,omitempty"`
}

type OfflineOrderItem struct {
	SKU            string `json:"sku"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents *int64 `json:"unit_price_cents,omitempty"`
}

// PromotePayload finalizes a held order from a terminal.
type PromotePayload struct {
	OrderID string `json:"order_id"`
}

type OrderResult struct {
	OrderID    snowflake.ID
	Number     int64
	TotalCents int64
}

type Service interface {
	// IngestOffline creates exactly one order from a terminal payload
	// inside the caller's transaction, decrementing stock for every
	// line.
	IngestOffline(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, terminalID *snowflake.ID, payload OfflineOrderPayload) (*OrderResult, error)

	// Promote completes a held order on behalf of a terminal.
	Promote(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, terminalID *snowflake.ID, payload PromotePayload) (*OrderResult, error)

	GetByID(ctx context.Context, tenantID snowflake.ID, id snowflake.ID) (*Order, error)
}
