package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	ReasonOfflineSale       = "offline_sale"
	ReasonOfflineAdjustment = "offline_adjustment"
	ReasonManualAdjustment  = "manual_adjustment"
)

var (
	ErrInvalidSKU        = errors.New("invalid_sku")
	ErrInvalidAdjustment = errors.New("invalid_adjustment")
	ErrInsufficientStock = errors.New("insufficient_stock")
)

// AdjustmentPayload is the offline inventory envelope a terminal queues
// while disconnected.
type AdjustmentPayload struct {
	Adjustments []Adjustment `json:"adjustments"`
}

type Adjustment struct {
	SKU    string `json:"sku"`
	Delta  int64  `json:"delta"`
	Reason string `json:"reason,omitempty"`
}

type AdjustmentResult struct {
	Applied int              `json:"applied"`
	Levels  map[string]int64 `json:"levels"`
}

type Service interface {
	// ApplyOfflineAdjustment applies every adjustment in the payload
	// inside the caller's transaction. Runs atomically: one bad line
	// rejects the whole payload.
	ApplyOfflineAdjustment(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, terminalID *snowflake.ID, payload AdjustmentPayload) (*AdjustmentResult, error)

	// Adjust changes one SKU's on-hand level. Negative deltas fail
	// with ErrInsufficientStock rather than driving the level below
	// zero.
	Adjust(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, terminalID *snowflake.ID, sku string, delta int64, reason string) (int64, error)

	// OnHand reports the current level for a SKU, zero when untracked.
	OnHand(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, sku string) (int64, error)
}
