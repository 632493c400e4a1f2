package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	inventorydomain "github.com/smallbiznis/kassa/internal/inventory/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
}

func New(p Params) inventorydomain.Service {
	return &Service{
		log:   p.Log.Named("inventory.service"),
		genID: p.GenID,
	}
}

func (s *Service) ApplyOfflineAdjustment(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, terminalID *snowflake.ID, payload inventorydomain.AdjustmentPayload) (*inventorydomain.AdjustmentResult, error) {
	if len(payload.Adjustments) == 0 {
		return nil, inventorydomain.ErrInvalidAdjustment
	}

	levels := make(map[string]int64, len(payload.Adjustments))
	for _, adj := range payload.Adjustments {
		reason := strings.TrimSpace(adj.Reason)
		if reason == "" {
			reason = inventorydomain.ReasonOfflineAdjustment
		}
		level, err := s.Adjust(ctx, tx, tenantID, terminalID, adj.SKU, adj.Delta, reason)
		if err != nil {
			return nil, err
		}
		levels[strings.TrimSpace(adj.SKU)] = level
	}

	return &inventorydomain.AdjustmentResult{
		Applied: len(payload.Adjustments),
		Levels:  levels,
	}, nil
}

func (s *Service) Adjust(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, terminalID *snowflake.ID, sku string, delta int64, reason string) (int64, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return 0, inventorydomain.ErrInvalidSKU
	}
	if delta == 0 {
		return 0, inventorydomain.ErrInvalidAdjustment
	}

	now := time.Now().UTC()

	// Atomic guarded increment. The WHERE clause keeps concurrent
	// decrements from racing the level below zero.
	res := tx.WithContext(ctx).
		Model(&inventorydomain.StockLevel{}).
		Where("tenant_id = ? AND sku = ? AND on_hand + ? >= 0", tenantID, sku, delta).
		Updates(map[string]any{
			"on_hand":    gorm.Expr("on_hand + ?", delta),
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, res.Error
	}

	if res.RowsAffected == 0 {
		var existing inventorydomain.StockLevel
		err := tx.WithContext(ctx).
			Where("tenant_id = ? AND sku = ?", tenantID, sku).
			First(&existing).Error
		switch {
		case err == nil:
			return 0, inventorydomain.ErrInsufficientStock
		case errors.Is(err, gorm.ErrRecordNotFound):
			if delta < 0 {
				return 0, inventorydomain.ErrInsufficientStock
			}
			level := &inventorydomain.StockLevel{
				ID:        s.genID.Generate(),
				TenantID:  tenantID,
				SKU:       sku,
				OnHand:    delta,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.WithContext(ctx).Create(level).Error; err != nil {
				return 0, err
			}
		default:
			return 0, err
		}
	}

	movement := &inventorydomain.StockMovement{
		ID:         s.genID.Generate(),
		TenantID:   tenantID,
		SKU:        sku,
		Delta:      delta,
		Reason:     reason,
		TerminalID: terminalID,
		CreatedAt:  now,
	}
	if err := tx.WithContext(ctx).Create(movement).Error; err != nil {
		return 0, err
	}

	return s.OnHand(ctx, tx, tenantID, sku)
}

func (s *Service) OnHand(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, sku string) (int64, error) {
	var record inventorydomain.StockLevel
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND sku = ?", tenantID, sku).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return record.OnHand, nil
}
