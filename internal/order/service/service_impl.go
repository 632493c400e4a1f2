package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	inventorydomain "github.com/smallbiznis/kassa/internal/inventory/domain"
	orderdomain "github.com/smallbiznis/kassa/internal/order/domain"
	productdomain "github.com/smallbiznis/kassa/internal/product/domain"
	"github.com/smallbiznis/kassa/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Products  productdomain.Service
	Inventory inventorydomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	products  productdomain.Service
	inventory inventorydomain.Service
}

func New(p Params) orderdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("order.service"),
		genID:     p.GenID,
		products:  p.Products,
		inventory: p.Inventory,
	}
}

func (s *Service) IngestOffline(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, terminalID *snowflake.ID, payload orderdomain.OfflineOrderPayload) (*orderdomain.OrderResult, error) {
	if len(payload.Items) == 0 {
		return nil, orderdomain.ErrEmptyOrder
	}
	if payload.DiscountCents < 0 {
		return nil, orderdomain.ErrInvalidDiscount
	}

	now := time.Now().UTC()
	placedAt := now
	if payload.PlacedAt != nil {
		placedAt = payload.PlacedAt.UTC()
	}

	orderID := s.genID.Generate()
	items := make([]orderdomain.OrderItem, 0, len(payload.Items))
	var subtotal int64

	for _, line := range payload.Items {
		sku := strings.TrimSpace(line.SKU)
		if sku == "" || line.Quantity <= 0 {
			return nil, orderdomain.ErrInvalidItem
		}

		product, err := s.products.GetBySKU(ctx, tenantID, sku)
		if err != nil {
			return nil, err
		}

		unitPrice := product.PriceCents
		if line.UnitPriceCents != nil {
			if *line.UnitPriceCents < 0 {
				return nil, orderdomain.ErrInvalidItem
			}
			unitPrice = *line.UnitPriceCents
		}

		lineTotal := unitPrice * line.Quantity
		subtotal += lineTotal
		items = append(items, orderdomain.OrderItem{
			ID:             s.genID.Generate(),
			OrderID:        orderID,
			TenantID:       tenantID,
			SKU:            sku,
			Name:           product.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: unitPrice,
			LineTotalCents: lineTotal,
			CreatedAt:      now,
		})

		if _, err := s.inventory.Adjust(ctx, tx, tenantID, terminalID, sku, -line.Quantity, inventorydomain.ReasonOfflineSale); err != nil {
			return nil, err
		}
	}

	total := subtotal - payload.DiscountCents
	if total < 0 {
		return nil, orderdomain.ErrInvalidDiscount
	}

	number, err := s.nextNumber(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}

	record := &orderdomain.Order{
		ID:            orderID,
		TenantID:      tenantID,
		Number:        number,
		Status:        orderdomain.StatusCompleted,
		Source:        orderdomain.SourceOffline,
		TerminalID:    terminalID,
		SubtotalCents: subtotal,
		DiscountCents: payload.DiscountCents,
		TotalCents:    total,
		PlacedAt:      placedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).Create(&items).Error; err != nil {
		return nil, err
	}

	return &orderdomain.OrderResult{
		OrderID:    orderID,
		Number:     number,
		TotalCents: total,
	}, nil
}

func (s *Service) Promote(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, terminalID *snowflake.ID, payload orderdomain.PromotePayload) (*orderdomain.OrderResult, error) {
	orderID, err := snowflake.ParseString(strings.TrimSpace(payload.OrderID))
	if err != nil || orderID == 0 {
		return nil, orderdomain.ErrInvalidOrderID
	}

	var record orderdomain.Order
	err = db.LockForUpdate(tx.WithContext(ctx)).
		Where("tenant_id = ? AND id = ?", tenantID, orderID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orderdomain.ErrNotFound
		}
		return nil, err
	}
	if record.Status != orderdomain.StatusHeld {
		return nil, orderdomain.ErrNotHeld
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"status":     orderdomain.StatusCompleted,
		"source":     orderdomain.SourcePromoted,
		"updated_at": now,
	}
	if terminalID != nil {
		updates["terminal_id"] = *terminalID
	}
	if err := tx.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Where("tenant_id = ? AND id = ?", tenantID, orderID).
		Updates(updates).Error; err != nil {
		return nil, err
	}

	return &orderdomain.OrderResult{
		OrderID:    record.ID,
		Number:     record.Number,
		TotalCents: record.TotalCents,
	}, nil
}

func (s *Service) GetByID(ctx context.Context, tenantID snowflake.ID, id snowflake.ID) (*orderdomain.Order, error) {
	var record orderdomain.Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orderdomain.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// nextNumber bumps the per-tenant counter with an atomic increment and
// reads the assigned value back inside the same transaction.
func (s *Service) nextNumber(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) (int64, error) {
	now := time.Now().UTC()
	res := tx.WithContext(ctx).
		Model(&orderdomain.OrderCounter{}).
		Where("tenant_id = ?", tenantID).
		Updates(map[string]any{
			"next_number": gorm.Expr("next_number + 1"),
			"updated_at":  now,
		})
	if res.Error != nil {
		return 0, res.Error
	}

	if res.RowsAffected == 0 {
		counter := &orderdomain.OrderCounter{
			TenantID:   tenantID,
			NextNumber: 2,
			UpdatedAt:  now,
		}
		conflict := clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			DoNothing: true,
		}
		seed := tx.WithContext(ctx).Clauses(conflict).Create(counter)
		if seed.Error != nil {
			return 0, seed.Error
		}
		if seed.RowsAffected == 1 {
			return 1, nil
		}
		// Lost the seeding race, bump the winner's row instead.
		res = tx.WithContext(ctx).
			Model(&orderdomain.OrderCounter{}).
			Where("tenant_id = ?", tenantID).
			Updates(map[string]any{
				"next_number": gorm.Expr("next_number + 1"),
				"updated_at":  now,
			})
		if res.Error != nil {
			return 0, res.Error
		}
	}

	var counter orderdomain.OrderCounter
	if err := tx.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&counter).Error; err != nil {
		return 0, err
	}
	return counter.NextNumber - 1, nil
}
