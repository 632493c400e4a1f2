package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	inventorydomain "github.com/smallbiznis/kassa/internal/inventory/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newInventoryService(t *testing.T) (inventorydomain.Service, *gorm.DB, snowflake.ID) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&inventorydomain.StockLevel{},
		&inventorydomain.StockMovement{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{Log: zap.NewNop(), GenID: node})
	return svc, db, node.Generate()
}

func TestAdjustCreatesLevelOnFirstReceipt(t *testing.T) {
	svc, db, tenantID := newInventoryService(t)
	ctx := context.Background()

	level, err := svc.Adjust(ctx, db, tenantID, nil, "SKU-1", 5, inventorydomain.ReasonManualAdjustment)
	require.NoError(t, err)
	assert.Equal(t, int64(5), level)

	level, err = svc.Adjust(ctx, db, tenantID, nil, "SKU-1", 3, inventorydomain.ReasonManualAdjustment)
	require.NoError(t, err)
	assert.Equal(t, int64(8), level)

	var movements int64
	db.Model(&inventorydomain.StockMovement{}).Count(&movements)
	assert.Equal(t, int64(2), movements)
}

func TestAdjustNeverDrivesLevelNegative(t *testing.T) {
	svc, db, tenantID := newInventoryService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, db, tenantID, nil, "SKU-1", 4, inventorydomain.ReasonManualAdjustment)
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, db, tenantID, nil, "SKU-1", -5, inventorydomain.ReasonOfflineSale)
	assert.ErrorIs(t, err, inventorydomain.ErrInsufficientStock)

	// Untracked SKUs reject decrements outright.
	_, err = svc.Adjust(ctx, db, tenantID, nil, "SKU-2", -1, inventorydomain.ReasonOfflineSale)
	assert.ErrorIs(t, err, inventorydomain.ErrInsufficientStock)

	level, err := svc.OnHand(ctx, db, tenantID, "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), level, "failed decrement leaves the level untouched")
}

func TestAdjustValidatesInput(t *testing.T) {
	svc, db, tenantID := newInventoryService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, db, tenantID, nil, "  ", 1, inventorydomain.ReasonManualAdjustment)
	assert.ErrorIs(t, err, inventorydomain.ErrInvalidSKU)

	_, err = svc.Adjust(ctx, db, tenantID, nil, "SKU-1", 0, inventorydomain.ReasonManualAdjustment)
	assert.ErrorIs(t, err, inventorydomain.ErrInvalidAdjustment)
}

func TestLevelsAreScopedPerTenant(t *testing.T) {
	svc, db, tenantID := newInventoryService(t)
	ctx := context.Background()

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	otherTenant := node.Generate()

	_, err = svc.Adjust(ctx, db, tenantID, nil, "SKU-1", 10, inventorydomain.ReasonManualAdjustment)
	require.NoError(t, err)

	level, err := svc.OnHand(ctx, db, otherTenant, "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), level)
}

func TestApplyOfflineAdjustmentIsAllOrNothing(t *testing.T) {
	svc, db, tenantID := newInventoryService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, db, tenantID, nil, "SKU-1", 2, inventorydomain.ReasonManualAdjustment)
	require.NoError(t, err)

	payload := inventorydomain.AdjustmentPayload{Adjustments: []inventorydomain.Adjustment{
		{SKU: "SKU-1", Delta: 1},
		{SKU: "SKU-1", Delta: -10},
	}}

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.ApplyOfflineAdjustment(ctx, tx, tenantID, nil, payload)
		return err
	})
	assert.ErrorIs(t, err, inventorydomain.ErrInsufficientStock)

	level, err := svc.OnHand(ctx, db, tenantID, "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), level, "rolled back payload leaves no partial effect")
}

func TestApplyOfflineAdjustmentReportsLevels(t *testing.T) {
	svc, db, tenantID := newInventoryService(t)
	ctx := context.Background()

	res, err := svc.ApplyOfflineAdjustment(ctx, db, tenantID, nil, inventorydomain.AdjustmentPayload{
		Adjustments: []inventorydomain.Adjustment{
			{SKU: "SKU-1", Delta: 5},
			{SKU: "SKU-2", Delta: 3, Reason: "cycle_count"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, int64(5), res.Levels["SKU-1"])
	assert.Equal(t, int64(3), res.Levels["SKU-2"])

	var movement inventorydomain.StockMovement
	require.NoError(t, db.Where("sku = ?", "SKU-2").First(&movement).Error)
	assert.Equal(t, "cycle_count", movement.Reason)
}

func TestApplyOfflineAdjustmentRejectsEmptyPayload(t *testing.T) {
	svc, db, tenantID := newInventoryService(t)

	_, err := svc.ApplyOfflineAdjustment(context.Background(), db, tenantID, nil, inventorydomain.AdjustmentPayload{})
	assert.ErrorIs(t, err, inventorydomain.ErrInvalidAdjustment)
}
