package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	inventorydomain "github.com/smallbiznis/kassa/internal/inventory/domain"
	inventoryservice "github.com/smallbiznis/kassa/internal/inventory/service"
	orderdomain "github.com/smallbiznis/kassa/internal/order/domain"
	productdomain "github.com/smallbiznis/kassa/internal/product/domain"
	productrepo "github.com/smallbiznis/kassa/internal/product/repository"
	productservice "github.com/smallbiznis/kassa/internal/product/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type orderFixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	svc      orderdomain.Service
	products productdomain.Service
	tenantID snowflake.ID
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&productdomain.Product{},
		&inventorydomain.StockLevel{},
		&inventorydomain.StockMovement{},
		&orderdomain.Order{},
		&orderdomain.OrderItem{},
		&orderdomain.OrderCounter{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	products := productservice.New(productservice.ServiceParam{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  productrepo.Provide(),
	})
	inventory := inventoryservice.New(inventoryservice.Params{Log: log, GenID: node})
	svc := New(Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Products:  products,
		Inventory: inventory,
	})

	return &orderFixture{
		db:       db,
		node:     node,
		svc:      svc,
		products: products,
		tenantID: node.Generate(),
	}
}

func (f *orderFixture) seedProduct(t *testing.T, sku string, priceCents, onHand int64) {
	t.Helper()
	_, err := f.products.Create(context.Background(), f.tenantID, productdomain.CreateRequest{
		SKU:        sku,
		Name:       "Product " + sku,
		PriceCents: priceCents,
	})
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&inventorydomain.StockLevel{
		ID:       f.node.Generate(),
		TenantID: f.tenantID,
		SKU:      sku,
		OnHand:   onHand,
	}).Error)
}

func TestIngestOfflineComputesTotals(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.seedProduct(t, "COFFEE", 450, 100)
	f.seedProduct(t, "MUG", 1200, 10)

	override := int64(1000)
	res, err := f.svc.IngestOffline(ctx, f.db, f.tenantID, nil, orderdomain.OfflineOrderPayload{
		Items: []orderdomain.OfflineOrderItem{
			{SKU: "COFFEE", Quantity: 2},
			{SKU: "MUG", Quantity: 1, UnitPriceCents: &override},
		},
		DiscountCents: 100,
	})
	require.NoError(t, err)

	// 2*450 + 1*1000 - 100
	assert.Equal(t, int64(1800), res.TotalCents)
	assert.Equal(t, int64(1), res.Number)

	record, err := f.svc.GetByID(ctx, f.tenantID, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCompleted, record.Status)
	assert.Equal(t, orderdomain.SourceOffline, record.Source)
	assert.Equal(t, int64(1900), record.SubtotalCents)
	require.Len(t, record.Items, 2)
	bySKU := make(map[string]orderdomain.OrderItem, len(record.Items))
	for _, item := range record.Items {
		bySKU[item.SKU] = item
	}
	assert.Equal(t, "Product COFFEE", bySKU["COFFEE"].Name)
	assert.Equal(t, int64(450), bySKU["COFFEE"].UnitPriceCents)
	assert.Equal(t, int64(1000), bySKU["MUG"].UnitPriceCents, "client price override wins over catalog price")
}

func TestIngestOfflineAssignsSequentialNumbers(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.seedProduct(t, "P", 100, 100)

	for want := int64(1); want <= 3; want++ {
		res, err := f.svc.IngestOffline(ctx, f.db, f.tenantID, nil, orderdomain.OfflineOrderPayload{
			Items: []orderdomain.OfflineOrderItem{{SKU: "P", Quantity: 1}},
		})
		require.NoError(t, err)
		assert.Equal(t, want, res.Number)
	}
}

func TestIngestOfflineDecrementsStock(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.seedProduct(t, "P", 100, 5)

	_, err := f.svc.IngestOffline(ctx, f.db, f.tenantID, nil, orderdomain.OfflineOrderPayload{
		Items: []orderdomain.OfflineOrderItem{{SKU: "P", Quantity: 3}},
	})
	require.NoError(t, err)

	var level inventorydomain.StockLevel
	require.NoError(t, f.db.Where("tenant_id = ? AND sku = ?", f.tenantID, "P").First(&level).Error)
	assert.Equal(t, int64(2), level.OnHand)

	_, err = f.svc.IngestOffline(ctx, f.db, f.tenantID, nil, orderdomain.OfflineOrderPayload{
		Items: []orderdomain.OfflineOrderItem{{SKU: "P", Quantity: 3}},
	})
	assert.ErrorIs(t, err, inventorydomain.ErrInsufficientStock)
}

func TestIngestOfflineValidation(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.seedProduct(t, "P", 100, 10)

	_, err := f.svc.IngestOffline(ctx, f.db, f.tenantID, nil, orderdomain.OfflineOrderPayload{})
	assert.ErrorIs(t, err, orderdomain.ErrEmptyOrder)

	_, err = f.svc.IngestOffline(ctx, f.db, f.tenantID, nil, orderdomain.OfflineOrderPayload{
		Items: []orderdomain.OfflineOrderItem{{SKU: "P", Quantity: 0}},
	})
	assert.ErrorIs(t, err, orderdomain.ErrInvalidItem)

	_, err = f.svc.IngestOffline(ctx, f.db, f.tenantID, nil, orderdomain.OfflineOrderPayload{
		Items:         []orderdomain.OfflineOrderItem{{SKU: "P", Quantity: 1}},
		DiscountCents: 500,
	})
	assert.ErrorIs(t, err, orderdomain.ErrInvalidDiscount, "discount above subtotal is rejected")

	_, err = f.svc.IngestOffline(ctx, f.db, f.tenantID, nil, orderdomain.OfflineOrderPayload{
		Items: []orderdomain.OfflineOrderItem{{SKU: "GHOST", Quantity: 1}},
	})
	assert.ErrorIs(t, err, productdomain.ErrNotFound)

	// Deactivated products are off the menu for new orders.
	require.NoError(t, f.products.Deactivate(ctx, f.tenantID, "P"))
	_, err = f.svc.IngestOffline(ctx, f.db, f.tenantID, nil, orderdomain.OfflineOrderPayload{
		Items: []orderdomain.OfflineOrderItem{{SKU: "P", Quantity: 1}},
	})
	assert.ErrorIs(t, err, productdomain.ErrNotFound)
}

func TestIngestOfflineKeepsClientPlacedAt(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.seedProduct(t, "P", 100, 10)

	placedAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	res, err := f.svc.IngestOffline(ctx, f.db, f.tenantID, nil, orderdomain.OfflineOrderPayload{
		Items:    []orderdomain.OfflineOrderItem{{SKU: "P", Quantity: 1}},
		PlacedAt: &placedAt,
	})
	require.NoError(t, err)

	record, err := f.svc.GetByID(ctx, f.tenantID, res.OrderID)
	require.NoError(t, err)
	assert.True(t, placedAt.Equal(record.PlacedAt), "stored placed_at keeps the client timestamp")
}

func TestPromoteHeldOrder(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	held := &orderdomain.Order{
		ID:            f.node.Generate(),
		TenantID:      f.tenantID,
		Number:        7,
		Status:        orderdomain.StatusHeld,
		Source:        orderdomain.SourceOnline,
		SubtotalCents: 2500,
		TotalCents:    2500,
		PlacedAt:      time.Now().UTC(),
	}
	require.NoError(t, f.db.Create(held).Error)

	terminalID := f.node.Generate()
	res, err := f.svc.Promote(ctx, f.db, f.tenantID, &terminalID, orderdomain.PromotePayload{
		OrderID: held.ID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Number)
	assert.Equal(t, int64(2500), res.TotalCents)

	record, err := f.svc.GetByID(ctx, f.tenantID, held.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCompleted, record.Status)
	assert.Equal(t, orderdomain.SourcePromoted, record.Source)
	require.NotNil(t, record.TerminalID)
	assert.Equal(t, terminalID, *record.TerminalID)

	// Promoting twice is a business rejection, not a silent no-op.
	_, err = f.svc.Promote(ctx, f.db, f.tenantID, &terminalID, orderdomain.PromotePayload{
		OrderID: held.ID.String(),
	})
	assert.ErrorIs(t, err, orderdomain.ErrNotHeld)
}

func TestPromoteUnknownOrder(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	_, err := f.svc.Promote(ctx, f.db, f.tenantID, nil, orderdomain.PromotePayload{OrderID: "garbage"})
	assert.ErrorIs(t, err, orderdomain.ErrInvalidOrderID)

	_, err = f.svc.Promote(ctx, f.db, f.tenantID, nil, orderdomain.PromotePayload{
		OrderID: f.node.Generate().String(),
	})
	assert.ErrorIs(t, err, orderdomain.ErrNotFound)
}
