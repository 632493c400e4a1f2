package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/lib/pq"
	approvaldomain "github.com/smallbiznis/kassa/internal/approval/domain"
	approvalservice "github.com/smallbiznis/kassa/internal/approval/service"
	"github.com/smallbiznis/kassa/internal/clock"
	"github.com/smallbiznis/kassa/internal/config"
	"github.com/smallbiznis/kassa/internal/events"
	inventorydomain "github.com/smallbiznis/kassa/internal/inventory/domain"
	inventoryservice "github.com/smallbiznis/kassa/internal/inventory/service"
	"github.com/smallbiznis/kassa/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/kassa/internal/order/domain"
	orderservice "github.com/smallbiznis/kassa/internal/order/service"
	productdomain "github.com/smallbiznis/kassa/internal/product/domain"
	productrepo "github.com/smallbiznis/kassa/internal/product/repository"
	productservice "github.com/smallbiznis/kassa/internal/product/service"
	syncdomain "github.com/smallbiznis/kassa/internal/sync/domain"
	synclogdomain "github.com/smallbiznis/kassa/internal/synclog/domain"
	synclogrepo "github.com/smallbiznis/kassa/internal/synclog/repository"
	terminaldomain "github.com/smallbiznis/kassa/internal/terminal/domain"
	"github.com/smallbiznis/kassa/pkg/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type syncFixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	svc      syncdomain.Service
	terminal *terminaldomain.Terminal
	tenantID snowflake.ID
	products productdomain.Service
	orders   orderdomain.Service
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&terminaldomain.Terminal{},
		&approvaldomain.Approver{},
		&approvaldomain.ApprovalRecord{},
		&productdomain.Product{},
		&inventorydomain.StockLevel{},
		&inventorydomain.StockMovement{},
		&orderdomain.Order{},
		&orderdomain.OrderItem{},
		&orderdomain.OrderCounter{},
		&synclogdomain.ProcessedOperation{},
		&events.OutboxEvent{},
	))
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_processed_ops_scope ON processed_operations(tenant_id, terminal_id, operation_id)")
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_events_dedupe ON outbox_events(tenant_id, dedupe_key)")

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	m, err := metrics.New(metrics.Config{ServiceName: "test"}, noop.NewMeterProvider())
	require.NoError(t, err)

	products := productservice.New(productservice.ServiceParam{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  productrepo.Provide(),
	})
	inventory := inventoryservice.New(inventoryservice.Params{
		Log:   log,
		GenID: node,
	})
	orders := orderservice.New(orderservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Products:  products,
		Inventory: inventory,
	})
	approvals := approvalservice.New(approvalservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
	})

	tenantID := node.Generate()
	terminal := &terminaldomain.Terminal{
		ID:       node.Generate(),
		TenantID: tenantID,
		Code:     "reg-1",
		Name:     "Register 1",
		Secret:   "terminal-secret",
		Scopes:   pq.StringArray{terminaldomain.ScopeSyncWrite},
		IsActive: true,
	}
	require.NoError(t, db.Create(terminal).Error)

	svc := New(Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clock.NewSystemClock(),
		Policy:    config.NewStaticSyncPolicyHolder(config.DefaultSyncPolicy()),
		Ledger:    synclogrepo.Provide(),
		Orders:    orders,
		Inventory: inventory,
		Approvals: approvals,
		Publisher: events.NewOutboxPublisher(node),
		Metrics:   m,
	})

	return &syncFixture{
		db:       db,
		node:     node,
		svc:      svc,
		terminal: terminal,
		tenantID: tenantID,
		products: products,
		orders:   orders,
	}
}

func (f *syncFixture) seedProduct(t *testing.T, sku string, priceCents int64, onHand int64) {
	t.Helper()
	ctx := context.Background()
	_, err := f.products.Create(ctx, f.tenantID, productdomain.CreateRequest{
		SKU:        sku,
		Name:       "Product " + sku,
		PriceCents: priceCents,
	})
	require.NoError(t, err)
	if onHand > 0 {
		require.NoError(t, f.db.Create(&inventorydomain.StockLevel{
			ID:       f.node.Generate(),
			TenantID: f.tenantID,
			SKU:      sku,
			OnHand:   onHand,
		}).Error)
	}
}

func orderEnvelope(opID, sku string, qty int64) syncdomain.OperationEnvelope {
	payload, _ := json.Marshal(orderdomain.OfflineOrderPayload{
		Items: []orderdomain.OfflineOrderItem{{SKU: sku, Quantity: qty}},
	})
	return syncdomain.OperationEnvelope{
		OperationID:   opID,
		OperationType: syncdomain.OpOfflineOrder,
		Payload:       payload,
	}
}

func TestOfflineOrderRetryIsIdempotent(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.seedProduct(t, "P", 999, 10)

	opID := uuid.NewString()
	req := syncdomain.BatchRequest{Operations: []syncdomain.OperationEnvelope{
		orderEnvelope(opID, "P", 2),
	}}

	first, err := f.svc.ProcessBatch(ctx, f.terminal, req)
	require.NoError(t, err)
	require.Len(t, first.Results, 1)
	require.True(t, first.Results[0].Success)
	assert.False(t, first.Results[0].Replayed)
	assert.Equal(t, 19.98, first.Results[0].Result["total"])

	// Same operation ID again, as if the response was dropped.
	second, err := f.svc.ProcessBatch(ctx, f.terminal, req)
	require.NoError(t, err)
	require.Len(t, second.Results, 1)
	require.True(t, second.Results[0].Success)
	assert.True(t, second.Results[0].Replayed)
	assert.Equal(t, first.Results[0].Result["order_id"], second.Results[0].Result["order_id"])

	// The replay comes back through the ledger's JSON column, so
	// compare the serialized forms rather than in-memory types.
	firstJSON, err := json.Marshal(first.Results[0].Result)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second.Results[0].Result)
	require.NoError(t, err)
	assert.JSONEq(t, string(firstJSON), string(secondJSON))

	var orderCount int64
	f.db.Model(&orderdomain.Order{}).Count(&orderCount)
	assert.Equal(t, int64(1), orderCount, "retry must not create a second order")

	var level inventorydomain.StockLevel
	require.NoError(t, f.db.Where("tenant_id = ? AND sku = ?", f.tenantID, "P").First(&level).Error)
	assert.Equal(t, int64(8), level.OnHand, "stock decremented exactly once")

	// Each batch stages its own summary event, replayed or not.
	var synced int64
	f.db.Model(&events.OutboxEvent{}).
		Where("event_type = ?", events.TopicTerminalSynced).
		Count(&synced)
	assert.Equal(t, int64(2), synced)
}

func TestBatchAppliesInSubmissionOrder(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.seedProduct(t, "P", 500, 2)

	// The order consumes the last two units; the following adjustment
	// restocks, so the second order only succeeds if ordering holds.
	adjustment, _ := json.Marshal(inventorydomain.AdjustmentPayload{
		Adjustments: []inventorydomain.Adjustment{{SKU: "P", Delta: 3}},
	})
	ops := []syncdomain.OperationEnvelope{
		orderEnvelope(uuid.NewString(), "P", 2),
		{
			OperationID:   uuid.NewString(),
			OperationType: syncdomain.OpOfflineInventory,
			Payload:       adjustment,
		},
		orderEnvelope(uuid.NewString(), "P", 3),
	}

	resp, err := f.svc.ProcessBatch(ctx, f.terminal, syncdomain.BatchRequest{Operations: ops})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	for i, result := range resp.Results {
		assert.True(t, result.Success, "operation %d should succeed", i)
		assert.Equal(t, ops[i].OperationID, result.OperationID, "results keep submission order")
	}

	var level inventorydomain.StockLevel
	require.NoError(t, f.db.Where("tenant_id = ? AND sku = ?", f.tenantID, "P").First(&level).Error)
	assert.Equal(t, int64(0), level.OnHand)
}

func TestPartialBatchFailure(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.seedProduct(t, "P", 1000, 5)

	failingID := uuid.NewString()
	ops := []syncdomain.OperationEnvelope{
		orderEnvelope(uuid.NewString(), "P", 1),
		orderEnvelope(failingID, "P", 50),
		orderEnvelope(uuid.NewString(), "P", 1),
	}

	resp, err := f.svc.ProcessBatch(ctx, f.terminal, syncdomain.BatchRequest{Operations: ops})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)

	assert.True(t, resp.Results[0].Success)
	assert.False(t, resp.Results[1].Success)
	require.NotNil(t, resp.Results[1].Error)
	assert.Equal(t, "insufficient_stock", resp.Results[1].Error.Code)
	assert.True(t, resp.Results[2].Success, "failure of one operation must not poison the rest")

	// Rejections are not idempotency-tracked.
	var ledgerCount int64
	f.db.Model(&synclogdomain.ProcessedOperation{}).Count(&ledgerCount)
	assert.Equal(t, int64(2), ledgerCount)

	// The failed operation left no partial order behind.
	var orderCount int64
	f.db.Model(&orderdomain.Order{}).Count(&orderCount)
	assert.Equal(t, int64(2), orderCount)
}

func TestRejectedOperationCanBeResubmitted(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.seedProduct(t, "P", 250, 1)

	opID := uuid.NewString()
	req := syncdomain.BatchRequest{Operations: []syncdomain.OperationEnvelope{
		orderEnvelope(opID, "P", 5),
	}}

	resp, err := f.svc.ProcessBatch(ctx, f.terminal, req)
	require.NoError(t, err)
	require.False(t, resp.Results[0].Success)

	// Restock, then resubmit the same operation ID with a fixed world.
	require.NoError(t, f.db.Model(&inventorydomain.StockLevel{}).
		Where("tenant_id = ? AND sku = ?", f.tenantID, "P").
		Update("on_hand", 10).Error)

	resp, err = f.svc.ProcessBatch(ctx, f.terminal, req)
	require.NoError(t, err)
	assert.True(t, resp.Results[0].Success)
	assert.False(t, resp.Results[0].Replayed)
}

func TestDifferentTerminalsShareOperationIDs(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.seedProduct(t, "P", 100, 10)

	other := &terminaldomain.Terminal{
		ID:       f.node.Generate(),
		TenantID: f.tenantID,
		Code:     "reg-2",
		Name:     "Register 2",
		Secret:   "other-secret",
		Scopes:   pq.StringArray{terminaldomain.ScopeSyncWrite},
		IsActive: true,
	}
	require.NoError(t, f.db.Create(other).Error)

	opID := uuid.NewString()
	req := syncdomain.BatchRequest{Operations: []syncdomain.OperationEnvelope{
		orderEnvelope(opID, "P", 1),
	}}

	respA, err := f.svc.ProcessBatch(ctx, f.terminal, req)
	require.NoError(t, err)
	respB, err := f.svc.ProcessBatch(ctx, other, req)
	require.NoError(t, err)

	assert.True(t, respA.Results[0].Success)
	assert.True(t, respB.Results[0].Success)
	assert.False(t, respB.Results[0].Replayed, "terminals do not share idempotency scope")

	var orderCount int64
	f.db.Model(&orderdomain.Order{}).Count(&orderCount)
	assert.Equal(t, int64(2), orderCount)
}

func TestMalformedPayloadRejected(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	resp, err := f.svc.ProcessBatch(ctx, f.terminal, syncdomain.BatchRequest{
		Operations: []syncdomain.OperationEnvelope{
			{
				OperationID:   uuid.NewString(),
				OperationType: syncdomain.OpOfflineOrder,
				Payload:       json.RawMessage(`{"items": "not-a-list"}`),
			},
			{
				OperationID:   uuid.NewString(),
				OperationType: "firmware_update",
				Payload:       json.RawMessage(`{}`),
			},
			{
				OperationID:   "not-a-uuid",
				OperationType: syncdomain.OpOfflineOrder,
				Payload:       json.RawMessage(`{}`),
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "malformed_payload", resp.Results[0].Error.Code)
	assert.Equal(t, "unknown_operation_type", resp.Results[1].Error.Code)
	assert.Equal(t, "invalid_operation", resp.Results[2].Error.Code)
}

func TestBatchLimits(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	_, err := f.svc.ProcessBatch(ctx, f.terminal, syncdomain.BatchRequest{})
	assert.ErrorIs(t, err, syncdomain.ErrEmptyBatch)

	policy := config.DefaultSyncPolicy()
	ops := make([]syncdomain.OperationEnvelope, policy.MaxBatchOperations+1)
	for i := range ops {
		ops[i] = orderEnvelope(uuid.NewString(), "P", 1)
	}
	_, err = f.svc.ProcessBatch(ctx, f.terminal, syncdomain.BatchRequest{Operations: ops})
	assert.ErrorIs(t, err, syncdomain.ErrBatchTooLarge)
}

func TestOfflineApprovalVoidsOrder(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.seedProduct(t, "P", 1500, 10)

	orderResp, err := f.svc.ProcessBatch(ctx, f.terminal, syncdomain.BatchRequest{
		Operations: []syncdomain.OperationEnvelope{orderEnvelope(uuid.NewString(), "P", 1)},
	})
	require.NoError(t, err)
	orderID := orderResp.Results[0].Result["order_id"].(string)

	pinHash, err := password.Hash("4242")
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&approvaldomain.Approver{
		ID:       f.node.Generate(),
		TenantID: f.tenantID,
		Code:     "mgr-1",
		Name:     "Manager",
		PINHash:  pinHash,
		IsActive: true,
	}).Error)

	payload, _ := json.Marshal(approvaldomain.ApprovalPayload{
		OrderID:      orderID,
		ApproverCode: "mgr-1",
		PIN:          "4242",
		Action:       approvaldomain.ActionVoid,
	})
	resp, err := f.svc.ProcessBatch(ctx, f.terminal, syncdomain.BatchRequest{
		Operations: []syncdomain.OperationEnvelope{{
			OperationID:   uuid.NewString(),
			OperationType: syncdomain.OpOfflineApproval,
			Payload:       payload,
		}},
	})
	require.NoError(t, err)
	require.True(t, resp.Results[0].Success)

	parsed, err := snowflake.ParseString(orderID)
	require.NoError(t, err)
	record, err := f.orders.GetByID(ctx, f.tenantID, parsed)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusVoided, record.Status)
	assert.NotNil(t, record.VoidedAt)
}

func TestWrongPINRejectedAndNotTracked(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.seedProduct(t, "P", 1500, 10)

	orderResp, err := f.svc.ProcessBatch(ctx, f.terminal, syncdomain.BatchRequest{
		Operations: []syncdomain.OperationEnvelope{orderEnvelope(uuid.NewString(), "P", 1)},
	})
	require.NoError(t, err)
	orderID := orderResp.Results[0].Result["order_id"].(string)

	pinHash, err := password.Hash("4242")
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&approvaldomain.Approver{
		ID:       f.node.Generate(),
		TenantID: f.tenantID,
		Code:     "mgr-1",
		Name:     "Manager",
		PINHash:  pinHash,
		IsActive: true,
	}).Error)

	payload, _ := json.Marshal(approvaldomain.ApprovalPayload{
		OrderID:      orderID,
		ApproverCode: "mgr-1",
		PIN:          "0000",
		Action:       approvaldomain.ActionVoid,
	})
	opID := uuid.NewString()
	resp, err := f.svc.ProcessBatch(ctx, f.terminal, syncdomain.BatchRequest{
		Operations: []syncdomain.OperationEnvelope{{
			OperationID:   opID,
			OperationType: syncdomain.OpOfflineApproval,
			Payload:       payload,
		}},
	})
	require.NoError(t, err)
	require.False(t, resp.Results[0].Success)
	assert.Equal(t, "invalid_pin", resp.Results[0].Error.Code)

	var ledgerCount int64
	f.db.Model(&synclogdomain.ProcessedOperation{}).
		Where("operation_id = ?", opID).
		Count(&ledgerCount)
	assert.Equal(t, int64(0), ledgerCount)
}

func TestLedgerEntriesCarryRetentionExpiry(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.seedProduct(t, "P", 100, 5)

	before := time.Now().UTC()
	_, err := f.svc.ProcessBatch(ctx, f.terminal, syncdomain.BatchRequest{
		Operations: []syncdomain.OperationEnvelope{orderEnvelope(uuid.NewString(), "P", 1)},
	})
	require.NoError(t, err)

	var entry synclogdomain.ProcessedOperation
	require.NoError(t, f.db.First(&entry).Error)

	retention := time.Duration(config.DefaultSyncPolicy().RetentionDays) * 24 * time.Hour
	assert.WithinDuration(t, before.Add(retention), entry.ExpiresAt, time.Minute)
}

func TestExpiredEntryStillReplaysUntilSwept(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	f.seedProduct(t, "P", 100, 5)

	opID := uuid.NewString()
	req := syncdomain.BatchRequest{
		Operations: []syncdomain.OperationEnvelope{orderEnvelope(opID, "P", 1)},
	}
	first, err := f.svc.ProcessBatch(ctx, f.terminal, req)
	require.NoError(t, err)
	require.True(t, first.Results[0].Success)

	// Push the entry past its retention window without sweeping it.
	// Dedupe follows the row's existence, not its expiry.
	res := f.db.Model(&synclogdomain.ProcessedOperation{}).
		Where("operation_id = ?", opID).
		Update("expires_at", time.Now().UTC().Add(-48*time.Hour))
	require.NoError(t, res.Error)
	require.Equal(t, int64(1), res.RowsAffected)

	second, err := f.svc.ProcessBatch(ctx, f.terminal, req)
	require.NoError(t, err)
	require.True(t, second.Results[0].Success)
	assert.True(t, second.Results[0].Replayed)

	var orderCount int64
	f.db.Model(&orderdomain.Order{}).Count(&orderCount)
	assert.Equal(t, int64(1), orderCount)
}
