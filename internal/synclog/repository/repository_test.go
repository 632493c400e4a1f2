package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	synclogdomain "github.com/smallbiznis/kassa/internal/synclog/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func openLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&synclogdomain.ProcessedOperation{}))
	// SQLite needs the composite unique index in place for ON CONFLICT.
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS ux_processed_ops_scope ON processed_operations(tenant_id, terminal_id, operation_id)")
	return db
}

func newEntry(node *snowflake.Node, tenantID, terminalID snowflake.ID, opID string, expiresAt time.Time) *synclogdomain.ProcessedOperation {
	return &synclogdomain.ProcessedOperation{
		ID:            node.Generate(),
		TenantID:      tenantID,
		TerminalID:    terminalID,
		OperationID:   opID,
		OperationType: "offline_order",
		Result:        datatypes.JSONMap{"order_id": "1", "total": 19.98},
		CreatedAt:     time.Now().UTC(),
		ExpiresAt:     expiresAt,
	}
}

func TestRecordAndLookup(t *testing.T) {
	db := openLedgerDB(t)
	node, _ := snowflake.NewNode(1)
	repo := Provide()
	ctx := context.Background()

	tenantID := node.Generate()
	terminalID := node.Generate()
	opID := uuid.NewString()
	expiry := time.Now().UTC().Add(30 * 24 * time.Hour)

	missing, err := repo.Lookup(ctx, db, tenantID, terminalID, opID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.Record(ctx, db, newEntry(node, tenantID, terminalID, opID, expiry)))

	found, err := repo.Lookup(ctx, db, tenantID, terminalID, opID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, opID, found.OperationID)
	assert.Equal(t, "offline_order", found.OperationType)
	// JSON column reads produce json.Number for numeric values.
	assert.Equal(t, json.Number("19.98"), found.Result["total"])
}

func TestRecordDuplicateReturnsError(t *testing.T) {
	db := openLedgerDB(t)
	node, _ := snowflake.NewNode(1)
	repo := Provide()
	ctx := context.Background()

	tenantID := node.Generate()
	terminalID := node.Generate()
	opID := uuid.NewString()
	expiry := time.Now().UTC().Add(time.Hour)

	require.NoError(t, repo.Record(ctx, db, newEntry(node, tenantID, terminalID, opID, expiry)))

	err := repo.Record(ctx, db, newEntry(node, tenantID, terminalID, opID, expiry))
	assert.ErrorIs(t, err, synclogdomain.ErrDuplicateOperation)

	var count int64
	db.Model(&synclogdomain.ProcessedOperation{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestOperationIDScopedPerTerminal(t *testing.T) {
	db := openLedgerDB(t)
	node, _ := snowflake.NewNode(1)
	repo := Provide()
	ctx := context.Background()

	tenantID := node.Generate()
	terminalA := node.Generate()
	terminalB := node.Generate()
	opID := uuid.NewString()
	expiry := time.Now().UTC().Add(time.Hour)

	require.NoError(t, repo.Record(ctx, db, newEntry(node, tenantID, terminalA, opID, expiry)))
	require.NoError(t, repo.Record(ctx, db, newEntry(node, tenantID, terminalB, opID, expiry)))

	foundA, err := repo.Lookup(ctx, db, tenantID, terminalA, opID)
	require.NoError(t, err)
	require.NotNil(t, foundA)
	foundB, err := repo.Lookup(ctx, db, tenantID, terminalB, opID)
	require.NoError(t, err)
	require.NotNil(t, foundB)
	assert.NotEqual(t, foundA.ID, foundB.ID)
}

func TestDeleteExpiredKeepsLiveRows(t *testing.T) {
	db := openLedgerDB(t)
	node, _ := snowflake.NewNode(1)
	repo := Provide()
	ctx := context.Background()

	tenantID := node.Generate()
	terminalID := node.Generate()
	now := time.Now().UTC()

	expired := []string{uuid.NewString(), uuid.NewString(), uuid.NewString()}
	for _, opID := range expired {
		require.NoError(t, repo.Record(ctx, db, newEntry(node, tenantID, terminalID, opID, now.Add(-time.Hour))))
	}
	liveID := uuid.NewString()
	require.NoError(t, repo.Record(ctx, db, newEntry(node, tenantID, terminalID, liveID, now.Add(time.Hour))))

	removed, err := repo.DeleteExpired(ctx, db, now, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	live, err := repo.Lookup(ctx, db, tenantID, terminalID, liveID)
	require.NoError(t, err)
	assert.NotNil(t, live)
}

func TestDeleteExpiredHonorsBatchLimit(t *testing.T) {
	db := openLedgerDB(t)
	node, _ := snowflake.NewNode(1)
	repo := Provide()
	ctx := context.Background()

	tenantID := node.Generate()
	terminalID := node.Generate()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Record(ctx, db, newEntry(node, tenantID, terminalID, uuid.NewString(), now.Add(-time.Hour))))
	}

	removed, err := repo.DeleteExpired(ctx, db, now, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	var count int64
	db.Model(&synclogdomain.ProcessedOperation{}).Count(&count)
	assert.Equal(t, int64(3), count)
}
