package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ProcessedOperation is one ledger entry per applied terminal
// operation. The composite key (tenant_id, terminal_id, operation_id)
// is the idempotency boundary: operation IDs are client-generated and
// only unique per terminal.
type ProcessedOperation struct {
	ID            snowflake.ID      `gorm:"primaryKey"`
	TenantID      snowflake.ID      `gorm:"column:tenant_id;not null;uniqueIndex:ux_processed_ops_scope,priority:1"`
	TerminalID    snowflake.ID      `gorm:"column:terminal_id;not null;uniqueIndex:ux_processed_ops_scope,priority:2"`
	OperationID   string            `gorm:"column:operation_id;type:text;not null;uniqueIndex:ux_processed_ops_scope,priority:3"`
	OperationType string            `gorm:"column:operation_type;type:text;not null"`
	Result        datatypes.JSONMap `gorm:"column:result;not null"`
	OrderID       *snowflake.ID     `gorm:"column:order_id"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	ExpiresAt     time.Time         `gorm:"column:expires_at;not null;index:ix_processed_ops_expires_at"`
}

// TableName sets the database table name.
func (ProcessedOperation) TableName() string { return "processed_operations" }

// ErrDuplicateOperation is returned when a ledger insert hits the
// composite uniqueness constraint. Callers treat it as "already
// processed" and re-read the winning row.
var ErrDuplicateOperation = errors.New("duplicate_operation")
