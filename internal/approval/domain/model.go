package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Approver is a manager who can authorize voids and discounts at a
// terminal by entering a PIN. Only the PIN hash is stored.
type Approver struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"column:tenant_id;not null;uniqueIndex:ux_approvers_tenant_code,priority:1"`
	Code      string       `gorm:"column:code;type:text;not null;uniqueIndex:ux_approvers_tenant_code,priority:2"`
	Name      string       `gorm:"type:text;not null"`
	PINHash   string       `gorm:"column:pin_hash;type:text;not null"`
	IsActive  bool         `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Approver) TableName() string { return "approvers" }

// ApprovalRecord is the audit entry behind every authorized void or
// discount.
type ApprovalRecord struct {
	ID          snowflake.ID  `gorm:"primaryKey"`
	TenantID    snowflake.ID  `gorm:"column:tenant_id;not null;index:ix_approval_records_tenant"`
	OrderID     snowflake.ID  `gorm:"column:order_id;not null"`
	ApproverID  snowflake.ID  `gorm:"column:approver_id;not null"`
	TerminalID  *snowflake.ID `gorm:"column:terminal_id"`
	Action      string        `gorm:"column:action;type:text;not null"`
	AmountCents int64         `gorm:"column:amount_cents;not null;default:0"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ApprovalRecord) TableName() string { return "approval_records" }
