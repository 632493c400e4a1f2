package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	ActionVoid     = "void"
	ActionDiscount = "discount"
)

var (
	ErrInvalidAction   = errors.New("invalid_action")
	ErrInvalidApprover = errors.New("invalid_approver")
	ErrInvalidPIN      = errors.New("invalid_pin")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCode     = errors.New("invalid_code")
	ErrInvalidName     = errors.New("invalid_name")
	ErrDuplicateCode   = errors.New("duplicate_code")
	ErrNotFound        = errors.New("approver_not_found")
)

// ApprovalPayload is the offline approval envelope. The PIN travels in
// the payload because the approving manager has no session of their
// own at the terminal.
type ApprovalPayload struct {
	OrderID      string `json:"order_id"`
	ApproverCode string `json:"approver_code"`
	PIN          string `json:"pin"`
	Action       string `json:"action"`
	AmountCents  int64  `json:"amount_cents,omitempty"`
}

type ApprovalResult struct {
	OrderID     snowflake.ID
	Action      string
	AmountCents int64
	TotalCents  int64
}

type RegisterApproverRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
	PIN  string `json:"pin"`
}

type Service interface {
	// ApplyOfflineApproval verifies the manager PIN and applies the
	// requested action to the order inside the caller's transaction.
	ApplyOfflineApproval(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, terminalID *snowflake.ID, payload ApprovalPayload) (*ApprovalResult, error)

	// RegisterApprover creates a manager with a hashed PIN.
	RegisterApprover(ctx context.Context, tenantID snowflake.ID, req RegisterApproverRequest) (*Approver, error)
}
