package domain

import (
	"context"
	"encoding/json"
	"errors"

	terminaldomain "github.com/smallbiznis/kassa/internal/terminal/domain"
)

// OperationType enumerates what terminals can queue while offline.
type OperationType string

const (
	OpOfflineOrder     OperationType = "offline_order"
	OpOfflineInventory OperationType = "offline_inventory"
	OpOfflineApproval  OperationType = "offline_approval"
	OpPromotedOrder    OperationType = "promoted_order"
)

func (t OperationType) Valid() bool {
	switch t {
	case OpOfflineOrder, OpOfflineInventory, OpOfflineApproval, OpPromotedOrder:
		return true
	}
	return false
}

var (
	ErrEmptyBatch         = errors.New("empty_batch")
	ErrBatchTooLarge      = errors.New("batch_too_large")
	ErrInvalidOperation   = errors.New("invalid_operation")
	ErrUnknownType        = errors.New("unknown_operation_type")
	ErrMalformedPayload   = errors.New("malformed_payload")
	ErrLedgerInconsistent = errors.New("ledger_inconsistent")
)

// OperationEnvelope is one queued operation as submitted on the wire.
// The operation ID is client generated and only unique per terminal.
type OperationEnvelope struct {
	OperationID   string          `json:"operation_id"`
	OperationType OperationType   `json:"operation_type"`
	Payload       json.RawMessage `json:"payload"`
}

// BatchRequest is a terminal's sync submission. Operations apply in
// array order: later entries may depend on earlier ones.
type BatchRequest struct {
	Operations []OperationEnvelope `json:"operations"`
}

// OperationResult reports one operation's outcome. Replayed results
// come verbatim from the ledger, so a retried submission reads exactly
// like the original response.
type OperationResult struct {
	OperationID string          `json:"operation_id"`
	Success     bool            `json:"success"`
	Replayed    bool            `json:"replayed,omitempty"`
	Result      map[string]any  `json:"result,omitempty"`
	Error       *OperationError `json:"error,omitempty"`
}

type OperationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type BatchResponse struct {
	Results []OperationResult `json:"results"`
}

type Service interface {
	// ProcessBatch applies a terminal's operations sequentially in
	// submission order. Domain rejections and replays are reported
	// per operation; only infrastructure failures abort the batch.
	ProcessBatch(ctx context.Context, terminal *terminaldomain.Terminal, req BatchRequest) (*BatchResponse, error)
}
