package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	approvaldomain "github.com/smallbiznis/kassa/internal/approval/domain"
	"github.com/smallbiznis/kassa/internal/clock"
	"github.com/smallbiznis/kassa/internal/config"
	"github.com/smallbiznis/kassa/internal/events"
	inventorydomain "github.com/smallbiznis/kassa/internal/inventory/domain"
	"github.com/smallbiznis/kassa/internal/observability/logger"
	"github.com/smallbiznis/kassa/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/kassa/internal/order/domain"
	productdomain "github.com/smallbiznis/kassa/internal/product/domain"
	syncdomain "github.com/smallbiznis/kassa/internal/sync/domain"
	synclogdomain "github.com/smallbiznis/kassa/internal/synclog/domain"
	synclogrepo "github.com/smallbiznis/kassa/internal/synclog/repository"
	terminaldomain "github.com/smallbiznis/kassa/internal/terminal/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const hoursPerDay = 24

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Policy    *config.SyncPolicyHolder
	Ledger    synclogrepo.Repository
	Orders    orderdomain.Service
	Inventory inventorydomain.Service
	Approvals approvaldomain.Service
	Publisher events.Publisher
	Metrics   *metrics.Metrics
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	policy    *config.SyncPolicyHolder
	ledger    synclogrepo.Repository
	orders    orderdomain.Service
	inventory inventorydomain.Service
	approvals approvaldomain.Service
	publisher events.Publisher
	metrics   *metrics.Metrics
}

func New(p Params) syncdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("sync.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		policy:    p.Policy,
		ledger:    p.Ledger,
		orders:    p.Orders,
		inventory: p.Inventory,
		approvals: p.Approvals,
		publisher: p.Publisher,
		metrics:   p.Metrics,
	}
}

func (s *Service) ProcessBatch(ctx context.Context, terminal *terminaldomain.Terminal, req syncdomain.BatchRequest) (*syncdomain.BatchResponse, error) {
	if len(req.Operations) == 0 {
		return nil, syncdomain.ErrEmptyBatch
	}
	policy := s.policy.Get()
	if policy.MaxBatchOperations > 0 && len(req.Operations) > policy.MaxBatchOperations {
		return nil, syncdomain.ErrBatchTooLarge
	}

	log := logger.FromContext(ctx).With(
		zap.String("tenant_id", terminal.TenantID.String()),
		zap.String("terminal_code", terminal.Code),
	)

	// Operations apply strictly in submission order: a later entry may
	// depend on an earlier one's effects.
	results := make([]syncdomain.OperationResult, 0, len(req.Operations))
	for i := range req.Operations {
		result := s.processOne(ctx, terminal, req.Operations[i])
		if result.Error != nil {
			log.Info("sync operation rejected",
				zap.String("operation_id", result.OperationID),
				zap.String("operation_type", string(req.Operations[i].OperationType)),
				zap.String("error_code", result.Error.Code),
			)
		}
		results = append(results, result)
	}

	var applied, replayed, rejected int
	for i := range results {
		switch {
		case !results[i].Success:
			rejected++
		case results[i].Replayed:
			replayed++
		default:
			applied++
		}
	}

	// Batch bookkeeping, outside the per-operation transactions: a
	// failed publish must not undo operations that already committed.
	if err := s.publisher.Publish(ctx, s.db, terminal.TenantID, events.TopicTerminalSynced, map[string]any{
		"terminal_code": terminal.Code,
		"applied":       applied,
		"replayed":      replayed,
		"rejected":      rejected,
	}, ""); err != nil {
		log.Warn("terminal sync event not staged", zap.Error(err))
	}

	log.Info("sync batch processed",
		zap.Int("operations", len(req.Operations)),
		zap.Int("applied", applied),
		zap.Int("replayed", replayed),
		zap.Int("rejected", rejected),
	)
	return &syncdomain.BatchResponse{Results: results}, nil
}

func (s *Service) processOne(ctx context.Context, terminal *terminaldomain.Terminal, env syncdomain.OperationEnvelope) syncdomain.OperationResult {
	opID := strings.TrimSpace(env.OperationID)
	if _, err := uuid.Parse(opID); err != nil {
		s.metrics.RecordSyncRejection(ctx, string(env.OperationType), syncdomain.ErrInvalidOperation.Error())
		return rejection(opID, syncdomain.ErrInvalidOperation)
	}
	if !env.OperationType.Valid() {
		s.metrics.RecordSyncRejection(ctx, string(env.OperationType), syncdomain.ErrUnknownType.Error())
		return rejection(opID, syncdomain.ErrUnknownType)
	}

	var (
		result   map[string]any
		replayed bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.ledger.Lookup(ctx, tx, terminal.TenantID, terminal.ID, opID)
		if err != nil {
			return err
		}
		if existing != nil {
			// Replay path: return the stored result unchanged, no
			// domain logic re-executes.
			result = map[string]any(existing.Result)
			replayed = true
			return nil
		}

		res, orderID, err := s.dispatch(ctx, tx, terminal, env)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		entry := &synclogdomain.ProcessedOperation{
			ID:            s.genID.Generate(),
			TenantID:      terminal.TenantID,
			TerminalID:    terminal.ID,
			OperationID:   opID,
			OperationType: string(env.OperationType),
			Result:        datatypes.JSONMap(res),
			OrderID:       orderID,
			CreatedAt:     now,
			ExpiresAt:     now.Add(time.Duration(s.policy.Get().RetentionDays) * hoursPerDay * time.Hour),
		}
		if err := s.ledger.Record(ctx, tx, entry); err != nil {
			// A concurrent request won the insert. Roll everything
			// back and serve the winner's result instead.
			return err
		}

		result = res
		return nil
	})

	if err != nil {
		if errors.Is(err, synclogdomain.ErrDuplicateOperation) {
			return s.replayFromLedger(ctx, terminal, env, opID)
		}
		if isDomainRejection(err) {
			s.metrics.RecordSyncRejection(ctx, string(env.OperationType), err.Error())
			return rejection(opID, err)
		}
		s.log.Error("sync operation failed",
			zap.String("operation_id", opID),
			zap.String("operation_type", string(env.OperationType)),
			zap.Error(err),
		)
		return internalFailure(opID)
	}

	if replayed {
		s.metrics.RecordSyncReplay(ctx, string(env.OperationType))
	} else {
		s.metrics.RecordSyncOperation(ctx, string(env.OperationType))
	}

	return syncdomain.OperationResult{
		OperationID: opID,
		Success:     true,
		Replayed:    replayed,
		Result:      result,
	}
}

// replayFromLedger serves the committed result of the request that won
// a concurrent duplicate race.
func (s *Service) replayFromLedger(ctx context.Context, terminal *terminaldomain.Terminal, env syncdomain.OperationEnvelope, opID string) syncdomain.OperationResult {
	existing, err := s.ledger.Lookup(ctx, s.db, terminal.TenantID, terminal.ID, opID)
	if err != nil {
		s.log.Error("ledger re-read failed",
			zap.String("operation_id", opID),
			zap.Error(err),
		)
		return internalFailure(opID)
	}
	if existing == nil {
		// The unique index reported a conflict but no committed row is
		// visible. Surface it as retryable so the terminal resubmits.
		s.log.Error("duplicate insert without a visible ledger row",
			zap.String("operation_id", opID),
			zap.Error(syncdomain.ErrLedgerInconsistent),
		)
		return rejection(opID, syncdomain.ErrLedgerInconsistent)
	}

	s.metrics.RecordSyncReplay(ctx, string(env.OperationType))
	return syncdomain.OperationResult{
		OperationID: opID,
		Success:     true,
		Replayed:    true,
		Result:      map[string]any(existing.Result),
	}
}

func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, terminal *terminaldomain.Terminal, env syncdomain.OperationEnvelope) (map[string]any, *snowflake.ID, error) {
	terminalID := terminal.ID
	dedupeKey := fmt.Sprintf("sync:%s:%s", terminalID.String(), strings.TrimSpace(env.OperationID))

	switch env.OperationType {
	case syncdomain.OpOfflineOrder:
		var payload orderdomain.OfflineOrderPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, nil, syncdomain.ErrMalformedPayload
		}
		res, err := s.orders.IngestOffline(ctx, tx, terminal.TenantID, &terminalID, payload)
		if err != nil {
			return nil, nil, err
		}
		s.metrics.RecordOrderIngested(ctx, string(orderdomain.SourceOffline))
		if err := s.publisher.Publish(ctx, tx, terminal.TenantID, events.TopicOrderCreated, map[string]any{
			"order_id":     res.OrderID.String(),
			"order_number": res.Number,
			"total_cents":  res.TotalCents,
		}, dedupeKey); err != nil {
			return nil, nil, err
		}
		orderID := res.OrderID
		return orderResultMap(res), &orderID, nil

	case syncdomain.OpPromotedOrder:
		var payload orderdomain.PromotePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, nil, syncdomain.ErrMalformedPayload
		}
		res, err := s.orders.Promote(ctx, tx, terminal.TenantID, &terminalID, payload)
		if err != nil {
			return nil, nil, err
		}
		s.metrics.RecordOrderIngested(ctx, string(orderdomain.SourcePromoted))
		orderID := res.OrderID
		return orderResultMap(res), &orderID, nil

	case syncdomain.OpOfflineInventory:
		var payload inventorydomain.AdjustmentPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, nil, syncdomain.ErrMalformedPayload
		}
		res, err := s.inventory.ApplyOfflineAdjustment(ctx, tx, terminal.TenantID, &terminalID, payload)
		if err != nil {
			return nil, nil, err
		}
		if err := s.publisher.Publish(ctx, tx, terminal.TenantID, events.TopicInventoryAdjusted, map[string]any{
			"applied": res.Applied,
		}, dedupeKey); err != nil {
			return nil, nil, err
		}
		levels := make(map[string]any, len(res.Levels))
		for sku, level := range res.Levels {
			levels[sku] = level
		}
		return map[string]any{
			"applied": res.Applied,
			"levels":  levels,
		}, nil, nil

	case syncdomain.OpOfflineApproval:
		var payload approvaldomain.ApprovalPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, nil, syncdomain.ErrMalformedPayload
		}
		res, err := s.approvals.ApplyOfflineApproval(ctx, tx, terminal.TenantID, &terminalID, payload)
		if err != nil {
			return nil, nil, err
		}
		if res.Action == approvaldomain.ActionVoid {
			if err := s.publisher.Publish(ctx, tx, terminal.TenantID, events.TopicOrderVoided, map[string]any{
				"order_id": res.OrderID.String(),
			}, dedupeKey); err != nil {
				return nil, nil, err
			}
		}
		orderID := res.OrderID
		return map[string]any{
			"order_id":     res.OrderID.String(),
			"action":       res.Action,
			"amount_cents": res.AmountCents,
			"total":        centsToAmount(res.TotalCents),
		}, &orderID, nil
	}

	return nil, nil, syncdomain.ErrUnknownType
}

func orderResultMap(res *orderdomain.OrderResult) map[string]any {
	return map[string]any{
		"order_id":     res.OrderID.String(),
		"order_number": res.Number,
		"total":        centsToAmount(res.TotalCents),
	}
}

func centsToAmount(cents int64) float64 {
	return float64(cents) / 100
}

func rejection(opID string, err error) syncdomain.OperationResult {
	code := err.Error()
	return syncdomain.OperationResult{
		OperationID: opID,
		Success:     false,
		Error: &syncdomain.OperationError{
			Code:    code,
			Message: strings.ReplaceAll(code, "_", " "),
		},
	}
}

func internalFailure(opID string) syncdomain.OperationResult {
	return syncdomain.OperationResult{
		OperationID: opID,
		Success:     false,
		Error: &syncdomain.OperationError{
			Code:    "internal_error",
			Message: "try again later",
		},
	}
}

// isDomainRejection separates business-rule failures, which are
// reported per operation and never recorded in the ledger, from
// infrastructure errors.
func isDomainRejection(err error) bool {
	rejections := []error{
		syncdomain.ErrMalformedPayload,
		syncdomain.ErrUnknownType,
		orderdomain.ErrEmptyOrder,
		orderdomain.ErrInvalidItem,
		orderdomain.ErrInvalidDiscount,
		orderdomain.ErrInvalidOrderID,
		orderdomain.ErrNotFound,
		orderdomain.ErrNotHeld,
		orderdomain.ErrAlreadyVoided,
		productdomain.ErrInvalidSKU,
		productdomain.ErrNotFound,
		inventorydomain.ErrInvalidSKU,
		inventorydomain.ErrInvalidAdjustment,
		inventorydomain.ErrInsufficientStock,
		approvaldomain.ErrInvalidAction,
		approvaldomain.ErrInvalidApprover,
		approvaldomain.ErrInvalidPIN,
		approvaldomain.ErrInvalidAmount,
	}
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
