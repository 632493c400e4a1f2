package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	approvaldomain "github.com/smallbiznis/kassa/internal/approval/domain"
	orderdomain "github.com/smallbiznis/kassa/internal/order/domain"
	"github.com/smallbiznis/kassa/pkg/db"
	"github.com/smallbiznis/kassa/pkg/password"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func New(p Params) approvaldomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("approval.service"),
		genID: p.GenID,
	}
}

func (s *Service) ApplyOfflineApproval(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, terminalID *snowflake.ID, payload approvaldomain.ApprovalPayload) (*approvaldomain.ApprovalResult, error) {
	action := strings.TrimSpace(payload.Action)
	if action != approvaldomain.ActionVoid && action != approvaldomain.ActionDiscount {
		return nil, approvaldomain.ErrInvalidAction
	}

	orderID, err := snowflake.ParseString(strings.TrimSpace(payload.OrderID))
	if err != nil || orderID == 0 {
		return nil, orderdomain.ErrInvalidOrderID
	}

	approver, err := s.verifyPIN(ctx, tx, tenantID, payload.ApproverCode, payload.PIN)
	if err != nil {
		return nil, err
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
	if record.Status == orderdomain.StatusVoided {
		return nil, orderdomain.ErrAlreadyVoided
	}

	now := time.Now().UTC()
	result := &approvaldomain.ApprovalResult{
		OrderID:     record.ID,
		Action:      action,
		AmountCents: payload.AmountCents,
	}

	switch action {
	case approvaldomain.ActionVoid:
		if err := tx.WithContext(ctx).
			Model(&orderdomain.Order{}).
			Where("tenant_id = ? AND id = ?", tenantID, orderID).
			Updates(map[string]any{
				"status":     orderdomain.StatusVoided,
				"voided_at":  now,
				"updated_at": now,
			}).Error; err != nil {
			return nil, err
		}
		result.AmountCents = record.TotalCents
		result.TotalCents = 0

	case approvaldomain.ActionDiscount:
		if payload.AmountCents <= 0 || payload.AmountCents > record.TotalCents {
			return nil, approvaldomain.ErrInvalidAmount
		}
		newDiscount := record.DiscountCents + payload.AmountCents
		newTotal := record.TotalCents - payload.AmountCents
		if err := tx.WithContext(ctx).
			Model(&orderdomain.Order{}).
			Where("tenant_id = ? AND id = ?", tenantID, orderID).
			Updates(map[string]any{
				"discount_cents": newDiscount,
				"total_cents":    newTotal,
				"updated_at":     now,
			}).Error; err != nil {
			return nil, err
		}
		result.TotalCents = newTotal
	}

	audit := &approvaldomain.ApprovalRecord{
		ID:          s.genID.Generate(),
		TenantID:    tenantID,
		OrderID:     record.ID,
		ApproverID:  approver.ID,
		TerminalID:  terminalID,
		Action:      action,
		AmountCents: result.AmountCents,
		CreatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(audit).Error; err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Service) RegisterApprover(ctx context.Context, tenantID snowflake.ID, req approvaldomain.RegisterApproverRequest) (*approvaldomain.Approver, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, approvaldomain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, approvaldomain.ErrInvalidName
	}
	if len(strings.TrimSpace(req.PIN)) < 4 {
		return nil, approvaldomain.ErrInvalidPIN
	}

	hash, err := password.Hash(req.PIN)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := &approvaldomain.Approver{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Code:      code,
		Name:      name,
		PINHash:   hash,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, approvaldomain.ErrDuplicateCode
		}
		return nil, err
	}
	return record, nil
}

func (s *Service) verifyPIN(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, code, pin string) (*approvaldomain.Approver, error) {
	code = strings.TrimSpace(code)
	if code == "" || pin == "" {
		return nil, approvaldomain.ErrInvalidApprover
	}

	var approver approvaldomain.Approver
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND code = ? AND is_active = ?", tenantID, code, true).
		First(&approver).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, approvaldomain.ErrInvalidApprover
		}
		return nil, err
	}

	if !password.Verify(pin, approver.PINHash) {
		return nil, approvaldomain.ErrInvalidPIN
	}
	return &approver, nil
}
