package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	terminaldomain "github.com/smallbiznis/kassa/internal/terminal/domain"
	"github.com/smallbiznis/kassa/internal/terminal/repository"
	"github.com/smallbiznis/kassa/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	terminalSecretPrefix = "ks_term_"
	terminalSecretBytes  = 32
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  repository.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  repository.Repository
}

func New(p Params) terminaldomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("terminal.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID) ([]terminaldomain.Response, error) {
	items, err := s.repo.ListByTenant(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	resp := make([]terminaldomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, tenantID snowflake.ID, code string) (*terminaldomain.Response, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, terminaldomain.ErrInvalidCode
	}
	record, err := s.repo.FindByCode(ctx, s.db, tenantID, code)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, terminaldomain.ErrNotFound
	}
	resp := toResponse(record)
	return &resp, nil
}

func (s *Service) Register(ctx context.Context, tenantID snowflake.ID, req terminaldomain.RegisterRequest) (*terminaldomain.SecretResponse, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, terminaldomain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, terminaldomain.ErrInvalidName
	}
	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = []string{terminaldomain.ScopeSyncWrite}
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := &terminaldomain.Terminal{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Code:      code,
		Name:      name,
		Secret:    secret,
		Scopes:    pq.StringArray(scopes),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, s.db, record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, terminaldomain.ErrDuplicateCode
		}
		return nil, err
	}

	s.log.Info("terminal registered",
		zap.String("tenant_id", tenantID.String()),
		zap.String("terminal_code", code),
	)
	return &terminaldomain.SecretResponse{Code: code, Secret: secret}, nil
}

func (s *Service) RotateSecret(ctx context.Context, tenantID snowflake.ID, code string) (*terminaldomain.SecretResponse, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, terminaldomain.ErrInvalidCode
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, err
	}

	affected, err := s.repo.UpdateSecret(ctx, s.db, tenantID, code, secret)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, terminaldomain.ErrNotFound
	}

	s.log.Info("terminal secret rotated",
		zap.String("tenant_id", tenantID.String()),
		zap.String("terminal_code", code),
	)
	return &terminaldomain.SecretResponse{Code: code, Secret: secret}, nil
}

func (s *Service) Lock(ctx context.Context, tenantID snowflake.ID, code string) error {
	return s.setLocked(ctx, tenantID, code, true)
}

func (s *Service) Unlock(ctx context.Context, tenantID snowflake.ID, code string) error {
	return s.setLocked(ctx, tenantID, code, false)
}

func (s *Service) setLocked(ctx context.Context, tenantID snowflake.ID, code string, locked bool) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return terminaldomain.ErrInvalidCode
	}
	affected, err := s.repo.SetLocked(ctx, s.db, tenantID, code, locked)
	if err != nil {
		return err
	}
	if affected == 0 {
		return terminaldomain.ErrNotFound
	}
	s.log.Info("terminal lock state changed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("terminal_code", code),
		zap.Bool("locked", locked),
	)
	return nil
}

func (s *Service) Deactivate(ctx context.Context, tenantID snowflake.ID, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return terminaldomain.ErrInvalidCode
	}
	affected, err := s.repo.SetActive(ctx, s.db, tenantID, code, false)
	if err != nil {
		return err
	}
	if affected == 0 {
		return terminaldomain.ErrNotFound
	}
	return nil
}

func (s *Service) Authenticate(ctx context.Context, code, signature string, body []byte) (*terminaldomain.Terminal, error) {
	code = strings.TrimSpace(code)
	signature = strings.TrimSpace(signature)
	if code == "" || signature == "" {
		return nil, terminaldomain.ErrUnauthorized
	}

	var record terminaldomain.Terminal
	err := s.db.WithContext(ctx).
		Where("code = ?", code).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, terminaldomain.ErrUnauthorized
		}
		return nil, err
	}

	if !terminaldomain.VerifySignature(record.Secret, body, signature) {
		return nil, terminaldomain.ErrUnauthorized
	}
	if !record.IsActive {
		return nil, terminaldomain.ErrUnauthorized
	}
	if record.IsLocked {
		return nil, terminaldomain.ErrLocked
	}

	now := time.Now().UTC()
	if err := s.repo.TouchLastSeen(ctx, s.db, record.ID, now); err != nil {
		s.log.Warn("failed to update terminal last seen",
			zap.String("terminal_code", code),
			zap.Error(err),
		)
	}
	record.LastSeenAt = &now
	return &record, nil
}

func generateSecret() (string, error) {
	buf := make([]byte, terminalSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate terminal secret: %w", err)
	}
	return terminalSecretPrefix + hex.EncodeToString(buf), nil
}

func toResponse(record *terminaldomain.Terminal) terminaldomain.Response {
	return terminaldomain.Response{
		Code:       record.Code,
		Name:       record.Name,
		Scopes:     record.Scopes,
		IsActive:   record.IsActive,
		IsLocked:   record.IsLocked,
		CreatedAt:  record.CreatedAt,
		LastSeenAt: record.LastSeenAt,
	}
}
