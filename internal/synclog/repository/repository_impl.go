package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	synclogdomain "github.com/smallbiznis/kassa/internal/synclog/domain"
	"github.com/smallbiznis/kassa/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	// Lookup is a pure read. It returns nil when no entry exists for
	// the (tenant, terminal, operation) triple.
	Lookup(ctx context.Context, tx *gorm.DB, tenantID, terminalID snowflake.ID, operationID string) (*synclogdomain.ProcessedOperation, error)

	// Record inserts a ledger entry. The composite uniqueness
	// constraint is the source of truth: a conflicting insert returns
	// ErrDuplicateOperation regardless of what Lookup said earlier.
	Record(ctx context.Context, tx *gorm.DB, entry *synclogdomain.ProcessedOperation) error

	// DeleteExpired removes at most limit entries whose expires_at is
	// before the cutoff and reports how many rows went away.
	DeleteExpired(ctx context.Context, tx *gorm.DB, before time.Time, limit int) (int64, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) Lookup(ctx context.Context, tx *gorm.DB, tenantID, terminalID snowflake.ID, operationID string) (*synclogdomain.ProcessedOperation, error) {
	var record synclogdomain.ProcessedOperation
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND terminal_id = ? AND operation_id = ?", tenantID, terminalID, operationID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) Record(ctx context.Context, tx *gorm.DB, entry *synclogdomain.ProcessedOperation) error {
	conflict := clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"},
			{Name: "terminal_id"},
			{Name: "operation_id"},
		},
		DoNothing: true,
	}
	res := tx.WithContext(ctx).Clauses(conflict).Create(entry)
	if res.Error != nil {
		if db.IsDuplicateKeyErr(res.Error) {
			return synclogdomain.ErrDuplicateOperation
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return synclogdomain.ErrDuplicateOperation
	}
	return nil
}

func (r *repo) DeleteExpired(ctx context.Context, tx *gorm.DB, before time.Time, limit int) (int64, error) {
	res := tx.WithContext(ctx).Exec(
		`DELETE FROM processed_operations
		 WHERE id IN (
			SELECT id FROM processed_operations
			WHERE expires_at < ?
			ORDER BY expires_at ASC
			LIMIT ?
		 )`,
		before,
		limit,
	)
	return res.RowsAffected, res.Error
}
