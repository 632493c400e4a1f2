package events

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/kassa/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Publisher interface {
	// Publish stages an event inside the caller's transaction. An
	// empty dedupeKey always inserts; a repeated dedupeKey within a
	// tenant becomes a no-op.
	Publish(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, eventType string, payload map[string]any, dedupeKey string) error
}

type outboxPublisher struct {
	genID *snowflake.Node
}

func NewOutboxPublisher(genID *snowflake.Node) Publisher {
	return &outboxPublisher{genID: genID}
}

func (p *outboxPublisher) Publish(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, eventType string, payload map[string]any, dedupeKey string) error {
	record := &OutboxEvent{
		ID:            p.genID.Generate(),
		TenantID:      tenantID,
		EventType:     eventType,
		Payload:       datatypes.JSONMap(payload),
		CorrelationID: ulid.Make().String(),
		Published:     false,
		CreatedAt:     time.Now().UTC(),
	}
	if dedupeKey != "" {
		record.DedupeKey = &dedupeKey
	}

	err := tx.WithContext(ctx).Create(record).Error
	if err != nil && db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}
