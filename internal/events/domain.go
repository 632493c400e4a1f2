package events

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	TopicOrderCreated      = "order.created"
	TopicOrderVoided       = "order.voided"
	TopicInventoryAdjusted = "inventory.adjusted"
	TopicTerminalSynced    = "terminal.synced"
)

// OutboxEvent captures domain events in the same transaction as the
// state change that produced them. A background dispatcher delivers
// them after commit.
type OutboxEvent struct {
	ID            snowflake.ID      `gorm:"primaryKey"`
	TenantID      snowflake.ID      `gorm:"column:tenant_id;not null;index;uniqueIndex:ux_outbox_events_dedupe,priority:1"`
	EventType     string            `gorm:"column:event_type;type:text;not null"`
	Payload       datatypes.JSONMap `gorm:"column:payload;not null"`
	DedupeKey     *string           `gorm:"column:dedupe_key;type:text;uniqueIndex:ux_outbox_events_dedupe,priority:2"`
	CorrelationID string            `gorm:"column:correlation_id;type:text;not null"`
	Published     bool              `gorm:"column:published;not null;default:false"`
	PublishedAt   *time.Time        `gorm:"column:published_at"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OutboxEvent) TableName() string { return "outbox_events" }
