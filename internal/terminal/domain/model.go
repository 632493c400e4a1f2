package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// Terminal is a registered point-of-sale device. The shared secret is
// stored verbatim because it is needed to verify request signatures.
type Terminal struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	TenantID   snowflake.ID   `gorm:"column:tenant_id;not null;index:ix_terminals_tenant"`
	Code       string         `gorm:"column:code;type:text;not null;uniqueIndex:ux_terminals_code"`
	Name       string         `gorm:"type:text;not null"`
	Secret     string         `gorm:"column:secret;type:text;not null"`
	Scopes     pq.StringArray `gorm:"type:text[];not null"`
	IsActive   bool           `gorm:"column:is_active;not null;default:true"`
	IsLocked   bool           `gorm:"column:is_locked;not null;default:false"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	LastSeenAt *time.Time     `gorm:"column:last_seen_at"`
}

// TableName sets the database table name.
func (Terminal) TableName() string { return "terminals" }

// HasScope reports whether the terminal was granted the given scope.
func (t *Terminal) HasScope(scope string) bool {
	for _, granted := range t.Scopes {
		if granted == scope {
			return true
		}
	}
	return false
}
