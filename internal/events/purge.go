package events

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// PurgeDelivered removes published events whose delivery predates the
// cutoff, at most limit rows per call. Undelivered events are never
// touched.
func PurgeDelivered(ctx context.Context, tx *gorm.DB, before time.Time, limit int) (int64, error) {
	res := tx.WithContext(ctx).Exec(
		`DELETE FROM outbox_events
		 WHERE id IN (
			SELECT id FROM outbox_events
			WHERE published = ? AND published_at < ?
			ORDER BY published_at ASC
			LIMIT ?
		 )`,
		true,
		before,
		limit,
	)
	return res.RowsAffected, res.Error
}
