package events

import (
	"context"

	"go.uber.org/zap"
)

// Topics lists every event type the service emits.
func Topics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderVoided,
		TopicInventoryAdjusted,
		TopicTerminalSynced,
	}
}

// RegisterAuditLog subscribes a delivery log on every topic. Until an
// external broker consumer is attached this is the default subscriber,
// so delivered events always surface in the service logs.
func RegisterAuditLog(d *Dispatcher, log *zap.Logger) {
	audit := log.Named("events.audit")
	for _, topic := range Topics() {
		d.Subscribe(topic, func(ctx context.Context, event OutboxEvent) error {
			audit.Info("event delivered",
				zap.String("event_type", event.EventType),
				zap.String("tenant_id", event.TenantID.String()),
				zap.String("correlation_id", event.CorrelationID),
			)
			return nil
		})
	}
}
