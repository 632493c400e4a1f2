package events

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler consumes a delivered event. Returning an error leaves the
// event unpublished so the next poll retries it.
type Handler func(ctx context.Context, event OutboxEvent) error

const (
	dispatchInterval  = 5 * time.Second
	dispatchBatchSize = 100
)

// Dispatcher polls unpublished outbox rows and hands them to the
// registered handlers in insertion order.
type Dispatcher struct {
	db       *gorm.DB
	log      *zap.Logger
	handlers map[string][]Handler

	cancel context.CancelFunc
	done   chan struct{}
}

type DispatcherParams struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		db:       p.DB,
		log:      p.Log.Named("events.dispatcher"),
		handlers: make(map[string][]Handler),
		done:     make(chan struct{}),
	}
}

// Subscribe registers a handler for an event type. Call before Start.
func (d *Dispatcher) Subscribe(eventType string, h Handler) {
	d.handlers[eventType] = append(d.handlers[eventType], h)
}

func (d *Dispatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go d.loop(ctx)
}

func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
		<-d.done
	}
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.DispatchPending(ctx); err != nil {
				d.log.Warn("outbox dispatch failed", zap.Error(err))
			}
		}
	}
}

// DispatchPending delivers up to one batch of unpublished events.
func (d *Dispatcher) DispatchPending(ctx context.Context) error {
	var pending []OutboxEvent
	err := d.db.WithContext(ctx).
		Where("published = ?", false).
		Order("id ASC").
		Limit(dispatchBatchSize).
		Find(&pending).Error
	if err != nil {
		return err
	}

	for i := range pending {
		event := pending[i]
		if err := d.deliver(ctx, event); err != nil {
			d.log.Warn("event delivery failed",
				zap.String("event_type", event.EventType),
				zap.String("correlation_id", event.CorrelationID),
				zap.Error(err),
			)
			continue
		}

		now := time.Now().UTC()
		if err := d.db.WithContext(ctx).
			Model(&OutboxEvent{}).
			Where("id = ?", event.ID).
			Updates(map[string]any{
				"published":    true,
				"published_at": now,
			}).Error; err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, event OutboxEvent) error {
	for _, h := range d.handlers[event.EventType] {
		if err := h(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
