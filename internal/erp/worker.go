package erp

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/storeops/order-engine/internal/engine"
)

// Publisher delivers one event to the ERP edge.
type Publisher interface {
	Publish(ctx context.Context, event OrderStatusEvent) error
}

// Worker periodically exports unsynced orders. An order is marked synced
// only after its event was published, so a failed publish is retried on the
// next tick. A crash between publish and mark re-sends the event; the ERP
// side deduplicates on event key, which is why delivery is at-least-once.
type Worker struct {
	engine    *engine.Engine
	publisher Publisher
	interval  time.Duration
}

func NewWorker(eng *engine.Engine, publisher Publisher, interval time.Duration) *Worker {
	return &Worker{
		engine:    eng,
		publisher: publisher,
		interval:  interval,
	}
}

// Run blocks until ctx is cancelled, exporting on every tick.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.SyncOnce(ctx); err != nil {
				log.Printf("ERP sync: %v", err)
			}
		}
	}
}

// SyncOnce exports every currently unsynced order.
func (w *Worker) SyncOnce(ctx context.Context) error {
	orders, err := w.engine.UnsyncedOrders(ctx)
	if err != nil {
		return fmt.Errorf("fetch unsynced orders: %w", err)
	}

	for _, order := range orders {
		event := OrderStatusEvent{
			EventID:    uuid.NewString(),
			OrderID:    order.ID,
			Number:     order.Number,
			UserID:     order.UserID,
			Status:     order.Status,
			Total:      order.Total,
			OccurredAt: order.UpdatedAt,
		}

		if err := w.publisher.Publish(ctx, event); err != nil {
			return fmt.Errorf("publish order %d: %w", order.ID, err)
		}

		if err := w.engine.MarkSynced(ctx, order.ID); err != nil {
			return fmt.Errorf("mark order %d synced: %w", order.ID, err)
		}
	}

	return nil
}
