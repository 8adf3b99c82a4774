package worker

import (
	"context"
	"log"
	"time"

	"canteen-order-service/internal/broker"
	"canteen-order-service/internal/models"
	"canteen-order-service/internal/service"
	"canteen-order-service/internal/util"
)

const (
	maxNotifyAttempts = 3
	notifyBackoff     = 2 * time.Second
)

// QueueNotifyWorker consumes order lifecycle events and pushes them to
// the queue/ticketing service. It is the durable retry path behind the
// best-effort inline notifications: an order never waits on it, and a
// queue outage only delays pickup-board updates.
type QueueNotifyWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	notifier     service.Notifier
	backoff      time.Duration
}

// NewQueueNotifyWorker creates a new queue notify worker
func NewQueueNotifyWorker(consumer *broker.Consumer, notifier service.Notifier) *QueueNotifyWorker {
	w := &QueueNotifyWorker{
		consumer: consumer,
		notifier: notifier,
		backoff:  notifyBackoff,
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCreated(w.handleOrderCreated)
	eventHandler.OnOrderStatusChanged(w.handleOrderStatusChanged)
	eventHandler.OnOrderCancelled(w.handleOrderCancelled)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *QueueNotifyWorker) Start(ctx context.Context) error {
	log.Println("Starting queue notify worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *QueueNotifyWorker) Stop() error {
	log.Println("Stopping queue notify worker...")
	return w.consumer.Close()
}

func (w *QueueNotifyWorker) handleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return w.withRetry(ctx, "created", func(ctx context.Context) error {
		return w.notifier.NotifyOrderCreated(ctx, models.QueueNotification{
			OrderID:   event.OrderID,
			UserID:    event.UserID,
			UserName:  event.UserName,
			UserPhone: event.UserPhone,
			ItemCount: event.ItemCount,
			Priority:  "NORMAL",
		})
	})
}

func (w *QueueNotifyWorker) handleOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return w.withRetry(ctx, "status", func(ctx context.Context) error {
		return w.notifier.NotifyStatusChanged(ctx, models.QueueStatusUpdate{
			OrderID:     event.OrderID,
			OrderNumber: event.OrderNumber,
			Token:       event.Token,
			Status:      event.NewStatus,
		})
	})
}

func (w *QueueNotifyWorker) handleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return w.withRetry(ctx, "status", func(ctx context.Context) error {
		return w.notifier.NotifyStatusChanged(ctx, models.QueueStatusUpdate{
			OrderID:     event.OrderID,
			OrderNumber: event.OrderNumber,
			Status:      models.OrderStatusCancelled,
		})
	})
}

// withRetry attempts fn with linear backoff. Exhausted retries are
// logged and swallowed so the consumer still commits the offset; the
// queue service reconciles missed updates on its own schedule.
func (w *QueueNotifyWorker) withRetry(ctx context.Context, kind string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= maxNotifyAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}

		util.QueueNotifyFailuresTotal.WithLabelValues(kind).Inc()
		log.Printf("Queue notify attempt %d/%d failed: %v", attempt, maxNotifyAttempts, err)

		if attempt < maxNotifyAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * w.backoff):
			}
		}
	}

	log.Printf("Giving up on queue notification after %d attempts: %v", maxNotifyAttempts, err)
	return nil
}
