package worker

import (
	"context"
	"encoding/json"

	"carrito-backend/internal/broker"
	"carrito-backend/internal/models"
	"carrito-backend/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// AuditWorker consumes the order-events topic and writes an audit log line
// per finalized order. Downstream of the commit; purely observational.
type AuditWorker struct {
	consumer *broker.Consumer
	logger   *zap.Logger
}

// NewAuditWorker creates a new audit worker
func NewAuditWorker(consumer *broker.Consumer) *AuditWorker {
	return &AuditWorker{
		consumer: consumer,
		logger:   util.GetLogger(),
	}
}

// Start starts the worker
func (w *AuditWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting order audit worker")
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

// Stop stops the worker
func (w *AuditWorker) Stop() error {
	w.logger.Info("Stopping order audit worker")
	return w.consumer.Close()
}

func (w *AuditWorker) handleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		w.logger.Error("Failed to unmarshal event", zap.Error(err))
		return err
	}

	if baseEvent.EventType != models.EventTypeOrderFinalized {
		w.logger.Debug("Skipping event", zap.String("event_type", baseEvent.EventType))
		return nil
	}

	var event models.OrderFinalizedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		w.logger.Error("Failed to unmarshal OrderFinalized event", zap.Error(err))
		return err
	}

	w.logger.Info("Order finalized",
		zap.String("event_id", event.EventID),
		zap.String("order_id", event.OrderID),
		zap.String("buy_order", event.BuyOrder),
		zap.String("user_id", event.UserID),
		zap.Float64("total_amount", event.TotalAmount),
		zap.String("tracking_number", event.TrackingNumber),
		zap.Int("item_count", len(event.Items)))
	return nil
}
