package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	pkgkafka "github.com/onlineshop/orderflow/pkg/kafka"
)

// Kafka topics consumed by the inventory service.
var (
	TopicOrderCancelled = pkgkafka.Topic("order", "cancelled")
	TopicOrderCompleted = pkgkafka.Topic("order", "completed")
)

// ReservationService defines the interface required by the event consumer.
type ReservationService interface {
	Cancel(ctx context.Context, orderID string) error
	Confirm(ctx context.Context, orderID string) error
}

// OrderCancelledData is the expected payload of an order.cancelled event.
type OrderCancelledData struct {
	OrderNumber string `json:"order_number"`
}

// OrderCompletedData is the expected payload of an order.completed event.
type OrderCompletedData struct {
	OrderNumber string `json:"order_number"`
}

// Consumer processes incoming Kafka events for the inventory service. Both
// handlers delegate to order-keyed idempotent operations, so redelivered
// events are harmless even without the dedup layer in front.
type Consumer struct {
	logger  *slog.Logger
	service ReservationService
}

// NewConsumer creates a new event consumer for the inventory service.
func NewConsumer(service ReservationService, logger *slog.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

// HandleOrderCancelled processes order.cancelled events by releasing the
// order's reservations.
func (c *Consumer) HandleOrderCancelled(ctx context.Context, event *pkgkafka.Event) error {
	var data OrderCancelledData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal order.cancelled data: %w", err)
	}

	c.logger.InfoContext(ctx, "processing order.cancelled event",
		slog.String("order_number", data.OrderNumber),
	)

	if err := c.service.Cancel(ctx, data.OrderNumber); err != nil {
		return fmt.Errorf("cancel reservations for order %s: %w", data.OrderNumber, err)
	}

	return nil
}

// HandleOrderCompleted processes order.completed events by confirming the
// order's reservations in case the synchronous confirm call was lost.
func (c *Consumer) HandleOrderCompleted(ctx context.Context, event *pkgkafka.Event) error {
	var data OrderCompletedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal order.completed data: %w", err)
	}

	c.logger.InfoContext(ctx, "processing order.completed event",
		slog.String("order_number", data.OrderNumber),
	)

	if err := c.service.Confirm(ctx, data.OrderNumber); err != nil {
		return fmt.Errorf("confirm reservations for order %s: %w", data.OrderNumber, err)
	}

	return nil
}
