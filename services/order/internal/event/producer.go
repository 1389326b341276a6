package event

import (
	"context"
	"log/slog"

	"github.com/onlineshop/orderflow/pkg/kafka"
	"github.com/onlineshop/orderflow/pkg/logger"
	"github.com/onlineshop/orderflow/services/order/internal/domain"
)

const source = "order-service"

// Topics published by the order service. The inventory service consumes
// order.completed (confirm reservations) and order.cancelled (release them).
var (
	TopicOrderCreated   = kafka.Topic("order", "created")
	TopicOrderCompleted = kafka.Topic("order", "completed")
	TopicOrderFailed    = kafka.Topic("order", "failed")
	TopicOrderCancelled = kafka.Topic("order", "cancelled")
)

// CreatedPayload is the data carried by an order.created event.
type CreatedPayload struct {
	OrderNumber string        `json:"order_number"`
	CustomerID  string        `json:"customer_id"`
	TotalAmount int64         `json:"total_amount"`
	Currency    string        `json:"currency"`
	Items       []ItemPayload `json:"items"`
}

// ItemPayload is one line of a created payload.
type ItemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// OrderNumberPayload carries only the order number, for completed events.
type OrderNumberPayload struct {
	OrderNumber string `json:"order_number"`
}

// FailedPayload is the data carried by an order.failed event.
type FailedPayload struct {
	OrderNumber string `json:"order_number"`
	Reason      string `json:"reason"`
	Retryable   bool   `json:"retryable"`
}

// CancelledPayload is the data carried by an order.cancelled event.
type CancelledPayload struct {
	OrderNumber string `json:"order_number"`
	Reason      string `json:"reason"`
}

// Producer publishes order lifecycle events.
type Producer struct {
	producer *kafka.Producer
	logger   *slog.Logger
}

// NewProducer creates a new order event producer.
func NewProducer(producer *kafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{producer: producer, logger: logger}
}

// PublishOrderCreated publishes an order.created event with an order snapshot.
func (p *Producer) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	items := make([]ItemPayload, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, ItemPayload{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	return p.publish(ctx, TopicOrderCreated, "order.created", order.OrderNumber, CreatedPayload{
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		Items:       items,
	})
}

// PublishOrderCompleted publishes an order.completed event. The inventory
// service reacts by confirming the order's reservations.
func (p *Producer) PublishOrderCompleted(ctx context.Context, orderNumber string) error {
	return p.publish(ctx, TopicOrderCompleted, "order.completed", orderNumber, OrderNumberPayload{
		OrderNumber: orderNumber,
	})
}

// PublishOrderFailed publishes an order.failed event.
func (p *Producer) PublishOrderFailed(ctx context.Context, orderNumber, reason string, retryable bool) error {
	return p.publish(ctx, TopicOrderFailed, "order.failed", orderNumber, FailedPayload{
		OrderNumber: orderNumber,
		Reason:      reason,
		Retryable:   retryable,
	})
}

// PublishOrderCancelled publishes an order.cancelled event. The inventory
// service reacts by releasing any reservations still held for the order.
func (p *Producer) PublishOrderCancelled(ctx context.Context, orderNumber, reason string) error {
	return p.publish(ctx, TopicOrderCancelled, "order.cancelled", orderNumber, CancelledPayload{
		OrderNumber: orderNumber,
		Reason:      reason,
	})
}

func (p *Producer) publish(ctx context.Context, topic, eventType, orderNumber string, payload any) error {
	evt, err := kafka.NewEvent(eventType, orderNumber, "order", source, payload)
	if err != nil {
		return err
	}

	if cid := logger.CorrelationIDFromContext(ctx); cid != "" {
		evt.WithCorrelationID(cid)
	}

	return p.producer.Publish(ctx, topic, evt)
}
