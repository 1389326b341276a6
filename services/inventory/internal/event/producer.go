package event

import (
	"context"
	"log/slog"

	"github.com/onlineshop/orderflow/pkg/kafka"
	"github.com/onlineshop/orderflow/pkg/logger"
	"github.com/onlineshop/orderflow/services/inventory/internal/domain"
)

const source = "inventory-service"

// Topics published by the inventory service.
var (
	TopicInventoryReserved  = kafka.Topic("inventory", "reserved")
	TopicInventoryReleased  = kafka.Topic("inventory", "released")
	TopicInventoryConfirmed = kafka.Topic("inventory", "confirmed")
)

// ReservedPayload is the data carried by an inventory.reserved event.
type ReservedPayload struct {
	OrderID string         `json:"order_id"`
	Items   []ReservedItem `json:"items"`
}

// ReservedItem is one line of a reserved payload.
type ReservedItem struct {
	ReservationID string `json:"reservation_id"`
	ProductID     string `json:"product_id"`
	Quantity      int    `json:"quantity"`
}

// CountPayload carries the order ID and affected reservation count for
// released/confirmed events.
type CountPayload struct {
	OrderID string `json:"order_id"`
	Count   int    `json:"count"`
}

// Producer publishes inventory lifecycle events.
type Producer struct {
	producer *kafka.Producer
	logger   *slog.Logger
}

// NewProducer creates a new inventory event producer.
func NewProducer(producer *kafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{producer: producer, logger: logger}
}

// PublishInventoryReserved publishes an inventory.reserved event.
func (p *Producer) PublishInventoryReserved(ctx context.Context, orderID string, reservations []domain.Reservation) error {
	items := make([]ReservedItem, 0, len(reservations))
	for i := range reservations {
		items = append(items, ReservedItem{
			ReservationID: reservations[i].ID,
			ProductID:     reservations[i].ProductID,
			Quantity:      reservations[i].Quantity,
		})
	}

	return p.publish(ctx, TopicInventoryReserved, "inventory.reserved", orderID, ReservedPayload{
		OrderID: orderID,
		Items:   items,
	})
}

// PublishInventoryReleased publishes an inventory.released event.
func (p *Producer) PublishInventoryReleased(ctx context.Context, orderID string, count int) error {
	return p.publish(ctx, TopicInventoryReleased, "inventory.released", orderID, CountPayload{
		OrderID: orderID,
		Count:   count,
	})
}

// PublishInventoryConfirmed publishes an inventory.confirmed event.
func (p *Producer) PublishInventoryConfirmed(ctx context.Context, orderID string, count int) error {
	return p.publish(ctx, TopicInventoryConfirmed, "inventory.confirmed", orderID, CountPayload{
		OrderID: orderID,
		Count:   count,
	})
}

func (p *Producer) publish(ctx context.Context, topic, eventType, orderID string, payload any) error {
	evt, err := kafka.NewEvent(eventType, orderID, "reservation", source, payload)
	if err != nil {
		return err
	}

	if cid := logger.CorrelationIDFromContext(ctx); cid != "" {
		evt.WithCorrelationID(cid)
	}

	return p.producer.Publish(ctx, topic, evt)
}
