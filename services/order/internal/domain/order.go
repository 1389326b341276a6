package domain

import "time"

// Order status constants. The status is coarse-grained: fine-grained saga
// progress lives in SagaState.
const (
	OrderStatusPending      = "PENDING"
	OrderStatusProcessing   = "PROCESSING"
	OrderStatusCompleted    = "COMPLETED"
	OrderStatusFailed       = "FAILED"
	OrderStatusCancelled    = "CANCELLED"
	OrderStatusCompensating = "COMPENSATING"
)

// Order represents a customer order driven through fulfillment by a saga.
type Order struct {
	ID              string      `json:"id"`
	OrderNumber     string      `json:"order_number"`
	CustomerID      string      `json:"customer_id"`
	Status          string      `json:"status"`
	Items           []OrderItem `json:"items"`
	TotalAmount     int64       `json:"total_amount"`
	Currency        string      `json:"currency"`
	ShippingAddress string      `json:"shipping_address,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// OrderItem is a single line of an order.
type OrderItem struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// LineTotal returns the total price for this line item.
func (i OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// ValidOrderStatuses returns all valid order statuses.
func ValidOrderStatuses() []string {
	return []string{
		OrderStatusPending,
		OrderStatusProcessing,
		OrderStatusCompleted,
		OrderStatusFailed,
		OrderStatusCancelled,
		OrderStatusCompensating,
	}
}

// IsCancellable reports whether the order may still be cancelled by a user.
func (o *Order) IsCancellable() bool {
	return o.Status != OrderStatusCompleted && o.Status != OrderStatusCancelled
}
