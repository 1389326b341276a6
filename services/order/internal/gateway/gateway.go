package gateway

import "context"

// Result is the uniform outcome of every external capability call. A nil
// Result from any capability must be treated as failure, never as success.
type Result struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
	Message       string `json:"message"`
	// Retryable is tri-state: nil means the collaborator gave no
	// classification, which callers must read as not retryable.
	Retryable *bool `json:"retryable"`
}

// IsRetryable reports whether the failure may succeed on a later attempt.
// A nil result or an unset classification is not retryable.
func (r *Result) IsRetryable() bool {
	return r != nil && r.Retryable != nil && *r.Retryable
}

// ReserveItem is one line of an inventory reservation request.
type ReserveItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// ReserveInventoryRequest asks the inventory service to reserve stock for an
// order. The order number doubles as the reservation's idempotency key.
type ReserveInventoryRequest struct {
	OrderNumber string        `json:"order_number"`
	Items       []ReserveItem `json:"items"`
}

// PaymentRequest asks the payment service to charge the customer.
type PaymentRequest struct {
	OrderNumber string `json:"order_number"`
	CustomerID  string `json:"customer_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// ShippingRequest asks the shipping service to arrange delivery.
type ShippingRequest struct {
	OrderNumber     string `json:"order_number"`
	CustomerID      string `json:"customer_id"`
	ShippingAddress string `json:"shipping_address"`
}

// Gateway abstracts the three external capabilities the saga drives, each
// with its inverse. Implementations own transport concerns (timeouts,
// retries, circuit breaking); callers see only the uniform Result.
type Gateway interface {
	ReserveInventory(ctx context.Context, req ReserveInventoryRequest) (*Result, error)
	ReleaseInventory(ctx context.Context, orderNumber string) (*Result, error)
	ConfirmInventory(ctx context.Context, orderNumber string) (*Result, error)

	ProcessPayment(ctx context.Context, req PaymentRequest) (*Result, error)
	RefundPayment(ctx context.Context, transactionID string) (*Result, error)

	ArrangeShipping(ctx context.Context, req ShippingRequest) (*Result, error)
	CancelShipping(ctx context.Context, trackingNumber string) (*Result, error)
}

// BoolPtr returns a pointer to b, for building Result classifications.
func BoolPtr(b bool) *bool {
	return &b
}
