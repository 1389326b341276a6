package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/onlineshop/orderflow/pkg/errors"
	"github.com/onlineshop/orderflow/pkg/pagination"
	"github.com/onlineshop/orderflow/services/order/internal/domain"
	"github.com/onlineshop/orderflow/services/order/internal/event"
	"github.com/onlineshop/orderflow/services/order/internal/repository"
	"github.com/onlineshop/orderflow/services/order/internal/saga"
)

// OrderService implements the business logic for order operations. Order
// creation is synchronous and fast: the saga runs afterwards on the
// orchestrator's workers.
type OrderService struct {
	orders       repository.OrderRepository
	sagas        repository.SagaStateRepository
	orchestrator *saga.Orchestrator
	producer     *event.Producer
	logger       *slog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(
	orders repository.OrderRepository,
	sagas repository.SagaStateRepository,
	orchestrator *saga.Orchestrator,
	producer *event.Producer,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		orders:       orders,
		sagas:        sagas,
		orchestrator: orchestrator,
		producer:     producer,
		logger:       logger,
	}
}

// CreateOrderItemInput holds the parameters for an order line item.
type CreateOrderItemInput struct {
	ProductID string
	Quantity  int
	UnitPrice int64
}

// CreateOrderInput holds the parameters for creating an order.
type CreateOrderInput struct {
	CustomerID      string
	Items           []CreateOrderItemInput
	Currency        string
	ShippingAddress string
}

// CreateOrder persists a new order and starts its fulfillment saga.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error) {
	if input.CustomerID == "" {
		return nil, apperrors.InvalidInput("customer_id is required")
	}
	if len(input.Items) == 0 {
		return nil, apperrors.InvalidInput("order must contain at least one item")
	}
	currency := strings.ToUpper(input.Currency)
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		return nil, apperrors.InvalidInput("currency must be a 3-letter ISO code")
	}

	now := time.Now().UTC()
	orderID := uuid.New().String()

	var total int64
	items := make([]domain.OrderItem, len(input.Items))
	for i, itemInput := range input.Items {
		if itemInput.Quantity < 1 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("item %s: quantity must be at least 1", itemInput.ProductID))
		}
		if itemInput.UnitPrice < 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("item %s: unit price must not be negative", itemInput.ProductID))
		}
		items[i] = domain.OrderItem{
			ID:        uuid.New().String(),
			OrderID:   orderID,
			ProductID: itemInput.ProductID,
			Quantity:  itemInput.Quantity,
			UnitPrice: itemInput.UnitPrice,
		}
		total += items[i].LineTotal()
	}

	order := &domain.Order{
		ID:              orderID,
		OrderNumber:     generateOrderNumber(now),
		CustomerID:      input.CustomerID,
		Status:          domain.OrderStatusPending,
		Items:           items,
		TotalAmount:     total,
		Currency:        currency,
		ShippingAddress: input.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := s.producer.PublishOrderCreated(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.created event",
			slog.String("order_number", order.OrderNumber),
			slog.String("error", err.Error()),
		)
		// Do not fail the operation if event publishing fails.
	}

	if err := s.orchestrator.Start(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to start saga",
			slog.String("order_number", order.OrderNumber),
			slog.String("error", err.Error()),
		)
		if updErr := s.orders.UpdateStatus(ctx, order.OrderNumber, domain.OrderStatusFailed); updErr != nil {
			s.logger.ErrorContext(ctx, "failed to mark order failed",
				slog.String("order_number", order.OrderNumber),
				slog.String("error", updErr.Error()),
			)
		}
		return nil, fmt.Errorf("start order processing: %w", err)
	}

	s.logger.InfoContext(ctx, "order created",
		slog.String("order_number", order.OrderNumber),
		slog.String("customer_id", order.CustomerID),
		slog.Int64("total_amount", order.TotalAmount),
	)

	return order, nil
}

// GetOrder retrieves an order by its order number.
func (s *OrderService) GetOrder(ctx context.Context, orderNumber string) (*domain.Order, error) {
	order, err := s.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("get order by number: %w", err)
	}
	return order, nil
}

// ListOrders returns one page of a customer's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, customerID string, params pagination.Params) (pagination.Result[domain.Order], error) {
	// Re-derive bounds so non-HTTP callers cannot pass unchecked values.
	params = pagination.New(params.Page, params.PerPage)

	orders, total, err := s.orders.ListByCustomer(ctx, customerID, params)
	if err != nil {
		return pagination.Result[domain.Order]{}, fmt.Errorf("list orders: %w", err)
	}
	return pagination.NewResult(orders, total, params), nil
}

// GetSagaStatus retrieves the saga ledger for an order.
func (s *OrderService) GetSagaStatus(ctx context.Context, orderNumber string) (*domain.SagaState, error) {
	state, err := s.sagas.GetByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("get saga status: %w", err)
	}
	return state, nil
}

// CancelOrder cancels an order and compensates any committed saga steps.
func (s *OrderService) CancelOrder(ctx context.Context, orderNumber, reason string) (*domain.Order, error) {
	order, err := s.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("get order for cancel: %w", err)
	}

	if !order.IsCancellable() {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot cancel order in %s status", order.Status))
	}

	if err := s.orders.UpdateStatus(ctx, orderNumber, domain.OrderStatusCancelled); err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	if err := s.producer.PublishOrderCancelled(ctx, orderNumber, reason); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.cancelled event",
			slog.String("order_number", orderNumber),
			slog.String("error", err.Error()),
		)
	}

	// The order is already cancelled; compensation failure is logged, not
	// surfaced, and a later compensation attempt can still run.
	if err := s.orchestrator.Compensate(ctx, orderNumber); err != nil {
		s.logger.ErrorContext(ctx, "compensation for cancelled order failed",
			slog.String("order_number", orderNumber),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order cancelled",
		slog.String("order_number", orderNumber),
		slog.String("reason", reason),
	)

	order.Status = domain.OrderStatusCancelled
	return order, nil
}

// RetryOrder re-enters a failed saga if it is still eligible.
func (s *OrderService) RetryOrder(ctx context.Context, orderNumber string) error {
	return s.orchestrator.Retry(ctx, orderNumber)
}

// generateOrderNumber builds an externally meaningful order number from the
// creation timestamp and a random suffix.
func generateOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%04d", now.Format("20060102150405"), rand.IntN(10000)) // #nosec G404 -- uniqueness backed by the DB constraint
}
