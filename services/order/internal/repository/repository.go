package repository

import (
	"context"
	"time"

	"github.com/onlineshop/orderflow/pkg/pagination"
	"github.com/onlineshop/orderflow/services/order/internal/domain"
)

// OrderRepository defines persistence operations for orders.
type OrderRepository interface {
	// Create inserts an order and its items atomically.
	Create(ctx context.Context, order *domain.Order) error

	// GetByNumber loads an order and its items by order number.
	GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)

	// ListByCustomer returns one page of a customer's orders, newest first,
	// with the total count.
	ListByCustomer(ctx context.Context, customerID string, params pagination.Params) ([]domain.Order, int, error)

	// UpdateStatus changes the coarse order status.
	UpdateStatus(ctx context.Context, orderNumber string, status string) error
}

// SagaStateRepository defines persistence operations for the saga ledger.
// Every mutating method is a single atomic unit of work: the saga's
// resumability after a crash depends on each step's state landing durably
// before the next step runs.
type SagaStateRepository interface {
	Create(ctx context.Context, state *domain.SagaState) error
	GetByOrderNumber(ctx context.Context, orderNumber string) (*domain.SagaState, error)

	// CommitInventory records a successful inventory reservation: sets the
	// flag and transaction id, advances the step, and bumps the order to
	// PROCESSING, all in one transaction. CommitPayment and CommitShipping
	// do the same for their steps.
	CommitInventory(ctx context.Context, orderNumber, transactionID, nextStep string) error
	CommitPayment(ctx context.Context, orderNumber, transactionID, nextStep string) error
	CommitShipping(ctx context.Context, orderNumber, trackingNumber, nextStep string) error

	// ClearInventory undoes a recorded commit after a successful inverse
	// call: flag false, transaction id null. ClearPayment and ClearShipping
	// are the analogous operations for their steps.
	ClearInventory(ctx context.Context, orderNumber string) error
	ClearPayment(ctx context.Context, orderNumber string) error
	ClearShipping(ctx context.Context, orderNumber string) error

	SetRetryable(ctx context.Context, orderNumber string, retryable bool) error
	UpdateStatus(ctx context.Context, orderNumber string, status string) error

	// CompleteOrderAndSaga marks both the order and the saga COMPLETED in
	// one transaction.
	CompleteOrderAndSaga(ctx context.Context, orderNumber string) error

	// FailOrderAndSaga marks both the order and the saga FAILED in one
	// transaction, recording the failure message and error chain.
	FailOrderAndSaga(ctx context.Context, orderNumber, errMessage, errTrace string) error

	// PrepareForRetry persists the bumped retry count and backoff stamps and
	// forces the status to IN_PROGRESS before the retried step executes.
	PrepareForRetry(ctx context.Context, orderNumber string, retryCount int, lastRetry, nextRetry time.Time) error

	// MarkRetrying atomically transitions a saga from the expected status to
	// RETRYING, returning false if another worker got there first.
	MarkRetrying(ctx context.Context, id string, fromStatus string) (bool, error)

	// FindReadyForRetry returns retryable IN_PROGRESS sagas whose next retry
	// time has passed.
	FindReadyForRetry(ctx context.Context, now time.Time) ([]domain.SagaState, error)

	// FindStuck returns retryable FAILED sagas untouched since the cutoff.
	FindStuck(ctx context.Context, cutoff time.Time) ([]domain.SagaState, error)
}
