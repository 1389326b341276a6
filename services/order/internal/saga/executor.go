package saga

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/onlineshop/orderflow/pkg/errors"
	"github.com/onlineshop/orderflow/services/order/internal/domain"
	"github.com/onlineshop/orderflow/services/order/internal/event"
	"github.com/onlineshop/orderflow/services/order/internal/gateway"
	"github.com/onlineshop/orderflow/services/order/internal/repository"
)

// StepExecutor performs a single saga step: one gateway call, then one
// durable ledger write recording the outcome. The commit of (flag,
// transaction id, step advance, order status) lands before the next step is
// dispatched; resumability after a crash depends on that ordering.
type StepExecutor struct {
	sagas       repository.SagaStateRepository
	gw          gateway.Gateway
	producer    *event.Producer
	compensator *Compensator
	dispatcher  *Dispatcher
	stepTimeout time.Duration
	logger      *slog.Logger
}

// RunInventory reserves stock for the order and advances to payment.
func (e *StepExecutor) RunInventory(ctx context.Context, order *domain.Order) error {
	items := make([]gateway.ReserveItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, gateway.ReserveItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	callCtx, cancel := e.callContext(ctx)
	res, err := e.gw.ReserveInventory(callCtx, gateway.ReserveInventoryRequest{
		OrderNumber: order.OrderNumber,
		Items:       items,
	})
	cancel()

	if failed, message, retryable := callFailed(res, err); failed {
		return e.handleFailure(ctx, order, domain.StepInventoryValidation, message, retryable)
	}

	transactionID := res.TransactionID
	if transactionID == "" {
		transactionID = order.OrderNumber
	}

	if err := e.sagas.CommitInventory(ctx, order.OrderNumber, transactionID, domain.StepPaymentProcessing); err != nil {
		return err
	}
	sagaStepsTotal.WithLabelValues(domain.StepInventoryValidation, "success").Inc()

	e.logger.InfoContext(ctx, "inventory reserved",
		slog.String("order_number", order.OrderNumber),
		slog.String("transaction_id", transactionID),
	)

	e.dispatcher.Enqueue(order.OrderNumber)
	return nil
}

// RunPayment charges the customer and advances to shipping.
func (e *StepExecutor) RunPayment(ctx context.Context, order *domain.Order) error {
	callCtx, cancel := e.callContext(ctx)
	res, err := e.gw.ProcessPayment(callCtx, gateway.PaymentRequest{
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
	})
	cancel()

	if failed, message, retryable := callFailed(res, err); failed {
		return e.handleFailure(ctx, order, domain.StepPaymentProcessing, message, retryable)
	}

	if err := e.sagas.CommitPayment(ctx, order.OrderNumber, res.TransactionID, domain.StepShippingArrangement); err != nil {
		return err
	}
	sagaStepsTotal.WithLabelValues(domain.StepPaymentProcessing, "success").Inc()

	e.logger.InfoContext(ctx, "payment processed",
		slog.String("order_number", order.OrderNumber),
		slog.String("transaction_id", res.TransactionID),
	)

	e.dispatcher.Enqueue(order.OrderNumber)
	return nil
}

// RunShipping arranges delivery and advances to order confirmation.
func (e *StepExecutor) RunShipping(ctx context.Context, order *domain.Order) error {
	callCtx, cancel := e.callContext(ctx)
	res, err := e.gw.ArrangeShipping(callCtx, gateway.ShippingRequest{
		OrderNumber:     order.OrderNumber,
		CustomerID:      order.CustomerID,
		ShippingAddress: order.ShippingAddress,
	})
	cancel()

	if failed, message, retryable := callFailed(res, err); failed {
		return e.handleFailure(ctx, order, domain.StepShippingArrangement, message, retryable)
	}

	if err := e.sagas.CommitShipping(ctx, order.OrderNumber, res.TransactionID, domain.StepOrderConfirmation); err != nil {
		return err
	}
	sagaStepsTotal.WithLabelValues(domain.StepShippingArrangement, "success").Inc()

	e.logger.InfoContext(ctx, "shipping arranged",
		slog.String("order_number", order.OrderNumber),
		slog.String("tracking_number", res.TransactionID),
	)

	e.dispatcher.Enqueue(order.OrderNumber)
	return nil
}

// Finalize confirms the inventory hold, then marks both order and saga
// COMPLETED and announces completion. The confirm call is best effort: the
// inventory service also confirms on the order.completed event, and both
// paths are idempotent on the order number.
func (e *StepExecutor) Finalize(ctx context.Context, order *domain.Order) error {
	callCtx, cancel := e.callContext(ctx)
	res, err := e.gw.ConfirmInventory(callCtx, order.OrderNumber)
	cancel()
	if failed, message, _ := callFailed(res, err); failed {
		e.logger.WarnContext(ctx, "inventory confirm failed, relying on event-driven confirm",
			slog.String("order_number", order.OrderNumber),
			slog.String("message", message),
		)
	}

	if err := e.sagas.CompleteOrderAndSaga(ctx, order.OrderNumber); err != nil {
		return err
	}
	sagaStepsTotal.WithLabelValues(domain.StepOrderConfirmation, "success").Inc()

	if err := e.producer.PublishOrderCompleted(ctx, order.OrderNumber); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish order.completed event",
			slog.String("order_number", order.OrderNumber),
			slog.String("error", err.Error()),
		)
	}

	e.logger.InfoContext(ctx, "order completed",
		slog.String("order_number", order.OrderNumber),
	)

	return nil
}

// handleFailure persists the failure classification, marks order and saga
// FAILED, and compensates committed steps when the failure is final. A
// retryable failure leaves committed steps untouched so a later retry can
// resume from the persisted current step.
func (e *StepExecutor) handleFailure(ctx context.Context, order *domain.Order, step, message string, retryable bool) error {
	sagaStepsTotal.WithLabelValues(step, "failure").Inc()

	e.logger.ErrorContext(ctx, "saga step failed",
		slog.String("order_number", order.OrderNumber),
		slog.String("step", step),
		slog.String("message", message),
		slog.Bool("retryable", retryable),
	)

	if err := e.sagas.SetRetryable(ctx, order.OrderNumber, retryable); err != nil {
		e.logger.ErrorContext(ctx, "failed to persist retryable flag",
			slog.String("order_number", order.OrderNumber),
			slog.String("error", err.Error()),
		)
	}

	if err := e.sagas.FailOrderAndSaga(ctx, order.OrderNumber, message, step+": "+message); err != nil {
		e.logger.ErrorContext(ctx, "failed to mark order and saga failed",
			slog.String("order_number", order.OrderNumber),
			slog.String("error", err.Error()),
		)
	}

	if err := e.producer.PublishOrderFailed(ctx, order.OrderNumber, message, retryable); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish order.failed event",
			slog.String("order_number", order.OrderNumber),
			slog.String("error", err.Error()),
		)
	}

	if !retryable {
		if err := e.compensator.Execute(ctx, order.OrderNumber); err != nil {
			e.logger.ErrorContext(ctx, "compensation after step failure errored",
				slog.String("order_number", order.OrderNumber),
				slog.String("error", err.Error()),
			)
		}
	}

	return apperrors.StepFailed(step, message, retryable)
}

// callContext bounds a single gateway call.
func (e *StepExecutor) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.stepTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.stepTimeout)
}

// callFailed classifies the outcome of a gateway call. A nil result or a
// transport error is a failure; retryability comes from the result's own
// classification and defaults to false when absent.
func callFailed(res *gateway.Result, err error) (failed bool, message string, retryable bool) {
	if err != nil {
		return true, err.Error(), false
	}
	if res == nil {
		return true, "unknown error: empty gateway response", false
	}
	if !res.Success {
		message = res.Message
		if message == "" {
			message = "unknown error"
		}
		return true, message, res.IsRetryable()
	}
	return false, "", false
}
