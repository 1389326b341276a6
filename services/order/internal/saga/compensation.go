package saga

import (
	"context"
	"log/slog"

	"github.com/onlineshop/orderflow/services/order/internal/domain"
	"github.com/onlineshop/orderflow/services/order/internal/gateway"
	"github.com/onlineshop/orderflow/services/order/internal/repository"
)

// Compensator undoes committed saga steps in strict reverse order: shipping,
// then payment, then inventory. Each flag is cleared only when its inverse
// call reports success; a failed inverse call is logged and left set so a
// later compensation attempt can pick it up.
type Compensator struct {
	sagas  repository.SagaStateRepository
	gw     gateway.Gateway
	logger *slog.Logger
}

// NewCompensator creates a compensation engine.
func NewCompensator(sagas repository.SagaStateRepository, gw gateway.Gateway, logger *slog.Logger) *Compensator {
	return &Compensator{sagas: sagas, gw: gw, logger: logger}
}

// Execute runs compensation for every committed step of the order's saga.
// The final status is COMPENSATED when the attempt itself completed, even if
// individual inverse calls failed; flags that remain set record exactly what
// a re-attempt still has to undo. COMPENSATION_FAILED is reserved for the
// attempt itself breaking off (ledger unreadable or unwritable).
func (c *Compensator) Execute(ctx context.Context, orderNumber string) error {
	state, err := c.sagas.GetByOrderNumber(ctx, orderNumber)
	if err != nil {
		sagaCompensationsTotal.WithLabelValues("failed").Inc()
		return err
	}

	c.logger.InfoContext(ctx, "starting compensation",
		slog.String("order_number", orderNumber),
		slog.Bool("shipping_arranged", state.ShippingArranged),
		slog.Bool("payment_processed", state.PaymentProcessed),
		slog.Bool("inventory_reserved", state.InventoryReserved),
	)

	if err := c.sagas.UpdateStatus(ctx, orderNumber, domain.SagaStatusCompensating); err != nil {
		sagaCompensationsTotal.WithLabelValues("failed").Inc()
		return err
	}

	if state.ShippingArranged && state.ShippingTransactionID != nil {
		c.compensateShipping(ctx, orderNumber, *state.ShippingTransactionID)
	}
	if state.PaymentProcessed && state.PaymentTransactionID != nil {
		c.compensatePayment(ctx, orderNumber, *state.PaymentTransactionID)
	}
	if state.InventoryReserved && state.InventoryTransactionID != nil {
		c.compensateInventory(ctx, orderNumber)
	}

	after, err := c.sagas.GetByOrderNumber(ctx, orderNumber)
	if err != nil {
		c.markFailed(ctx, orderNumber)
		return err
	}
	if after.HasCommittedSteps() {
		c.logger.WarnContext(ctx, "compensation incomplete, some steps remain committed",
			slog.String("order_number", orderNumber),
			slog.Bool("shipping_arranged", after.ShippingArranged),
			slog.Bool("payment_processed", after.PaymentProcessed),
			slog.Bool("inventory_reserved", after.InventoryReserved),
		)
	}

	if err := c.sagas.UpdateStatus(ctx, orderNumber, domain.SagaStatusCompensated); err != nil {
		sagaCompensationsTotal.WithLabelValues("failed").Inc()
		return err
	}

	sagaCompensationsTotal.WithLabelValues("compensated").Inc()
	c.logger.InfoContext(ctx, "compensation completed",
		slog.String("order_number", orderNumber),
	)

	return nil
}

func (c *Compensator) compensateShipping(ctx context.Context, orderNumber, trackingNumber string) {
	res, err := c.gw.CancelShipping(ctx, trackingNumber)
	if err != nil || res == nil || !res.Success {
		c.logger.WarnContext(ctx, "failed to cancel shipping, leaving step committed",
			slog.String("order_number", orderNumber),
			slog.String("tracking_number", trackingNumber),
			slog.String("error", compensationError(res, err)),
		)
		return
	}

	if err := c.sagas.ClearShipping(ctx, orderNumber); err != nil {
		c.logger.ErrorContext(ctx, "failed to clear shipping state",
			slog.String("order_number", orderNumber),
			slog.String("error", err.Error()),
		)
		return
	}

	c.logger.InfoContext(ctx, "shipping cancelled",
		slog.String("order_number", orderNumber),
	)
}

func (c *Compensator) compensatePayment(ctx context.Context, orderNumber, transactionID string) {
	res, err := c.gw.RefundPayment(ctx, transactionID)
	if err != nil || res == nil || !res.Success {
		c.logger.WarnContext(ctx, "failed to refund payment, leaving step committed",
			slog.String("order_number", orderNumber),
			slog.String("transaction_id", transactionID),
			slog.String("error", compensationError(res, err)),
		)
		return
	}

	if err := c.sagas.ClearPayment(ctx, orderNumber); err != nil {
		c.logger.ErrorContext(ctx, "failed to clear payment state",
			slog.String("order_number", orderNumber),
			slog.String("error", err.Error()),
		)
		return
	}

	c.logger.InfoContext(ctx, "payment refunded",
		slog.String("order_number", orderNumber),
	)
}

func (c *Compensator) compensateInventory(ctx context.Context, orderNumber string) {
	res, err := c.gw.ReleaseInventory(ctx, orderNumber)
	if err != nil || res == nil || !res.Success {
		c.logger.WarnContext(ctx, "failed to release inventory, leaving step committed",
			slog.String("order_number", orderNumber),
			slog.String("error", compensationError(res, err)),
		)
		return
	}

	if err := c.sagas.ClearInventory(ctx, orderNumber); err != nil {
		c.logger.ErrorContext(ctx, "failed to clear inventory state",
			slog.String("order_number", orderNumber),
			slog.String("error", err.Error()),
		)
		return
	}

	c.logger.InfoContext(ctx, "inventory released",
		slog.String("order_number", orderNumber),
	)
}

func (c *Compensator) markFailed(ctx context.Context, orderNumber string) {
	sagaCompensationsTotal.WithLabelValues("failed").Inc()
	if err := c.sagas.UpdateStatus(ctx, orderNumber, domain.SagaStatusCompensationFailed); err != nil {
		c.logger.ErrorContext(ctx, "failed to record compensation failure",
			slog.String("order_number", orderNumber),
			slog.String("error", err.Error()),
		)
	}
}

func compensationError(res *gateway.Result, err error) string {
	if err != nil {
		return err.Error()
	}
	if res == nil {
		return "empty gateway response"
	}
	if res.Message != "" {
		return res.Message
	}
	return "gateway reported failure"
}
