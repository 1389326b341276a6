package saga

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/onlineshop/orderflow/pkg/errors"
	"github.com/onlineshop/orderflow/services/order/internal/domain"
	"github.com/onlineshop/orderflow/services/order/internal/event"
	"github.com/onlineshop/orderflow/services/order/internal/gateway"
	"github.com/onlineshop/orderflow/services/order/internal/repository"
)

// Config holds orchestrator tuning knobs.
type Config struct {
	MaxRetries    int
	MaxRetryDelay time.Duration
	StepTimeout   time.Duration
	Workers       int
	QueueSize     int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    5,
		MaxRetryDelay: 300 * time.Second,
		StepTimeout:   30 * time.Second,
		Workers:       4,
		QueueSize:     64,
	}
}

// Orchestrator is the top-level saga state machine. It starts sagas, drives
// sequential step execution through the dispatcher, invokes compensation on
// unrecoverable failure, and exposes retry.
type Orchestrator struct {
	orders      repository.OrderRepository
	sagas       repository.SagaStateRepository
	executor    *StepExecutor
	compensator *Compensator
	policy      *RetryPolicy
	dispatcher  *Dispatcher
	logger      *slog.Logger
}

// NewOrchestrator wires the saga engine together.
func NewOrchestrator(
	cfg Config,
	orders repository.OrderRepository,
	sagas repository.SagaStateRepository,
	gw gateway.Gateway,
	producer *event.Producer,
	logger *slog.Logger,
) *Orchestrator {
	policy := NewRetryPolicy(cfg.MaxRetries, cfg.MaxRetryDelay)
	dispatcher := newDispatcher(cfg.Workers, cfg.QueueSize, logger)
	compensator := NewCompensator(sagas, gw, logger)

	o := &Orchestrator{
		orders:      orders,
		sagas:       sagas,
		compensator: compensator,
		policy:      policy,
		dispatcher:  dispatcher,
		logger:      logger,
	}

	o.executor = &StepExecutor{
		sagas:       sagas,
		gw:          gw,
		producer:    producer,
		compensator: compensator,
		dispatcher:  dispatcher,
		stepTimeout: cfg.StepTimeout,
		logger:      logger,
	}

	dispatcher.handler = o.runStep

	return o
}

// Run starts the dispatch workers. Steps enqueued before Run sit in the
// queue until the workers come up.
func (o *Orchestrator) Run(ctx context.Context) {
	o.dispatcher.Start(ctx)
}

// Close drains the dispatch queue and stops the workers.
func (o *Orchestrator) Close() {
	o.dispatcher.Close()
}

// Policy exposes the retry policy, for the sweep scheduler.
func (o *Orchestrator) Policy() *RetryPolicy {
	return o.policy
}

// Start creates the saga ledger for a freshly created order and dispatches
// the first step. The caller's request does not wait for step execution.
func (o *Orchestrator) Start(ctx context.Context, order *domain.Order) error {
	now := time.Now().UTC()
	state := &domain.SagaState{
		ID:          uuid.New().String(),
		OrderNumber: order.OrderNumber,
		Status:      domain.SagaStatusStarted,
		CurrentStep: domain.StepOrderCreated,
		MaxRetries:  o.policy.MaxRetries(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := o.sagas.Create(ctx, state); err != nil {
		return err
	}
	sagasStartedTotal.Inc()

	o.logger.InfoContext(ctx, "saga started",
		slog.String("order_number", order.OrderNumber),
	)

	o.dispatcher.Enqueue(order.OrderNumber)
	return nil
}

// ExecuteNextStep loads the latest order and saga state and runs the step
// the persisted current step calls for. Steps whose committed flag is
// already set were advanced past, so a resumed saga never re-issues a
// committed external effect.
func (o *Orchestrator) ExecuteNextStep(ctx context.Context, orderNumber string) error {
	order, err := o.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		return fmt.Errorf("load order for saga step: %w", err)
	}

	state, err := o.sagas.GetByOrderNumber(ctx, orderNumber)
	if err != nil {
		return fmt.Errorf("load saga state: %w", err)
	}

	o.logger.InfoContext(ctx, "executing saga step",
		slog.String("order_number", orderNumber),
		slog.String("step", state.CurrentStep),
	)

	switch state.CurrentStep {
	case domain.StepOrderCreated, domain.StepInventoryValidation:
		return o.executor.RunInventory(ctx, order)
	case domain.StepPaymentProcessing:
		return o.executor.RunPayment(ctx, order)
	case domain.StepShippingArrangement:
		return o.executor.RunShipping(ctx, order)
	case domain.StepOrderConfirmation, domain.StepCompleted:
		return o.executor.Finalize(ctx, order)
	default:
		return apperrors.Internal(fmt.Errorf("unknown saga step %q for order %s", state.CurrentStep, orderNumber))
	}
}

// Compensate undoes every committed step of the order's saga, regardless of
// where the saga currently stands. Used both for unrecoverable step failure
// and for user-initiated cancellation.
func (o *Orchestrator) Compensate(ctx context.Context, orderNumber string) error {
	return o.compensator.Execute(ctx, orderNumber)
}

// CanRetry reports whether the order's saga is eligible for a retry.
func (o *Orchestrator) CanRetry(ctx context.Context, orderNumber string) (bool, error) {
	state, err := o.sagas.GetByOrderNumber(ctx, orderNumber)
	if err != nil {
		return false, err
	}
	return o.policy.CanRetry(state), nil
}

// Retry stamps the next attempt's bookkeeping and re-dispatches execution
// from the persisted current step. Committed steps are never re-executed.
func (o *Orchestrator) Retry(ctx context.Context, orderNumber string) error {
	state, err := o.sagas.GetByOrderNumber(ctx, orderNumber)
	if err != nil {
		return err
	}

	if !o.retryEligible(state) {
		return apperrors.Conflict(fmt.Sprintf("saga for order %s cannot be retried", orderNumber))
	}

	nextCount := state.RetryCount + 1
	now := time.Now().UTC()
	if err := o.sagas.PrepareForRetry(ctx, orderNumber, nextCount, now, o.policy.NextRetryTime(nextCount)); err != nil {
		return err
	}
	sagaRetriesTotal.Inc()

	o.logger.InfoContext(ctx, "retrying saga",
		slog.String("order_number", orderNumber),
		slog.String("resume_step", state.CurrentStep),
		slog.Int("retry_count", nextCount),
	)

	o.dispatcher.Enqueue(orderNumber)
	return nil
}

// retryEligible additionally admits RETRYING, the status the sweep
// scheduler stamps while claiming a saga before handing it to Retry.
func (o *Orchestrator) retryEligible(s *domain.SagaState) bool {
	if o.policy.CanRetry(s) {
		return true
	}
	return s != nil &&
		s.Status == domain.SagaStatusRetrying &&
		s.Retryable &&
		s.RetryCount < o.policy.MaxRetries()
}

func (o *Orchestrator) runStep(ctx context.Context, orderNumber string) {
	if err := o.ExecuteNextStep(ctx, orderNumber); err != nil {
		o.logger.Error("saga step execution failed",
			slog.String("order_number", orderNumber),
			slog.String("error", err.Error()),
		)
	}
}
