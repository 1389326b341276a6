package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/onlineshop/orderflow/pkg/database"
	apperrors "github.com/onlineshop/orderflow/pkg/errors"
	"github.com/onlineshop/orderflow/services/order/internal/domain"
)

const sagaStateColumns = `
	id, order_number, status, current_step,
	inventory_reserved, payment_processed, shipping_arranged,
	inventory_transaction_id, payment_transaction_id, shipping_transaction_id,
	COALESCE(error_message, ''), COALESCE(last_error_trace, ''),
	retry_count, max_retries, retryable, last_retry_time, next_retry_time,
	created_at, updated_at`

// SagaStateRepository implements repository.SagaStateRepository using
// PostgreSQL. Mutations that touch both the saga ledger and the order row
// run in a single transaction so each step commit is one durability boundary.
type SagaStateRepository struct {
	pool database.DBTX
}

// NewSagaStateRepository creates a new PostgreSQL-backed saga state repository.
func NewSagaStateRepository(pool database.DBTX) *SagaStateRepository {
	return &SagaStateRepository{pool: pool}
}

// Create inserts a new saga state row.
func (r *SagaStateRepository) Create(ctx context.Context, s *domain.SagaState) error {
	query := `
		INSERT INTO saga_states (id, order_number, status, current_step, retry_count, max_retries, retryable, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`

	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.OrderNumber,
		s.Status,
		s.CurrentStep,
		s.RetryCount,
		s.MaxRetries,
		s.Retryable,
		s.CreatedAt,
	)
	if err != nil {
		return apperrors.SagaStateUpdate(s.OrderNumber, fmt.Errorf("insert saga state: %w", err))
	}

	return nil
}

// GetByOrderNumber loads the saga state for an order.
func (r *SagaStateRepository) GetByOrderNumber(ctx context.Context, orderNumber string) (*domain.SagaState, error) {
	query := `SELECT ` + sagaStateColumns + ` FROM saga_states WHERE order_number = $1`

	s, err := scanSagaState(r.pool.QueryRow(ctx, query, orderNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("saga state", orderNumber)
		}
		return nil, fmt.Errorf("scan saga state: %w", err)
	}

	return s, nil
}

// CommitInventory records a successful inventory reservation and advances the
// saga in one transaction, bumping the order to PROCESSING.
func (r *SagaStateRepository) CommitInventory(ctx context.Context, orderNumber, transactionID, nextStep string) error {
	return r.commitStep(ctx, orderNumber, "inventory_reserved", "inventory_transaction_id", transactionID, nextStep)
}

// CommitPayment records a successful payment and advances the saga.
func (r *SagaStateRepository) CommitPayment(ctx context.Context, orderNumber, transactionID, nextStep string) error {
	return r.commitStep(ctx, orderNumber, "payment_processed", "payment_transaction_id", transactionID, nextStep)
}

// CommitShipping records a successful shipping arrangement and advances the
// saga; the transaction id holds the carrier tracking number.
func (r *SagaStateRepository) CommitShipping(ctx context.Context, orderNumber, trackingNumber, nextStep string) error {
	return r.commitStep(ctx, orderNumber, "shipping_arranged", "shipping_transaction_id", trackingNumber, nextStep)
}

func (r *SagaStateRepository) commitStep(ctx context.Context, orderNumber, flagColumn, txnColumn, transactionID, nextStep string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return apperrors.SagaStateUpdate(orderNumber, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	// flagColumn and txnColumn are compile-time constants from the wrappers
	// above, never caller input.
	sagaQuery := fmt.Sprintf(`
		UPDATE saga_states
		SET %s = TRUE, %s = $1, current_step = $2, status = $3, updated_at = NOW()
		WHERE order_number = $4`, flagColumn, txnColumn)

	ct, err := tx.Exec(ctx, sagaQuery, transactionID, nextStep, domain.SagaStatusInProgress, orderNumber)
	if err != nil {
		return apperrors.SagaStateUpdate(orderNumber, fmt.Errorf("update saga state: %w", err))
	}
	if ct.RowsAffected() == 0 {
		return apperrors.SagaStateUpdate(orderNumber, errors.New("saga state not found"))
	}

	orderQuery := `UPDATE orders SET status = $1, updated_at = NOW() WHERE order_number = $2`
	if _, err := tx.Exec(ctx, orderQuery, domain.OrderStatusProcessing, orderNumber); err != nil {
		return apperrors.SagaStateUpdate(orderNumber, fmt.Errorf("update order status: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.SagaStateUpdate(orderNumber, fmt.Errorf("commit transaction: %w", err))
	}

	return nil
}

// ClearInventory resets the inventory commit after a successful release.
func (r *SagaStateRepository) ClearInventory(ctx context.Context, orderNumber string) error {
	return r.clearStep(ctx, orderNumber, "inventory_reserved", "inventory_transaction_id")
}

// ClearPayment resets the payment commit after a successful refund.
func (r *SagaStateRepository) ClearPayment(ctx context.Context, orderNumber string) error {
	return r.clearStep(ctx, orderNumber, "payment_processed", "payment_transaction_id")
}

// ClearShipping resets the shipping commit after a successful cancellation.
func (r *SagaStateRepository) ClearShipping(ctx context.Context, orderNumber string) error {
	return r.clearStep(ctx, orderNumber, "shipping_arranged", "shipping_transaction_id")
}

func (r *SagaStateRepository) clearStep(ctx context.Context, orderNumber, flagColumn, txnColumn string) error {
	query := fmt.Sprintf(`
		UPDATE saga_states
		SET %s = FALSE, %s = NULL, updated_at = NOW()
		WHERE order_number = $1`, flagColumn, txnColumn)

	ct, err := r.pool.Exec(ctx, query, orderNumber)
	if err != nil {
		return apperrors.SagaStateUpdate(orderNumber, fmt.Errorf("clear step state: %w", err))
	}
	if ct.RowsAffected() == 0 {
		return apperrors.SagaStateUpdate(orderNumber, errors.New("saga state not found"))
	}

	return nil
}

// SetRetryable persists whether the last failure may be retried.
func (r *SagaStateRepository) SetRetryable(ctx context.Context, orderNumber string, retryable bool) error {
	query := `UPDATE saga_states SET retryable = $1, updated_at = NOW() WHERE order_number = $2`

	ct, err := r.pool.Exec(ctx, query, retryable, orderNumber)
	if err != nil {
		return apperrors.SagaStateUpdate(orderNumber, fmt.Errorf("update retryable: %w", err))
	}
	if ct.RowsAffected() == 0 {
		return apperrors.SagaStateUpdate(orderNumber, errors.New("saga state not found"))
	}

	return nil
}

// UpdateStatus changes only the saga status.
func (r *SagaStateRepository) UpdateStatus(ctx context.Context, orderNumber string, status string) error {
	query := `UPDATE saga_states SET status = $1, updated_at = NOW() WHERE order_number = $2`

	ct, err := r.pool.Exec(ctx, query, status, orderNumber)
	if err != nil {
		return apperrors.SagaStateUpdate(orderNumber, fmt.Errorf("update saga status: %w", err))
	}
	if ct.RowsAffected() == 0 {
		return apperrors.SagaStateUpdate(orderNumber, errors.New("saga state not found"))
	}

	return nil
}

// CompleteOrderAndSaga marks order and saga COMPLETED in one transaction.
func (r *SagaStateRepository) CompleteOrderAndSaga(ctx context.Context, orderNumber string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return apperrors.SagaStateUpdate(orderNumber, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	sagaQuery := `
		UPDATE saga_states
		SET status = $1, current_step = $2, updated_at = NOW()
		WHERE order_number = $3`
	if _, err := tx.Exec(ctx, sagaQuery, domain.SagaStatusCompleted, domain.StepCompleted, orderNumber); err != nil {
		return apperrors.SagaStateUpdate(orderNumber, fmt.Errorf("complete saga: %w", err))
	}

	orderQuery := `UPDATE orders SET status = $1, updated_at = NOW() WHERE order_number = $2`
	if _, err := tx.Exec(ctx, orderQuery, domain.OrderStatusCompleted, orderNumber); err != nil {
		return apperrors.SagaStateUpdate(orderNumber, fmt.Errorf("complete order: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.SagaStateUpdate(orderNumber, fmt.Errorf("commit transaction: %w", err))
	}

	return nil
}

// FailOrderAndSaga marks order and saga FAILED in one transaction, recording
// the failure message and error chain.
func (r *SagaStateRepository) FailOrderAndSaga(ctx context.Context, orderNumber, errMessage, errTrace string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return apperrors.SagaStateUpdate(orderNumber, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	sagaQuery := `
		UPDATE saga_states
		SET status = $1, error_message = $2, last_error_trace = $3, last_retry_time = NOW(), updated_at = NOW()
		WHERE order_number = $4`
	if _, err := tx.Exec(ctx, sagaQuery, domain.SagaStatusFailed, errMessage, errTrace, orderNumber); err != nil {
		return apperrors.SagaStateUpdate(orderNumber, fmt.Errorf("fail saga: %w", err))
	}

	orderQuery := `UPDATE orders SET status = $1, updated_at = NOW() WHERE order_number = $2`
	if _, err := tx.Exec(ctx, orderQuery, domain.OrderStatusFailed, orderNumber); err != nil {
		return apperrors.SagaStateUpdate(orderNumber, fmt.Errorf("fail order: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.SagaStateUpdate(orderNumber, fmt.Errorf("commit transaction: %w", err))
	}

	return nil
}

// PrepareForRetry persists the retry bookkeeping and forces IN_PROGRESS so a
// crash mid-retry still reflects the attempt count.
func (r *SagaStateRepository) PrepareForRetry(ctx context.Context, orderNumber string, retryCount int, lastRetry, nextRetry time.Time) error {
	query := `
		UPDATE saga_states
		SET retry_count = $1, last_retry_time = $2, next_retry_time = $3, status = $4, updated_at = NOW()
		WHERE order_number = $5`

	ct, err := r.pool.Exec(ctx, query, retryCount, lastRetry, nextRetry, domain.SagaStatusInProgress, orderNumber)
	if err != nil {
		return apperrors.SagaStateUpdate(orderNumber, fmt.Errorf("prepare retry: %w", err))
	}
	if ct.RowsAffected() == 0 {
		return apperrors.SagaStateUpdate(orderNumber, errors.New("saga state not found"))
	}

	return nil
}

// MarkRetrying transitions the saga to RETRYING only if it still holds the
// expected status, so concurrent sweep workers cannot double-claim a saga.
func (r *SagaStateRepository) MarkRetrying(ctx context.Context, id string, fromStatus string) (bool, error) {
	query := `UPDATE saga_states SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`

	ct, err := r.pool.Exec(ctx, query, domain.SagaStatusRetrying, id, fromStatus)
	if err != nil {
		return false, fmt.Errorf("mark saga retrying: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

// FindReadyForRetry returns retryable IN_PROGRESS sagas whose next retry time
// has passed, oldest first.
func (r *SagaStateRepository) FindReadyForRetry(ctx context.Context, now time.Time) ([]domain.SagaState, error) {
	query := `SELECT ` + sagaStateColumns + `
		FROM saga_states
		WHERE status = $1 AND retryable = TRUE AND next_retry_time IS NOT NULL AND next_retry_time <= $2 AND retry_count < max_retries
		ORDER BY next_retry_time`

	return r.querySagaStates(ctx, query, domain.SagaStatusInProgress, now)
}

// FindStuck returns retryable FAILED sagas untouched since the cutoff.
func (r *SagaStateRepository) FindStuck(ctx context.Context, cutoff time.Time) ([]domain.SagaState, error) {
	query := `SELECT ` + sagaStateColumns + `
		FROM saga_states
		WHERE status = $1 AND retryable = TRUE AND updated_at < $2 AND retry_count < max_retries
		ORDER BY updated_at`

	return r.querySagaStates(ctx, query, domain.SagaStatusFailed, cutoff)
}

func (r *SagaStateRepository) querySagaStates(ctx context.Context, query string, args ...any) ([]domain.SagaState, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query saga states: %w", err)
	}
	defer rows.Close()

	states := make([]domain.SagaState, 0)
	for rows.Next() {
		s, err := scanSagaState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan saga state row: %w", err)
		}
		states = append(states, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saga state rows: %w", err)
	}

	return states, nil
}

func scanSagaState(row pgx.Row) (*domain.SagaState, error) {
	var s domain.SagaState
	err := row.Scan(
		&s.ID,
		&s.OrderNumber,
		&s.Status,
		&s.CurrentStep,
		&s.InventoryReserved,
		&s.PaymentProcessed,
		&s.ShippingArranged,
		&s.InventoryTransactionID,
		&s.PaymentTransactionID,
		&s.ShippingTransactionID,
		&s.ErrorMessage,
		&s.LastErrorTrace,
		&s.RetryCount,
		&s.MaxRetries,
		&s.Retryable,
		&s.LastRetryTime,
		&s.NextRetryTime,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
