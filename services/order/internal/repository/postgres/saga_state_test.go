package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/onlineshop/orderflow/pkg/errors"
	"github.com/onlineshop/orderflow/services/order/internal/domain"
)

func newSagaRepo(t *testing.T) (*SagaStateRepository, pgxmock.PgxPoolIface) {
	t.Helper()

	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewSagaStateRepository(pool), pool
}

func sagaStateRows(t *testing.T) *pgxmock.Rows {
	t.Helper()
	now := time.Now().UTC()
	return pgxmock.NewRows([]string{
		"id", "order_number", "status", "current_step",
		"inventory_reserved", "payment_processed", "shipping_arranged",
		"inventory_transaction_id", "payment_transaction_id", "shipping_transaction_id",
		"error_message", "last_error_trace",
		"retry_count", "max_retries", "retryable", "last_retry_time", "next_retry_time",
		"created_at", "updated_at",
	}).AddRow(
		"saga-1", "ORD-1", domain.SagaStatusInProgress, domain.StepPaymentProcessing,
		true, false, false,
		strPtr("ORD-1"), nil, nil,
		"", "",
		1, 5, true, nil, nil,
		now, now,
	)
}

func strPtr(s string) *string { return &s }

func TestGetByOrderNumber(t *testing.T) {
	repo, pool := newSagaRepo(t)
	ctx := context.Background()

	pool.ExpectQuery("SELECT(.|\n)+FROM saga_states").WithArgs("ORD-1").
		WillReturnRows(sagaStateRows(t))

	s, err := repo.GetByOrderNumber(ctx, "ORD-1")

	require.NoError(t, err)
	assert.Equal(t, "ORD-1", s.OrderNumber)
	assert.Equal(t, domain.StepPaymentProcessing, s.CurrentStep)
	assert.True(t, s.InventoryReserved)
	require.NotNil(t, s.InventoryTransactionID)
	assert.Equal(t, "ORD-1", *s.InventoryTransactionID)
	assert.Nil(t, s.PaymentTransactionID)
	assert.Equal(t, 1, s.RetryCount)
	assert.True(t, s.Retryable)

	require.NoError(t, pool.ExpectationsWereMet())
}

func TestGetByOrderNumber_NotFound(t *testing.T) {
	repo, pool := newSagaRepo(t)
	ctx := context.Background()

	pool.ExpectQuery("SELECT(.|\n)+FROM saga_states").WithArgs("ORD-404").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByOrderNumber(ctx, "ORD-404")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestCommitInventory_OneTransaction(t *testing.T) {
	repo, pool := newSagaRepo(t)
	ctx := context.Background()

	pool.ExpectBegin()
	pool.ExpectExec("UPDATE saga_states").
		WithArgs("TXN-1", domain.StepPaymentProcessing, domain.SagaStatusInProgress, "ORD-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec("UPDATE orders").
		WithArgs(domain.OrderStatusProcessing, "ORD-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectCommit()

	err := repo.CommitInventory(ctx, "ORD-1", "TXN-1", domain.StepPaymentProcessing)

	require.NoError(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestCommitPayment_UnknownSagaRollsBack(t *testing.T) {
	repo, pool := newSagaRepo(t)
	ctx := context.Background()

	pool.ExpectBegin()
	pool.ExpectExec("UPDATE saga_states").
		WithArgs("PAY-1", domain.StepShippingArrangement, domain.SagaStatusInProgress, "ORD-404").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	pool.ExpectRollback()

	err := repo.CommitPayment(ctx, "ORD-404", "PAY-1", domain.StepShippingArrangement)

	assert.ErrorIs(t, err, apperrors.ErrSagaStateUpdate)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestClearPayment(t *testing.T) {
	repo, pool := newSagaRepo(t)
	ctx := context.Background()

	pool.ExpectExec("UPDATE saga_states").WithArgs("ORD-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.ClearPayment(ctx, "ORD-1")

	require.NoError(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestFailOrderAndSaga_OneTransaction(t *testing.T) {
	repo, pool := newSagaRepo(t)
	ctx := context.Background()

	pool.ExpectBegin()
	pool.ExpectExec("UPDATE saga_states").
		WithArgs(domain.SagaStatusFailed, "card declined", "PAYMENT_PROCESSING: card declined", "ORD-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec("UPDATE orders").
		WithArgs(domain.OrderStatusFailed, "ORD-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectCommit()

	err := repo.FailOrderAndSaga(ctx, "ORD-1", "card declined", "PAYMENT_PROCESSING: card declined")

	require.NoError(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestCompleteOrderAndSaga_OneTransaction(t *testing.T) {
	repo, pool := newSagaRepo(t)
	ctx := context.Background()

	pool.ExpectBegin()
	pool.ExpectExec("UPDATE saga_states").
		WithArgs(domain.SagaStatusCompleted, domain.StepCompleted, "ORD-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec("UPDATE orders").
		WithArgs(domain.OrderStatusCompleted, "ORD-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectCommit()

	err := repo.CompleteOrderAndSaga(ctx, "ORD-1")

	require.NoError(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestMarkRetrying_ClaimWins(t *testing.T) {
	repo, pool := newSagaRepo(t)
	ctx := context.Background()

	pool.ExpectExec("UPDATE saga_states").
		WithArgs(domain.SagaStatusRetrying, "saga-1", domain.SagaStatusInProgress).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	claimed, err := repo.MarkRetrying(ctx, "saga-1", domain.SagaStatusInProgress)

	require.NoError(t, err)
	assert.True(t, claimed)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestMarkRetrying_ClaimLost(t *testing.T) {
	repo, pool := newSagaRepo(t)
	ctx := context.Background()

	// Another worker already moved the saga out of the expected status.
	pool.ExpectExec("UPDATE saga_states").
		WithArgs(domain.SagaStatusRetrying, "saga-1", domain.SagaStatusFailed).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	claimed, err := repo.MarkRetrying(ctx, "saga-1", domain.SagaStatusFailed)

	require.NoError(t, err)
	assert.False(t, claimed)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestFindReadyForRetry(t *testing.T) {
	repo, pool := newSagaRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	pool.ExpectQuery("SELECT(.|\n)+FROM saga_states").
		WithArgs(domain.SagaStatusInProgress, now).
		WillReturnRows(sagaStateRows(t))

	states, err := repo.FindReadyForRetry(ctx, now)

	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "ORD-1", states[0].OrderNumber)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPrepareForRetry(t *testing.T) {
	repo, pool := newSagaRepo(t)
	ctx := context.Background()
	last := time.Now().UTC()
	next := last.Add(2 * time.Second)

	pool.ExpectExec("UPDATE saga_states").
		WithArgs(2, last, next, domain.SagaStatusInProgress, "ORD-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.PrepareForRetry(ctx, "ORD-1", 2, last, next)

	require.NoError(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
}
