package service

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/onlineshop/orderflow/pkg/errors"
	pkgkafka "github.com/onlineshop/orderflow/pkg/kafka"
	"github.com/onlineshop/orderflow/services/inventory/internal/domain"
	"github.com/onlineshop/orderflow/services/inventory/internal/event"
)

// --- Mock InventoryRepository ---

type mockInventoryRepository struct {
	mock.Mock
}

func (m *mockInventoryRepository) GetByProduct(ctx context.Context, productID string) (*domain.Inventory, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Inventory), args.Error(1)
}

func (m *mockInventoryRepository) UpsertStock(ctx context.Context, productID string, availableQuantity int) (*domain.Inventory, error) {
	args := m.Called(ctx, productID, availableQuantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Inventory), args.Error(1)
}

func (m *mockInventoryRepository) List(ctx context.Context) ([]domain.Inventory, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Inventory), args.Error(1)
}

// --- Mock ReservationRepository ---

type mockReservationRepository struct {
	mock.Mock
}

func (m *mockReservationRepository) GetByOrderID(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Reservation), args.Error(1)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(t *testing.T, reservationRepo *mockReservationRepository) (*InventoryService, pgxmock.PgxPoolIface) {
	t.Helper()

	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	logger := newTestLogger()
	// Kafka producer pointed at nothing; publish failures are logged and ignored.
	kafkaProducer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig([]string{"localhost:9092"}), logger)
	producer := event.NewProducer(kafkaProducer, logger)

	svc := NewInventoryService(new(mockInventoryRepository), reservationRepo, pool, producer, logger)
	return svc, pool
}

// --- Reserve ---

func TestReserve_MultiItemSuccess(t *testing.T) {
	reservationRepo := new(mockReservationRepository)
	svc, pool := newTestService(t, reservationRepo)
	ctx := context.Background()

	reservationRepo.On("GetByOrderID", ctx, "ORD-1001").Return([]domain.Reservation{}, nil)

	items := []domain.ReserveItem{
		{ProductID: "PROD-002", Quantity: 4},
		{ProductID: "PROD-001", Quantity: 3},
	}

	pool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	// Validation pass locks rows in sorted product order regardless of input order.
	pool.ExpectQuery("SELECT available_quantity").WithArgs("PROD-001").
		WillReturnRows(pgxmock.NewRows([]string{"available_quantity"}).AddRow(100))
	pool.ExpectQuery("SELECT available_quantity").WithArgs("PROD-002").
		WillReturnRows(pgxmock.NewRows([]string{"available_quantity"}).AddRow(50))
	// Apply pass.
	pool.ExpectExec("UPDATE inventory").WithArgs(3, "PROD-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec("INSERT INTO reservations").
		WithArgs(pgxmock.AnyArg(), "ORD-1001", "PROD-001", 3, domain.ReservationStatusReserved, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectExec("UPDATE inventory").WithArgs(4, "PROD-002").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec("INSERT INTO reservations").
		WithArgs(pgxmock.AnyArg(), "ORD-1001", "PROD-002", 4, domain.ReservationStatusReserved, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectCommit()

	reservations, err := svc.Reserve(ctx, "ORD-1001", items)

	require.NoError(t, err)
	require.Len(t, reservations, 2)
	assert.Equal(t, "PROD-001", reservations[0].ProductID)
	assert.Equal(t, 3, reservations[0].Quantity)
	assert.Equal(t, domain.ReservationStatusReserved, reservations[0].Status)
	assert.Equal(t, "PROD-002", reservations[1].ProductID)
	assert.Equal(t, 4, reservations[1].Quantity)

	require.NoError(t, pool.ExpectationsWereMet())
	reservationRepo.AssertExpectations(t)
}

func TestReserve_IdempotentOnExistingReservations(t *testing.T) {
	reservationRepo := new(mockReservationRepository)
	svc, pool := newTestService(t, reservationRepo)
	ctx := context.Background()

	existing := []domain.Reservation{
		{ID: "res-1", OrderID: "ORD-1001", ProductID: "PROD-001", Quantity: 3, Status: domain.ReservationStatusReserved},
		{ID: "res-2", OrderID: "ORD-1001", ProductID: "PROD-002", Quantity: 4, Status: domain.ReservationStatusReserved},
	}
	reservationRepo.On("GetByOrderID", ctx, "ORD-1001").Return(existing, nil)

	reservations, err := svc.Reserve(ctx, "ORD-1001", []domain.ReserveItem{
		{ProductID: "PROD-001", Quantity: 3},
		{ProductID: "PROD-002", Quantity: 4},
	})

	// A retried reserve returns the existing set without touching any counter.
	require.NoError(t, err)
	assert.Equal(t, existing, reservations)
	require.NoError(t, pool.ExpectationsWereMet())
	reservationRepo.AssertExpectations(t)
}

func TestReserve_LostInsertRaceReturnsWinnersSet(t *testing.T) {
	reservationRepo := new(mockReservationRepository)
	svc, pool := newTestService(t, reservationRepo)
	ctx := context.Background()

	winners := []domain.Reservation{
		{ID: "res-9", OrderID: "ORD-1001", ProductID: "PROD-001", Quantity: 3, Status: domain.ReservationStatusReserved},
	}

	// The pre-check sees nothing, but by insert time a concurrent reserve for
	// the same order has committed; the unique (order_id, product_id)
	// constraint rejects this copy.
	reservationRepo.On("GetByOrderID", ctx, "ORD-1001").Return([]domain.Reservation{}, nil).Once()
	reservationRepo.On("GetByOrderID", ctx, "ORD-1001").Return(winners, nil).Once()

	pool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	pool.ExpectQuery("SELECT available_quantity").WithArgs("PROD-001").
		WillReturnRows(pgxmock.NewRows([]string{"available_quantity"}).AddRow(100))
	pool.ExpectExec("UPDATE inventory").WithArgs(3, "PROD-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec("INSERT INTO reservations").
		WithArgs(pgxmock.AnyArg(), "ORD-1001", "PROD-001", 3, domain.ReservationStatusReserved, pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_reservations_order_product"})
	pool.ExpectRollback()

	reservations, err := svc.Reserve(ctx, "ORD-1001", []domain.ReserveItem{{ProductID: "PROD-001", Quantity: 3}})

	require.NoError(t, err)
	assert.Equal(t, winners, reservations)
	require.NoError(t, pool.ExpectationsWereMet())
	reservationRepo.AssertExpectations(t)
}

func TestReserve_InsufficientStockLeavesCountersUntouched(t *testing.T) {
	reservationRepo := new(mockReservationRepository)
	svc, pool := newTestService(t, reservationRepo)
	ctx := context.Background()

	reservationRepo.On("GetByOrderID", ctx, "ORD-2002").Return([]domain.Reservation{}, nil)

	pool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	pool.ExpectQuery("SELECT available_quantity").WithArgs("PROD-001").
		WillReturnRows(pgxmock.NewRows([]string{"available_quantity"}).AddRow(100))
	pool.ExpectQuery("SELECT available_quantity").WithArgs("PROD-002").
		WillReturnRows(pgxmock.NewRows([]string{"available_quantity"}).AddRow(50))
	// Validation fails on the second item; no UPDATE or INSERT ever runs.
	pool.ExpectRollback()

	reservations, err := svc.Reserve(ctx, "ORD-2002", []domain.ReserveItem{
		{ProductID: "PROD-001", Quantity: 3},
		{ProductID: "PROD-002", Quantity: 999},
	})

	assert.Nil(t, reservations)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
	assert.False(t, apperrors.IsRetryable(err))

	require.NoError(t, pool.ExpectationsWereMet())
	reservationRepo.AssertExpectations(t)
}

func TestReserve_UnknownProduct(t *testing.T) {
	reservationRepo := new(mockReservationRepository)
	svc, pool := newTestService(t, reservationRepo)
	ctx := context.Background()

	reservationRepo.On("GetByOrderID", ctx, "ORD-3003").Return([]domain.Reservation{}, nil)

	pool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	pool.ExpectQuery("SELECT available_quantity").WithArgs("PROD-404").
		WillReturnError(pgx.ErrNoRows)
	pool.ExpectRollback()

	_, err := svc.Reserve(ctx, "ORD-3003", []domain.ReserveItem{{ProductID: "PROD-404", Quantity: 1}})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestReserve_InvalidInput(t *testing.T) {
	reservationRepo := new(mockReservationRepository)
	svc, _ := newTestService(t, reservationRepo)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, "", []domain.ReserveItem{{ProductID: "PROD-001", Quantity: 1}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.Reserve(ctx, "ORD-1", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// --- Cancel ---

func TestCancel_RestoresCounters(t *testing.T) {
	reservationRepo := new(mockReservationRepository)
	svc, pool := newTestService(t, reservationRepo)
	ctx := context.Background()

	reservationRepo.On("GetByOrderID", ctx, "ORD-1001").Return([]domain.Reservation{
		{ID: "res-1", OrderID: "ORD-1001", ProductID: "PROD-001", Quantity: 3, Status: domain.ReservationStatusReserved},
		{ID: "res-2", OrderID: "ORD-1001", ProductID: "PROD-002", Quantity: 4, Status: domain.ReservationStatusReserved},
	}, nil)

	pool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	pool.ExpectExec("UPDATE inventory").WithArgs(3, "PROD-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec("UPDATE reservations").WithArgs(domain.ReservationStatusCancelled, "res-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec("UPDATE inventory").WithArgs(4, "PROD-002").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec("UPDATE reservations").WithArgs(domain.ReservationStatusCancelled, "res-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectCommit()

	err := svc.Cancel(ctx, "ORD-1001")

	require.NoError(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
	reservationRepo.AssertExpectations(t)
}

func TestCancel_NoReservationsIsIdempotentSuccess(t *testing.T) {
	reservationRepo := new(mockReservationRepository)
	svc, pool := newTestService(t, reservationRepo)
	ctx := context.Background()

	reservationRepo.On("GetByOrderID", ctx, "ORD-9999").Return([]domain.Reservation{}, nil)

	err := svc.Cancel(ctx, "ORD-9999")

	require.NoError(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
	reservationRepo.AssertExpectations(t)
}

func TestCancel_SkipsConfirmedAndCancelled(t *testing.T) {
	reservationRepo := new(mockReservationRepository)
	svc, pool := newTestService(t, reservationRepo)
	ctx := context.Background()

	reservationRepo.On("GetByOrderID", ctx, "ORD-1001").Return([]domain.Reservation{
		{ID: "res-1", OrderID: "ORD-1001", ProductID: "PROD-001", Quantity: 3, Status: domain.ReservationStatusConfirmed},
		{ID: "res-2", OrderID: "ORD-1001", ProductID: "PROD-002", Quantity: 4, Status: domain.ReservationStatusCancelled},
		{ID: "res-3", OrderID: "ORD-1001", ProductID: "PROD-003", Quantity: 1, Status: domain.ReservationStatusReserved},
	}, nil)

	pool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	// Only the still-reserved line is touched.
	pool.ExpectExec("UPDATE inventory").WithArgs(1, "PROD-003").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec("UPDATE reservations").WithArgs(domain.ReservationStatusCancelled, "res-3").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectCommit()

	err := svc.Cancel(ctx, "ORD-1001")

	require.NoError(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
}

// --- Confirm ---

func TestConfirm_DeductsReservedOnly(t *testing.T) {
	reservationRepo := new(mockReservationRepository)
	svc, pool := newTestService(t, reservationRepo)
	ctx := context.Background()

	reservationRepo.On("GetByOrderID", ctx, "ORD-1001").Return([]domain.Reservation{
		{ID: "res-1", OrderID: "ORD-1001", ProductID: "PROD-001", Quantity: 3, Status: domain.ReservationStatusReserved},
	}, nil)

	pool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	pool.ExpectExec("UPDATE inventory").WithArgs(3, "PROD-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec("UPDATE reservations").WithArgs(domain.ReservationStatusConfirmed, "res-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectCommit()

	err := svc.Confirm(ctx, "ORD-1001")

	require.NoError(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
	reservationRepo.AssertExpectations(t)
}

func TestConfirm_NoReservationsIsAnError(t *testing.T) {
	reservationRepo := new(mockReservationRepository)
	svc, pool := newTestService(t, reservationRepo)
	ctx := context.Background()

	reservationRepo.On("GetByOrderID", ctx, "ORD-9999").Return([]domain.Reservation{}, nil)

	err := svc.Confirm(ctx, "ORD-9999")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestConfirm_AlreadyConfirmedIsIdempotent(t *testing.T) {
	reservationRepo := new(mockReservationRepository)
	svc, pool := newTestService(t, reservationRepo)
	ctx := context.Background()

	reservationRepo.On("GetByOrderID", ctx, "ORD-1001").Return([]domain.Reservation{
		{ID: "res-1", OrderID: "ORD-1001", ProductID: "PROD-001", Quantity: 3, Status: domain.ReservationStatusConfirmed},
	}, nil)

	pool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	pool.ExpectCommit()

	err := svc.Confirm(ctx, "ORD-1001")

	require.NoError(t, err)
	require.NoError(t, pool.ExpectationsWereMet())
}

// --- Stock admin ---

func TestSeedStock_Validation(t *testing.T) {
	svc, _ := newTestService(t, new(mockReservationRepository))
	ctx := context.Background()

	_, err := svc.SeedStock(ctx, "", 10)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.SeedStock(ctx, "PROD-001", -5)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// --- Domain ---

func TestReservation_IsReserved(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		expected bool
	}{
		{name: "reserved", status: domain.ReservationStatusReserved, expected: true},
		{name: "confirmed", status: domain.ReservationStatusConfirmed, expected: false},
		{name: "cancelled", status: domain.ReservationStatusCancelled, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &domain.Reservation{Status: tt.status}
			assert.Equal(t, tt.expected, r.IsReserved())
		})
	}
}

func TestIsValidReservationStatus(t *testing.T) {
	assert.True(t, domain.IsValidReservationStatus("RESERVED"))
	assert.True(t, domain.IsValidReservationStatus("CONFIRMED"))
	assert.True(t, domain.IsValidReservationStatus("CANCELLED"))
	assert.False(t, domain.IsValidReservationStatus("reserved"))
	assert.False(t, domain.IsValidReservationStatus(""))
}
