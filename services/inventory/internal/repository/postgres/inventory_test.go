package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/onlineshop/orderflow/pkg/errors"
	"github.com/onlineshop/orderflow/services/inventory/internal/domain"
)

func newMockRepo(t *testing.T) (*InventoryRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewInventoryRepository(pool), pool
}

func TestGetByProduct_Found(t *testing.T) {
	repo, pool := newMockRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	pool.ExpectQuery("SELECT product_id, available_quantity, reserved_quantity, updated_at").
		WithArgs("PROD-001").
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "available_quantity", "reserved_quantity", "updated_at"}).
			AddRow("PROD-001", 97, 3, now))

	inv, err := repo.GetByProduct(ctx, "PROD-001")

	require.NoError(t, err)
	assert.Equal(t, "PROD-001", inv.ProductID)
	assert.Equal(t, 97, inv.AvailableQuantity)
	assert.Equal(t, 3, inv.ReservedQuantity)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestGetByProduct_NotFound(t *testing.T) {
	repo, pool := newMockRepo(t)
	ctx := context.Background()

	pool.ExpectQuery("SELECT product_id, available_quantity, reserved_quantity, updated_at").
		WithArgs("PROD-404").
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "available_quantity", "reserved_quantity", "updated_at"}))

	inv, err := repo.GetByProduct(ctx, "PROD-404")

	assert.Nil(t, inv)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestUpsertStock(t *testing.T) {
	repo, pool := newMockRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	pool.ExpectQuery("INSERT INTO inventory").
		WithArgs("PROD-001", 100).
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "available_quantity", "reserved_quantity", "updated_at"}).
			AddRow("PROD-001", 100, 0, now))

	inv, err := repo.UpsertStock(ctx, "PROD-001", 100)

	require.NoError(t, err)
	assert.Equal(t, 100, inv.AvailableQuantity)
	assert.Equal(t, 0, inv.ReservedQuantity)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestGetByOrderID(t *testing.T) {
	repo, pool := newMockRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	pool.ExpectQuery("SELECT id, order_id, product_id, quantity, status, created_at, updated_at").
		WithArgs("ORD-1001").
		WillReturnRows(pgxmock.NewRows([]string{"id", "order_id", "product_id", "quantity", "status", "created_at", "updated_at"}).
			AddRow("res-1", "ORD-1001", "PROD-001", 3, domain.ReservationStatusReserved, now, now).
			AddRow("res-2", "ORD-1001", "PROD-002", 4, domain.ReservationStatusReserved, now, now))

	reservations, err := repo.GetByOrderID(ctx, "ORD-1001")

	require.NoError(t, err)
	require.Len(t, reservations, 2)
	assert.Equal(t, "PROD-001", reservations[0].ProductID)
	assert.Equal(t, 4, reservations[1].Quantity)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestGetByOrderID_Empty(t *testing.T) {
	repo, pool := newMockRepo(t)
	ctx := context.Background()

	pool.ExpectQuery("SELECT id, order_id, product_id, quantity, status, created_at, updated_at").
		WithArgs("ORD-9999").
		WillReturnRows(pgxmock.NewRows([]string{"id", "order_id", "product_id", "quantity", "status", "created_at", "updated_at"}))

	reservations, err := repo.GetByOrderID(ctx, "ORD-9999")

	require.NoError(t, err)
	assert.Empty(t, reservations)
	require.NoError(t, pool.ExpectationsWereMet())
}
