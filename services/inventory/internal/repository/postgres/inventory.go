package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/onlineshop/orderflow/pkg/database"
	apperrors "github.com/onlineshop/orderflow/pkg/errors"
	"github.com/onlineshop/orderflow/services/inventory/internal/domain"
)

// InventoryRepository implements both InventoryRepository and
// ReservationRepository interfaces using PostgreSQL.
type InventoryRepository struct {
	pool database.DBTX
}

// NewInventoryRepository creates a new PostgreSQL-backed inventory repository.
func NewInventoryRepository(pool database.DBTX) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// GetByProduct retrieves the counters for a product.
func (r *InventoryRepository) GetByProduct(ctx context.Context, productID string) (*domain.Inventory, error) {
	query := `
		SELECT product_id, available_quantity, reserved_quantity, updated_at
		FROM inventory
		WHERE product_id = $1`

	var inv domain.Inventory
	err := r.pool.QueryRow(ctx, query, productID).Scan(
		&inv.ProductID,
		&inv.AvailableQuantity,
		&inv.ReservedQuantity,
		&inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("inventory", productID)
		}
		return nil, fmt.Errorf("get inventory by product: %w", err)
	}

	return &inv, nil
}

// UpsertStock creates the counters for a product or replaces the available
// quantity if they already exist. Reserved units are never touched here.
func (r *InventoryRepository) UpsertStock(ctx context.Context, productID string, availableQuantity int) (*domain.Inventory, error) {
	query := `
		INSERT INTO inventory (product_id, available_quantity, reserved_quantity, updated_at)
		VALUES ($1, $2, 0, NOW())
		ON CONFLICT (product_id) DO UPDATE SET
			available_quantity = EXCLUDED.available_quantity,
			updated_at = NOW()
		RETURNING product_id, available_quantity, reserved_quantity, updated_at`

	var inv domain.Inventory
	err := r.pool.QueryRow(ctx, query, productID, availableQuantity).Scan(
		&inv.ProductID,
		&inv.AvailableQuantity,
		&inv.ReservedQuantity,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert stock: %w", err)
	}

	return &inv, nil
}

// List returns all inventory rows ordered by product ID.
func (r *InventoryRepository) List(ctx context.Context) ([]domain.Inventory, error) {
	query := `
		SELECT product_id, available_quantity, reserved_quantity, updated_at
		FROM inventory
		ORDER BY product_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	var result []domain.Inventory
	for rows.Next() {
		var inv domain.Inventory
		if err := rows.Scan(&inv.ProductID, &inv.AvailableQuantity, &inv.ReservedQuantity, &inv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory row: %w", err)
		}
		result = append(result, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory rows: %w", err)
	}

	return result, nil
}

// GetByOrderID retrieves all reservations recorded for an order.
func (r *InventoryRepository) GetByOrderID(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	query := `
		SELECT id, order_id, product_id, quantity, status, created_at, updated_at
		FROM reservations
		WHERE order_id = $1
		ORDER BY product_id`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("get reservations by order: %w", err)
	}
	defer rows.Close()

	var result []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ID, &res.OrderID, &res.ProductID, &res.Quantity, &res.Status, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan reservation row: %w", err)
		}
		result = append(result, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservation rows: %w", err)
	}

	return result, nil
}
