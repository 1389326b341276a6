package repository

import (
	"context"

	"github.com/onlineshop/orderflow/services/inventory/internal/domain"
)

// InventoryRepository defines the interface for stock counter persistence.
type InventoryRepository interface {
	// GetByProduct retrieves the counters for a product.
	GetByProduct(ctx context.Context, productID string) (*domain.Inventory, error)

	// UpsertStock creates the counters for a product or replaces the available
	// quantity if they already exist (admin seeding).
	UpsertStock(ctx context.Context, productID string, availableQuantity int) (*domain.Inventory, error)

	// List returns all inventory rows ordered by product ID.
	List(ctx context.Context) ([]domain.Inventory, error)
}

// ReservationRepository defines the interface for reservation persistence.
type ReservationRepository interface {
	// GetByOrderID retrieves all reservations recorded for an order. An order
	// with no reservations yields an empty slice, not an error.
	GetByOrderID(ctx context.Context, orderID string) ([]domain.Reservation, error)
}
