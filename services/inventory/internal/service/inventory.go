package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/onlineshop/orderflow/pkg/database"
	apperrors "github.com/onlineshop/orderflow/pkg/errors"
	"github.com/onlineshop/orderflow/services/inventory/internal/domain"
	"github.com/onlineshop/orderflow/services/inventory/internal/event"
	"github.com/onlineshop/orderflow/services/inventory/internal/repository"
)

// Postgres error code for a unique constraint violation.
const uniqueViolationCode = "23505"

// InventoryService implements the idempotent reservation protocol. Reserve,
// Cancel, and Confirm are all keyed by order ID so that retried calls from
// the saga orchestrator have exactly-once effect on the stock counters.
type InventoryService struct {
	inventoryRepo   repository.InventoryRepository
	reservationRepo repository.ReservationRepository
	pool            database.DBTX
	producer        *event.Producer
	logger          *slog.Logger
}

// NewInventoryService creates a new inventory service.
func NewInventoryService(
	inventoryRepo repository.InventoryRepository,
	reservationRepo repository.ReservationRepository,
	pool database.DBTX,
	producer *event.Producer,
	logger *slog.Logger,
) *InventoryService {
	return &InventoryService{
		inventoryRepo:   inventoryRepo,
		reservationRepo: reservationRepo,
		pool:            pool,
		producer:        producer,
		logger:          logger,
	}
}

// Reserve places a hold on stock for every line item of an order. The
// operation is idempotent on order ID: if reservations already exist they are
// returned as success without touching any counter. Reservation is
// all-or-nothing across items: every product is validated under a row lock
// before any counter is mutated, so a shortage on the last item leaves the
// first item's counters unchanged.
func (s *InventoryService) Reserve(ctx context.Context, orderID string, items []domain.ReserveItem) ([]domain.Reservation, error) {
	if orderID == "" {
		return nil, apperrors.InvalidInput("order_id is required")
	}
	if len(items) == 0 {
		return nil, apperrors.InvalidInput("items list cannot be empty")
	}

	// Idempotency check: a retried reserve returns the existing set.
	existing, err := s.reservationRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("check existing reservations: %w", err)
	}
	if len(existing) > 0 {
		s.logger.InfoContext(ctx, "reservation already exists, returning existing set",
			slog.String("order_id", orderID),
			slog.Int("reservation_count", len(existing)),
		)
		return existing, nil
	}

	// Lock rows in a stable product order so two concurrent multi-item
	// reservations cannot deadlock each other.
	sorted := make([]domain.ReserveItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin reservation transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Phase 1: validate every item under row locks before mutating anything.
	lockQuery := `
		SELECT available_quantity
		FROM inventory
		WHERE product_id = $1
		FOR UPDATE`

	for _, item := range sorted {
		var available int
		if err := tx.QueryRow(ctx, lockQuery, item.ProductID).Scan(&available); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NotFound("inventory", item.ProductID)
			}
			return nil, fmt.Errorf("lock inventory for product %s: %w", item.ProductID, err)
		}

		if available < item.Quantity {
			s.logger.WarnContext(ctx, "insufficient stock",
				slog.String("order_id", orderID),
				slog.String("product_id", item.ProductID),
				slog.Int("requested", item.Quantity),
				slog.Int("available", available),
			)
			return nil, apperrors.InsufficientStock(fmt.Sprintf(
				"insufficient stock for product %s: requested %d, available %d",
				item.ProductID, item.Quantity, available,
			))
		}
	}

	// Phase 2: every item validated, apply the counter transfer and record
	// the reservations.
	updateQuery := `
		UPDATE inventory
		SET available_quantity = available_quantity - $1,
		    reserved_quantity = reserved_quantity + $1,
		    updated_at = NOW()
		WHERE product_id = $2`

	insertQuery := `
		INSERT INTO reservations (id, order_id, product_id, quantity, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`

	now := time.Now().UTC()
	reservations := make([]domain.Reservation, 0, len(sorted))

	for _, item := range sorted {
		if _, err := tx.Exec(ctx, updateQuery, item.Quantity, item.ProductID); err != nil {
			return nil, fmt.Errorf("transfer stock to reserved for product %s: %w", item.ProductID, err)
		}

		res := domain.Reservation{
			ID:        uuid.New().String(),
			OrderID:   orderID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Status:    domain.ReservationStatusReserved,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if _, err := tx.Exec(ctx, insertQuery, res.ID, res.OrderID, res.ProductID, res.Quantity, res.Status, now); err != nil {
			// A concurrent reserve for the same order won the race: the
			// (order_id, product_id) uniqueness constraint rejects this copy.
			// Roll back our counter changes and return the winner's set.
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
				_ = tx.Rollback(ctx)
				s.logger.InfoContext(ctx, "concurrent reservation detected, returning existing set",
					slog.String("order_id", orderID),
					slog.String("product_id", item.ProductID),
				)
				return s.reservationRepo.GetByOrderID(ctx, orderID)
			}
			return nil, fmt.Errorf("create reservation for product %s: %w", item.ProductID, err)
		}

		reservations = append(reservations, res)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reservation transaction: %w", err)
	}

	if err := s.producer.PublishInventoryReserved(ctx, orderID, reservations); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish inventory.reserved event",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "inventory reserved",
		slog.String("order_id", orderID),
		slog.Int("item_count", len(reservations)),
	)

	return reservations, nil
}

// Cancel releases every active hold for an order, restoring the available
// counters. An order with no reservations is an idempotent success, and
// reservations already cancelled are skipped. Confirmed reservations are
// skipped with a warning: confirmed stock is permanently committed and is not
// revocable through this path.
func (s *InventoryService) Cancel(ctx context.Context, orderID string) error {
	reservations, err := s.reservationRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get reservations for cancel: %w", err)
	}

	if len(reservations) == 0 {
		s.logger.InfoContext(ctx, "no reservations to cancel, treating as idempotent success",
			slog.String("order_id", orderID),
		)
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin cancel transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	restoreQuery := `
		UPDATE inventory
		SET available_quantity = available_quantity + $1,
		    reserved_quantity = reserved_quantity - $1,
		    updated_at = NOW()
		WHERE product_id = $2`

	statusQuery := `
		UPDATE reservations
		SET status = $1, updated_at = NOW()
		WHERE id = $2`

	cancelled := 0
	for i := range reservations {
		res := &reservations[i]

		switch res.Status {
		case domain.ReservationStatusCancelled:
			continue
		case domain.ReservationStatusConfirmed:
			s.logger.WarnContext(ctx, "cannot cancel confirmed reservation",
				slog.String("order_id", orderID),
				slog.String("reservation_id", res.ID),
				slog.String("product_id", res.ProductID),
			)
			continue
		}

		if _, err := tx.Exec(ctx, restoreQuery, res.Quantity, res.ProductID); err != nil {
			return fmt.Errorf("restore stock for product %s: %w", res.ProductID, err)
		}

		if _, err := tx.Exec(ctx, statusQuery, domain.ReservationStatusCancelled, res.ID); err != nil {
			return fmt.Errorf("mark reservation %s cancelled: %w", res.ID, err)
		}

		cancelled++
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cancel transaction: %w", err)
	}

	if cancelled > 0 {
		if err := s.producer.PublishInventoryReleased(ctx, orderID, cancelled); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish inventory.released event",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "reservation cancelled",
		slog.String("order_id", orderID),
		slog.Int("cancelled_count", cancelled),
	)

	return nil
}

// Confirm turns every active hold for an order into a permanent deduction:
// the reserved counter drops and the available counter stays, so the units
// leave saleable stock for good. Unlike Cancel, an order with no reservations
// is an error here since it signals a bug in the caller's flow. Already
// confirmed reservations are skipped, making retried confirms safe.
func (s *InventoryService) Confirm(ctx context.Context, orderID string) error {
	reservations, err := s.reservationRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get reservations for confirm: %w", err)
	}

	if len(reservations) == 0 {
		return apperrors.NotFound("reservation", orderID)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin confirm transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	deductQuery := `
		UPDATE inventory
		SET reserved_quantity = reserved_quantity - $1,
		    updated_at = NOW()
		WHERE product_id = $2`

	statusQuery := `
		UPDATE reservations
		SET status = $1, updated_at = NOW()
		WHERE id = $2`

	confirmed := 0
	for i := range reservations {
		res := &reservations[i]

		switch res.Status {
		case domain.ReservationStatusConfirmed:
			continue
		case domain.ReservationStatusCancelled:
			s.logger.WarnContext(ctx, "skipping cancelled reservation during confirm",
				slog.String("order_id", orderID),
				slog.String("reservation_id", res.ID),
				slog.String("product_id", res.ProductID),
			)
			continue
		}

		if _, err := tx.Exec(ctx, deductQuery, res.Quantity, res.ProductID); err != nil {
			return fmt.Errorf("deduct reserved stock for product %s: %w", res.ProductID, err)
		}

		if _, err := tx.Exec(ctx, statusQuery, domain.ReservationStatusConfirmed, res.ID); err != nil {
			return fmt.Errorf("mark reservation %s confirmed: %w", res.ID, err)
		}

		confirmed++
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit confirm transaction: %w", err)
	}

	if confirmed > 0 {
		if err := s.producer.PublishInventoryConfirmed(ctx, orderID, confirmed); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish inventory.confirmed event",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "reservation confirmed",
		slog.String("order_id", orderID),
		slog.Int("confirmed_count", confirmed),
	)

	return nil
}

// GetReservations returns the reservations recorded for an order.
func (s *InventoryService) GetReservations(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	reservations, err := s.reservationRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get reservations: %w", err)
	}
	return reservations, nil
}

// SeedStock creates or replaces the available counter for a product.
func (s *InventoryService) SeedStock(ctx context.Context, productID string, quantity int) (*domain.Inventory, error) {
	if productID == "" {
		return nil, apperrors.InvalidInput("product_id is required")
	}
	if quantity < 0 {
		return nil, apperrors.InvalidInput("quantity must be non-negative")
	}

	inv, err := s.inventoryRepo.UpsertStock(ctx, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("seed stock: %w", err)
	}

	s.logger.InfoContext(ctx, "stock seeded",
		slog.String("product_id", inv.ProductID),
		slog.Int("available_quantity", inv.AvailableQuantity),
	)

	return inv, nil
}

// GetStock retrieves the counters for a product.
func (s *InventoryService) GetStock(ctx context.Context, productID string) (*domain.Inventory, error) {
	inv, err := s.inventoryRepo.GetByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get stock: %w", err)
	}
	return inv, nil
}

// ListStock returns all inventory counters.
func (s *InventoryService) ListStock(ctx context.Context) ([]domain.Inventory, error) {
	items, err := s.inventoryRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	return items, nil
}
