package domain

import (
	"time"
)

// Inventory holds the per-product stock counters. Reserve moves units from
// available to reserved, cancel moves them back, confirm removes them from
// reserved without touching available (permanent deduction). Both counters
// stay non-negative and their sum only changes through confirm.
type Inventory struct {
	ProductID         string    `json:"product_id"`
	AvailableQuantity int       `json:"available_quantity"`
	ReservedQuantity  int       `json:"reserved_quantity"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Reservation status constants.
const (
	ReservationStatusReserved  = "RESERVED"
	ReservationStatusConfirmed = "CONFIRMED"
	ReservationStatusCancelled = "CANCELLED"
)

// Reservation is a hold on inventory for a single line item of an order.
// All reservations of one order share the order ID, which is the idempotency
// key for the reserve/cancel/confirm operations.
type Reservation struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsReserved returns true if the reservation is still an active hold.
func (r *Reservation) IsReserved() bool {
	return r.Status == ReservationStatusReserved
}

// ReserveItem is a single line item of a reservation request.
type ReserveItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// ValidReservationStatuses returns the set of valid reservation statuses.
func ValidReservationStatuses() []string {
	return []string{ReservationStatusReserved, ReservationStatusConfirmed, ReservationStatusCancelled}
}

// IsValidReservationStatus checks whether the given status is valid.
func IsValidReservationStatus(status string) bool {
	for _, s := range ValidReservationStatuses() {
		if s == status {
			return true
		}
	}
	return false
}
