package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onlineshop/orderflow/pkg/httputil"
	"github.com/onlineshop/orderflow/pkg/validator"
	"github.com/onlineshop/orderflow/services/inventory/internal/domain"
	"github.com/onlineshop/orderflow/services/inventory/internal/service"
)

// InventoryHandler handles HTTP requests for inventory endpoints.
type InventoryHandler struct {
	service *service.InventoryService
	logger  *slog.Logger
}

// NewInventoryHandler creates a new inventory HTTP handler.
func NewInventoryHandler(svc *service.InventoryService, logger *slog.Logger) *InventoryHandler {
	return &InventoryHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// ReserveRequest is the JSON request body for reserving stock for an order.
type ReserveRequest struct {
	OrderID string               `json:"order_id" validate:"required"`
	Items   []ReserveItemRequest `json:"items" validate:"required,min=1,dive"`
}

// ReserveItemRequest represents a single line item in a reserve request.
type ReserveItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

// OrderKeyedRequest is the JSON request body for release and confirm, which
// operate on all reservations of an order.
type OrderKeyedRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

// SeedStockRequest is the JSON request body for seeding product stock.
type SeedStockRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
}

// ReserveResponse is the JSON payload returned by a successful reserve call.
type ReserveResponse struct {
	Success      bool                 `json:"success"`
	OrderID      string               `json:"order_id"`
	Reservations []domain.Reservation `json:"reservations"`
	Message      string               `json:"message"`
}

// OperationResponse is the JSON payload returned by release and confirm.
type OperationResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id"`
	Message string `json:"message"`
}

// --- Handlers ---

// Reserve handles POST /api/v1/inventory/reserve
func (h *InventoryHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	items := make([]domain.ReserveItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.ReserveItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	reservations, err := h.service.Reserve(r.Context(), req.OrderID, items)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: ReserveResponse{
		Success:      true,
		OrderID:      req.OrderID,
		Reservations: reservations,
		Message:      "inventory reserved successfully",
	}})
}

// Release handles POST /api/v1/inventory/release
func (h *InventoryHandler) Release(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeOrderKeyed(w, r)
	if !ok {
		return
	}

	if err := h.service.Cancel(r.Context(), req.OrderID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: OperationResponse{
		Success: true,
		OrderID: req.OrderID,
		Message: "reservation cancelled",
	}})
}

// Confirm handles POST /api/v1/inventory/confirm
func (h *InventoryHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeOrderKeyed(w, r)
	if !ok {
		return
	}

	if err := h.service.Confirm(r.Context(), req.OrderID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: OperationResponse{
		Success: true,
		OrderID: req.OrderID,
		Message: "reservation confirmed",
	}})
}

// GetReservations handles GET /api/v1/inventory/reservations/{orderId}
func (h *InventoryHandler) GetReservations(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	reservations, err := h.service.GetReservations(r.Context(), orderID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: reservations})
}

// SeedStock handles PUT /api/v1/inventory/stock
func (h *InventoryHandler) SeedStock(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req SeedStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	inv, err := h.service.SeedStock(r.Context(), req.ProductID, req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: inv})
}

// GetStock handles GET /api/v1/inventory/stock/{productId}
func (h *InventoryHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")

	inv, err := h.service.GetStock(r.Context(), productID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: inv})
}

// ListStock handles GET /api/v1/inventory/stock
func (h *InventoryHandler) ListStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListStock(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: items})
}

func (h *InventoryHandler) decodeOrderKeyed(w http.ResponseWriter, r *http.Request) (OrderKeyedRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req OrderKeyedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return req, false
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return req, false
	}

	return req, true
}
