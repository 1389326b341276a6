package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onlineshop/orderflow/pkg/httputil"
	"github.com/onlineshop/orderflow/pkg/pagination"
	"github.com/onlineshop/orderflow/pkg/validator"
	"github.com/onlineshop/orderflow/services/order/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	service *service.OrderService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateOrderRequest is the JSON request body for creating an order.
type CreateOrderRequest struct {
	CustomerID      string             `json:"customer_id" validate:"required"`
	Items           []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	Currency        string             `json:"currency" validate:"omitempty,len=3"`
	ShippingAddress string             `json:"shipping_address" validate:"required"`
}

// OrderItemRequest represents a single line item in a create order request.
type OrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
	UnitPrice int64  `json:"unit_price" validate:"gte=0"`
}

// CancelOrderRequest is the JSON request body for cancelling an order. The
// reason is optional and recorded in the cancellation event.
type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// RetryResponse is the JSON payload returned when a retry is accepted.
type RetryResponse struct {
	OrderNumber string `json:"order_number"`
	Message     string `json:"message"`
}

// --- Handlers ---

// Create handles POST /api/v1/orders
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req CreateOrderRequest
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

	items := make([]service.CreateOrderItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.CreateOrderItemInput{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	order, err := h.service.CreateOrder(r.Context(), service.CreateOrderInput{
		CustomerID:      req.CustomerID,
		Items:           items,
		Currency:        req.Currency,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: order})
}

// Get handles GET /api/v1/orders/{orderNumber}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")

	order, err := h.service.GetOrder(r.Context(), orderNumber)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// List handles GET /api/v1/orders?customer_id=...&page=...&per_page=...
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "customer_id query parameter is required"},
		})
		return
	}

	result, err := h.service.ListOrders(r.Context(), customerID, pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// GetSaga handles GET /api/v1/orders/{orderNumber}/saga
func (h *OrderHandler) GetSaga(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")

	state, err := h.service.GetSagaStatus(r.Context(), orderNumber)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: state})
}

// Cancel handles POST /api/v1/orders/{orderNumber}/cancel
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req CancelOrderRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
			})
			return
		}
	}

	order, err := h.service.CancelOrder(r.Context(), orderNumber, req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// Retry handles POST /api/v1/orders/{orderNumber}/retry
func (h *OrderHandler) Retry(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")

	if err := h.service.RetryOrder(r.Context(), orderNumber); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: RetryResponse{
		OrderNumber: orderNumber,
		Message:     "retry scheduled",
	}})
}
