package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/onlineshop/orderflow/pkg/errors"
	"github.com/onlineshop/orderflow/pkg/httputil"
	pkgkafka "github.com/onlineshop/orderflow/pkg/kafka"
	"github.com/onlineshop/orderflow/pkg/pagination"
	"github.com/onlineshop/orderflow/services/order/internal/domain"
	"github.com/onlineshop/orderflow/services/order/internal/event"
	"github.com/onlineshop/orderflow/services/order/internal/gateway"
	"github.com/onlineshop/orderflow/services/order/internal/saga"
	"github.com/onlineshop/orderflow/services/order/internal/service"
)

// --- Mock OrderRepository ---

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockOrderRepository) GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	args := m.Called(ctx, orderNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) ListByCustomer(ctx context.Context, customerID string, params pagination.Params) ([]domain.Order, int, error) {
	args := m.Called(ctx, customerID, params)
	return args.Get(0).([]domain.Order), args.Int(1), args.Error(2)
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, orderNumber string, status string) error {
	args := m.Called(ctx, orderNumber, status)
	return args.Error(0)
}

// --- Mock SagaStateRepository ---

type mockSagaStateRepository struct {
	mock.Mock
}

func (m *mockSagaStateRepository) Create(ctx context.Context, state *domain.SagaState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *mockSagaStateRepository) GetByOrderNumber(ctx context.Context, orderNumber string) (*domain.SagaState, error) {
	args := m.Called(ctx, orderNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SagaState), args.Error(1)
}

func (m *mockSagaStateRepository) CommitInventory(ctx context.Context, orderNumber, transactionID, nextStep string) error {
	args := m.Called(ctx, orderNumber, transactionID, nextStep)
	return args.Error(0)
}

func (m *mockSagaStateRepository) CommitPayment(ctx context.Context, orderNumber, transactionID, nextStep string) error {
	args := m.Called(ctx, orderNumber, transactionID, nextStep)
	return args.Error(0)
}

func (m *mockSagaStateRepository) CommitShipping(ctx context.Context, orderNumber, trackingNumber, nextStep string) error {
	args := m.Called(ctx, orderNumber, trackingNumber, nextStep)
	return args.Error(0)
}

func (m *mockSagaStateRepository) ClearInventory(ctx context.Context, orderNumber string) error {
	args := m.Called(ctx, orderNumber)
	return args.Error(0)
}

func (m *mockSagaStateRepository) ClearPayment(ctx context.Context, orderNumber string) error {
	args := m.Called(ctx, orderNumber)
	return args.Error(0)
}

func (m *mockSagaStateRepository) ClearShipping(ctx context.Context, orderNumber string) error {
	args := m.Called(ctx, orderNumber)
	return args.Error(0)
}

func (m *mockSagaStateRepository) SetRetryable(ctx context.Context, orderNumber string, retryable bool) error {
	args := m.Called(ctx, orderNumber, retryable)
	return args.Error(0)
}

func (m *mockSagaStateRepository) UpdateStatus(ctx context.Context, orderNumber string, status string) error {
	args := m.Called(ctx, orderNumber, status)
	return args.Error(0)
}

func (m *mockSagaStateRepository) CompleteOrderAndSaga(ctx context.Context, orderNumber string) error {
	args := m.Called(ctx, orderNumber)
	return args.Error(0)
}

func (m *mockSagaStateRepository) FailOrderAndSaga(ctx context.Context, orderNumber, errMessage, errTrace string) error {
	args := m.Called(ctx, orderNumber, errMessage, errTrace)
	return args.Error(0)
}

func (m *mockSagaStateRepository) PrepareForRetry(ctx context.Context, orderNumber string, retryCount int, lastRetry, nextRetry time.Time) error {
	args := m.Called(ctx, orderNumber, retryCount, lastRetry, nextRetry)
	return args.Error(0)
}

func (m *mockSagaStateRepository) MarkRetrying(ctx context.Context, id string, fromStatus string) (bool, error) {
	args := m.Called(ctx, id, fromStatus)
	return args.Bool(0), args.Error(1)
}

func (m *mockSagaStateRepository) FindReadyForRetry(ctx context.Context, now time.Time) ([]domain.SagaState, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]domain.SagaState), args.Error(1)
}

func (m *mockSagaStateRepository) FindStuck(ctx context.Context, cutoff time.Time) ([]domain.SagaState, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]domain.SagaState), args.Error(1)
}

// --- Test Helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testOrderHandler(orders *mockOrderRepository, sagas *mockSagaStateRepository) *OrderHandler {
	logger := testLogger()
	kafkaProducer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig([]string{"localhost:9092"}), logger)
	producer := event.NewProducer(kafkaProducer, logger)
	orchestrator := saga.NewOrchestrator(saga.DefaultConfig(), orders, sagas, gateway.NewStubGateway(), producer, logger)
	svc := service.NewOrderService(orders, sagas, orchestrator, producer, logger)
	return NewOrderHandler(svc, logger)
}

// setupOrderRouter creates a chi router matching the production route layout.
func setupOrderRouter(handler *OrderHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Post("/", handler.Create)
		r.Get("/", handler.List)
		r.Get("/{orderNumber}", handler.Get)
		r.Get("/{orderNumber}/saga", handler.GetSaga)
		r.Post("/{orderNumber}/cancel", handler.Cancel)
		r.Post("/{orderNumber}/retry", handler.Retry)
	})
	return r
}

// decodeResponse reads the response body into the httputil.Response struct.
func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	return resp
}

// --- Create ---

func TestCreateOrderEndpoint(t *testing.T) {
	orders := new(mockOrderRepository)
	sagas := new(mockSagaStateRepository)
	router := setupOrderRouter(testOrderHandler(orders, sagas))

	orders.On("Create", mock.Anything, mock.AnythingOfType("*domain.Order")).Return(nil)
	sagas.On("Create", mock.Anything, mock.AnythingOfType("*domain.SagaState")).Return(nil)

	body := `{
		"customer_id": "CUST-42",
		"shipping_address": "1 Main St",
		"items": [{"product_id": "PROD-001", "quantity": 2, "unit_price": 1500}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Data)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "CUST-42", data["customer_id"])
	assert.Equal(t, domain.OrderStatusPending, data["status"])
	assert.Equal(t, float64(3000), data["total_amount"])
	orders.AssertExpectations(t)
}

func TestCreateOrderEndpoint_ValidationError(t *testing.T) {
	orders := new(mockOrderRepository)
	router := setupOrderRouter(testOrderHandler(orders, new(mockSagaStateRepository)))

	body := `{"items": [{"product_id": "PROD-001", "quantity": 2, "unit_price": 1500}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateOrderEndpoint_RejectsNonJSON(t *testing.T) {
	router := setupOrderRouter(testOrderHandler(new(mockOrderRepository), new(mockSagaStateRepository)))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/", bytes.NewBufferString("customer_id=CUST-42"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

// --- Get ---

func TestGetOrderEndpoint(t *testing.T) {
	orders := new(mockOrderRepository)
	router := setupOrderRouter(testOrderHandler(orders, new(mockSagaStateRepository)))

	orders.On("GetByNumber", mock.Anything, "ORD-1").Return(&domain.Order{
		OrderNumber: "ORD-1",
		CustomerID:  "CUST-42",
		Status:      domain.OrderStatusProcessing,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ORD-1", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "ORD-1", data["order_number"])
}

func TestGetOrderEndpoint_NotFound(t *testing.T) {
	orders := new(mockOrderRepository)
	router := setupOrderRouter(testOrderHandler(orders, new(mockSagaStateRepository)))

	orders.On("GetByNumber", mock.Anything, "ORD-404").Return(nil, apperrors.NotFound("order", "ORD-404"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ORD-404", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

// --- List ---

func TestListOrdersEndpoint_RequiresCustomerID(t *testing.T) {
	router := setupOrderRouter(testOrderHandler(new(mockOrderRepository), new(mockSagaStateRepository)))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOrdersEndpoint(t *testing.T) {
	orders := new(mockOrderRepository)
	router := setupOrderRouter(testOrderHandler(orders, new(mockSagaStateRepository)))

	orders.On("ListByCustomer", mock.Anything, "CUST-42", pagination.Params{Page: 1, PerPage: 20, Offset: 0}).
		Return([]domain.Order{
			{OrderNumber: "ORD-1", CustomerID: "CUST-42", Status: domain.OrderStatusCompleted},
		}, 1, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/?customer_id=CUST-42", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(1), data["total_count"])
	assert.Equal(t, float64(1), data["total_pages"])
	assert.Equal(t, false, data["has_next"])
}

func TestListOrdersEndpoint_QueryParamsDriveThePage(t *testing.T) {
	orders := new(mockOrderRepository)
	router := setupOrderRouter(testOrderHandler(orders, new(mockSagaStateRepository)))

	orders.On("ListByCustomer", mock.Anything, "CUST-42", pagination.Params{Page: 2, PerPage: 5, Offset: 5}).
		Return([]domain.Order{
			{OrderNumber: "ORD-6", CustomerID: "CUST-42", Status: domain.OrderStatusProcessing},
		}, 11, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/?customer_id=CUST-42&page=2&per_page=5", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(11), data["total_count"])
	assert.Equal(t, float64(3), data["total_pages"])
	assert.Equal(t, true, data["has_next"])
	assert.Equal(t, true, data["has_prev"])
	orders.AssertExpectations(t)
}

// --- Saga status ---

func TestGetSagaEndpoint(t *testing.T) {
	sagas := new(mockSagaStateRepository)
	router := setupOrderRouter(testOrderHandler(new(mockOrderRepository), sagas))

	txn := "ORD-1"
	sagas.On("GetByOrderNumber", mock.Anything, "ORD-1").Return(&domain.SagaState{
		OrderNumber:            "ORD-1",
		Status:                 domain.SagaStatusInProgress,
		CurrentStep:            domain.StepPaymentProcessing,
		InventoryReserved:      true,
		InventoryTransactionID: &txn,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ORD-1/saga", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	assert.Equal(t, domain.SagaStatusInProgress, data["status"])
	assert.Equal(t, domain.StepPaymentProcessing, data["current_step"])
	assert.Equal(t, true, data["inventory_reserved"])
}

// --- Cancel ---

func TestCancelOrderEndpoint_Conflict(t *testing.T) {
	orders := new(mockOrderRepository)
	router := setupOrderRouter(testOrderHandler(orders, new(mockSagaStateRepository)))

	orders.On("GetByNumber", mock.Anything, "ORD-1").Return(&domain.Order{
		OrderNumber: "ORD-1",
		Status:      domain.OrderStatusCompleted,
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ORD-1/cancel", bytes.NewBufferString(`{"reason":"too late"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

// --- Retry ---

func TestRetryOrderEndpoint_Accepted(t *testing.T) {
	sagas := new(mockSagaStateRepository)
	router := setupOrderRouter(testOrderHandler(new(mockOrderRepository), sagas))

	sagas.On("GetByOrderNumber", mock.Anything, "ORD-1").Return(&domain.SagaState{
		OrderNumber: "ORD-1",
		Status:      domain.SagaStatusFailed,
		CurrentStep: domain.StepPaymentProcessing,
		RetryCount:  1,
		MaxRetries:  5,
		Retryable:   true,
	}, nil)
	sagas.On("PrepareForRetry", mock.Anything, "ORD-1", 2, mock.AnythingOfType("time.Time"), mock.AnythingOfType("time.Time")).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ORD-1/retry", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	sagas.AssertExpectations(t)
}

func TestRetryOrderEndpoint_IneligibleIsConflict(t *testing.T) {
	sagas := new(mockSagaStateRepository)
	router := setupOrderRouter(testOrderHandler(new(mockOrderRepository), sagas))

	sagas.On("GetByOrderNumber", mock.Anything, "ORD-1").Return(&domain.SagaState{
		OrderNumber: "ORD-1",
		Status:      domain.SagaStatusFailed,
		Retryable:   false,
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ORD-1/retry", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}
