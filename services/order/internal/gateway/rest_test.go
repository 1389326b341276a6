package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestGateway(inventoryURL, paymentURL, shippingURL string) *RESTGateway {
	return NewRESTGateway(RESTConfig{
		InventoryURL: inventoryURL,
		PaymentURL:   paymentURL,
		ShippingURL:  shippingURL,
		CallTimeout:  2 * time.Second,
	}, newTestLogger())
}

func TestReserveInventory_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/inventory/reserve", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		var req struct {
			OrderID string `json:"order_id"`
			Items   []struct {
				ProductID string `json:"product_id"`
				Quantity  int    `json:"quantity"`
			} `json:"items"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "ORD-1", req.OrderID)
		require.Len(t, req.Items, 1)
		assert.Equal(t, "PROD-001", req.Items[0].ProductID)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"success":true,"order_id":"ORD-1","message":"inventory reserved successfully"}}`))
	}))
	defer srv.Close()

	gw := newTestGateway(srv.URL, srv.URL, srv.URL)

	res, err := gw.ReserveInventory(context.Background(), ReserveInventoryRequest{
		OrderNumber: "ORD-1",
		Items:       []ReserveItem{{ProductID: "PROD-001", Quantity: 2}},
	})

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, "ORD-1", res.TransactionID)
}

func TestReserveInventory_InsufficientStockIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"INSUFFICIENT_STOCK","message":"insufficient stock for product PROD-001"}}`))
	}))
	defer srv.Close()

	gw := newTestGateway(srv.URL, srv.URL, srv.URL)

	res, err := gw.ReserveInventory(context.Background(), ReserveInventoryRequest{
		OrderNumber: "ORD-1",
		Items:       []ReserveItem{{ProductID: "PROD-001", Quantity: 999}},
	})

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.False(t, res.IsRetryable())
	assert.Equal(t, "insufficient stock for product PROD-001", res.Message)
}

func TestProcessPayment_RetryableFlagPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/payments/charge", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false,"transaction_id":"","message":"processor busy","retryable":true}`))
	}))
	defer srv.Close()

	gw := newTestGateway(srv.URL, srv.URL, srv.URL)

	res, err := gw.ProcessPayment(context.Background(), PaymentRequest{
		OrderNumber: "ORD-1",
		CustomerID:  "CUST-42",
		Amount:      3000,
		Currency:    "USD",
	})

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.True(t, res.IsRetryable())
	assert.Equal(t, "processor busy", res.Message)
}

func TestProcessPayment_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	gw := newTestGateway(srv.URL, srv.URL, srv.URL)

	res, err := gw.ProcessPayment(context.Background(), PaymentRequest{OrderNumber: "ORD-1"})

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.True(t, res.IsRetryable())
}

func TestGateway_UnreachableDownstreamIsRetryable(t *testing.T) {
	// A server that is already closed guarantees a connection error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	gw := newTestGateway(srv.URL, srv.URL, srv.URL)

	res, err := gw.ReleaseInventory(context.Background(), "ORD-1")

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.True(t, res.IsRetryable())
}

func TestArrangeShipping_ReturnsTrackingNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/shipments", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"tracking_number":"TRK-777","message":"shipment booked"}`))
	}))
	defer srv.Close()

	gw := newTestGateway(srv.URL, srv.URL, srv.URL)

	res, err := gw.ArrangeShipping(context.Background(), ShippingRequest{
		OrderNumber:     "ORD-1",
		CustomerID:      "CUST-42",
		ShippingAddress: "1 Main St",
	})

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, "TRK-777", res.TransactionID)
}

func TestCancelShipping_FailureReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/shipments/cancel", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false,"tracking_number":"TRK-777","message":"already in transit","retryable":false}`))
	}))
	defer srv.Close()

	gw := newTestGateway(srv.URL, srv.URL, srv.URL)

	res, err := gw.CancelShipping(context.Background(), "TRK-777")

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.False(t, res.IsRetryable())
	assert.Equal(t, "already in transit", res.Message)
}
