package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/onlineshop/orderflow/pkg/httpclient"
)

// RESTConfig holds the downstream endpoints and call timeout for the REST
// gateway.
type RESTConfig struct {
	InventoryURL string
	PaymentURL   string
	ShippingURL  string
	CallTimeout  time.Duration
}

// RESTGateway reaches the inventory, payment, and shipping services over
// HTTP. Each downstream gets its own circuit breaker so one failing
// collaborator cannot starve calls to the healthy ones.
type RESTGateway struct {
	cfg       RESTConfig
	inventory *httpclient.CircuitBreakerClient
	payment   *httpclient.CircuitBreakerClient
	shipping  *httpclient.CircuitBreakerClient
	logger    *slog.Logger
}

// NewRESTGateway creates a REST gateway with per-downstream circuit breakers.
func NewRESTGateway(cfg RESTConfig, logger *slog.Logger) *RESTGateway {
	clientCfg := httpclient.DefaultConfig()
	if cfg.CallTimeout > 0 {
		clientCfg.Timeout = cfg.CallTimeout
	}
	base := httpclient.New(clientCfg)

	return &RESTGateway{
		cfg:       cfg,
		inventory: httpclient.NewCircuitBreakerClient(base, httpclient.DefaultCircuitBreakerConfig("inventory-gateway"), logger),
		payment:   httpclient.NewCircuitBreakerClient(base, httpclient.DefaultCircuitBreakerConfig("payment-gateway"), logger),
		shipping:  httpclient.NewCircuitBreakerClient(base, httpclient.DefaultCircuitBreakerConfig("shipping-gateway"), logger),
		logger:    logger,
	}
}

// --- wire formats ---

// inventoryEnvelope matches the inventory service's response envelope.
type inventoryEnvelope struct {
	Data *struct {
		Success bool   `json:"success"`
		OrderID string `json:"order_id"`
		Message string `json:"message"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// paymentWire is the payment service's response body.
type paymentWire struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
	Message       string `json:"message"`
	Retryable     *bool  `json:"retryable"`
}

// shippingWire is the shipping service's response body.
type shippingWire struct {
	Success        bool   `json:"success"`
	TrackingNumber string `json:"tracking_number"`
	Message        string `json:"message"`
	Retryable      *bool  `json:"retryable"`
}

// --- inventory capabilities ---

// ReserveInventory reserves stock for the order. The inventory side is
// idempotent by order number, so the returned transaction id is the order
// number itself.
func (g *RESTGateway) ReserveInventory(ctx context.Context, req ReserveInventoryRequest) (*Result, error) {
	body := struct {
		OrderID string        `json:"order_id"`
		Items   []ReserveItem `json:"items"`
	}{OrderID: req.OrderNumber, Items: req.Items}

	return g.callInventory(ctx, g.cfg.InventoryURL+"/api/v1/inventory/reserve", body)
}

// ReleaseInventory releases all reservations held for the order.
func (g *RESTGateway) ReleaseInventory(ctx context.Context, orderNumber string) (*Result, error) {
	body := struct {
		OrderID string `json:"order_id"`
	}{OrderID: orderNumber}

	return g.callInventory(ctx, g.cfg.InventoryURL+"/api/v1/inventory/release", body)
}

// ConfirmInventory permanently deducts the reserved stock for the order.
func (g *RESTGateway) ConfirmInventory(ctx context.Context, orderNumber string) (*Result, error) {
	body := struct {
		OrderID string `json:"order_id"`
	}{OrderID: orderNumber}

	return g.callInventory(ctx, g.cfg.InventoryURL+"/api/v1/inventory/confirm", body)
}

func (g *RESTGateway) callInventory(ctx context.Context, url string, payload any) (*Result, error) {
	resp, transportResult, err := g.post(ctx, g.inventory, url, payload)
	if err != nil || transportResult != nil {
		return transportResult, err
	}
	defer resp.Body.Close()

	var envelope inventoryEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode inventory response: %w", err)
	}

	if resp.StatusCode >= 400 {
		message := "inventory call failed"
		if envelope.Error != nil {
			message = envelope.Error.Message
		}
		// 4xx outcomes are deterministic: retrying without a state change
		// (more stock, fixed request) cannot succeed.
		return &Result{Success: false, Message: message, Retryable: BoolPtr(false)}, nil
	}

	if envelope.Data == nil || !envelope.Data.Success {
		return &Result{Success: false, Message: "inventory reported failure", Retryable: BoolPtr(false)}, nil
	}

	return &Result{
		Success:       true,
		TransactionID: envelope.Data.OrderID,
		Message:       envelope.Data.Message,
	}, nil
}

// --- payment capabilities ---

// ProcessPayment charges the customer for the order total.
func (g *RESTGateway) ProcessPayment(ctx context.Context, req PaymentRequest) (*Result, error) {
	resp, transportResult, err := g.post(ctx, g.payment, g.cfg.PaymentURL+"/api/v1/payments/charge", req)
	if err != nil || transportResult != nil {
		return transportResult, err
	}
	defer resp.Body.Close()

	var wire paymentWire
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}

	return &Result{
		Success:       wire.Success,
		TransactionID: wire.TransactionID,
		Message:       wire.Message,
		Retryable:     wire.Retryable,
	}, nil
}

// RefundPayment refunds a previously processed payment by transaction id.
func (g *RESTGateway) RefundPayment(ctx context.Context, transactionID string) (*Result, error) {
	body := struct {
		TransactionID string `json:"transaction_id"`
	}{TransactionID: transactionID}

	resp, transportResult, err := g.post(ctx, g.payment, g.cfg.PaymentURL+"/api/v1/payments/refund", body)
	if err != nil || transportResult != nil {
		return transportResult, err
	}
	defer resp.Body.Close()

	var wire paymentWire
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode refund response: %w", err)
	}

	return &Result{
		Success:       wire.Success,
		TransactionID: wire.TransactionID,
		Message:       wire.Message,
		Retryable:     wire.Retryable,
	}, nil
}

// --- shipping capabilities ---

// ArrangeShipping books delivery for the order. The returned transaction id
// is the carrier tracking number.
func (g *RESTGateway) ArrangeShipping(ctx context.Context, req ShippingRequest) (*Result, error) {
	resp, transportResult, err := g.post(ctx, g.shipping, g.cfg.ShippingURL+"/api/v1/shipments", req)
	if err != nil || transportResult != nil {
		return transportResult, err
	}
	defer resp.Body.Close()

	var wire shippingWire
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode shipping response: %w", err)
	}

	return &Result{
		Success:       wire.Success,
		TransactionID: wire.TrackingNumber,
		Message:       wire.Message,
		Retryable:     wire.Retryable,
	}, nil
}

// CancelShipping cancels a previously arranged shipment by tracking number.
func (g *RESTGateway) CancelShipping(ctx context.Context, trackingNumber string) (*Result, error) {
	body := struct {
		TrackingNumber string `json:"tracking_number"`
	}{TrackingNumber: trackingNumber}

	resp, transportResult, err := g.post(ctx, g.shipping, g.cfg.ShippingURL+"/api/v1/shipments/cancel", body)
	if err != nil || transportResult != nil {
		return transportResult, err
	}
	defer resp.Body.Close()

	var wire shippingWire
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode shipping cancel response: %w", err)
	}

	return &Result{
		Success:       wire.Success,
		TransactionID: wire.TrackingNumber,
		Message:       wire.Message,
		Retryable:     wire.Retryable,
	}, nil
}

// post executes a JSON POST through the given breaker. Transport-level
// failures (network errors, timeouts, 5xx, open breaker) come back as a
// retryable failure Result rather than an error: the collaborator may well
// recover, so the saga should be allowed to retry.
func (g *RESTGateway) post(ctx context.Context, client *httpclient.CircuitBreakerClient, url string, payload any) (*http.Response, *Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := client.Post(ctx, url, "application/json", bytes.NewReader(body))
	if err != nil {
		g.logger.WarnContext(ctx, "gateway call failed",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		return nil, &Result{
			Success:   false,
			Message:   err.Error(),
			Retryable: BoolPtr(true),
		}, nil
	}

	return resp, nil, nil
}
