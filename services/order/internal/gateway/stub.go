package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Capability names used for stub fault injection and call recording.
const (
	CapReserveInventory = "ReserveInventory"
	CapReleaseInventory = "ReleaseInventory"
	CapConfirmInventory = "ConfirmInventory"
	CapProcessPayment   = "ProcessPayment"
	CapRefundPayment    = "RefundPayment"
	CapArrangeShipping  = "ArrangeShipping"
	CapCancelShipping   = "CancelShipping"
)

// StubGateway is an in-memory Gateway for tests and local runs. Every
// capability succeeds with a generated transaction id unless a fault is
// injected for it. All calls are recorded in order.
type StubGateway struct {
	mu     sync.Mutex
	faults map[string]*Result
	errs   map[string]error
	calls  []string
}

// NewStubGateway creates a stub gateway where every capability succeeds.
func NewStubGateway() *StubGateway {
	return &StubGateway{
		faults: make(map[string]*Result),
		errs:   make(map[string]error),
	}
}

// Fail makes the named capability return the given failure result. A nil
// result models an absent response from the collaborator.
func (g *StubGateway) Fail(capability string, result *Result) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.faults[capability] = result
}

// FailWith makes the named capability return an error instead of a result.
func (g *StubGateway) FailWith(capability string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[capability] = err
}

// Restore removes any injected fault for the named capability.
func (g *StubGateway) Restore(capability string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.faults, capability)
	delete(g.errs, capability)
}

// Calls returns the capability names invoked so far, in order.
func (g *StubGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.calls))
	copy(out, g.calls)
	return out
}

// CallCount returns how many times the named capability was invoked.
func (g *StubGateway) CallCount(capability string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == capability {
			n++
		}
	}
	return n
}

func (g *StubGateway) invoke(capability, transactionID string) (*Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, capability)

	if err, ok := g.errs[capability]; ok {
		return nil, err
	}
	if result, ok := g.faults[capability]; ok {
		return result, nil
	}

	return &Result{
		Success:       true,
		TransactionID: transactionID,
		Message:       fmt.Sprintf("%s ok", capability),
	}, nil
}

func (g *StubGateway) ReserveInventory(_ context.Context, req ReserveInventoryRequest) (*Result, error) {
	return g.invoke(CapReserveInventory, req.OrderNumber)
}

func (g *StubGateway) ReleaseInventory(_ context.Context, orderNumber string) (*Result, error) {
	return g.invoke(CapReleaseInventory, orderNumber)
}

func (g *StubGateway) ConfirmInventory(_ context.Context, orderNumber string) (*Result, error) {
	return g.invoke(CapConfirmInventory, orderNumber)
}

func (g *StubGateway) ProcessPayment(_ context.Context, _ PaymentRequest) (*Result, error) {
	return g.invoke(CapProcessPayment, "PAY-"+uuid.New().String())
}

func (g *StubGateway) RefundPayment(_ context.Context, transactionID string) (*Result, error) {
	return g.invoke(CapRefundPayment, transactionID)
}

func (g *StubGateway) ArrangeShipping(_ context.Context, _ ShippingRequest) (*Result, error) {
	return g.invoke(CapArrangeShipping, "TRK-"+uuid.New().String())
}

func (g *StubGateway) CancelShipping(_ context.Context, trackingNumber string) (*Result, error) {
	return g.invoke(CapCancelShipping, trackingNumber)
}
