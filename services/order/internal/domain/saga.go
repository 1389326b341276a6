package domain

import "time"

// Saga lifecycle statuses.
const (
	SagaStatusStarted            = "STARTED"
	SagaStatusInProgress         = "IN_PROGRESS"
	SagaStatusRetrying           = "RETRYING"
	SagaStatusCompleted          = "COMPLETED"
	SagaStatusCompensating       = "COMPENSATING"
	SagaStatusCompensated        = "COMPENSATED"
	SagaStatusCompensationFailed = "COMPENSATION_FAILED"
	SagaStatusFailed             = "FAILED"
)

// Saga workflow steps, in strict forward order. A saga never revisits an
// earlier step; retry resumes from the persisted current step.
const (
	StepOrderCreated        = "ORDER_CREATED"
	StepInventoryValidation = "INVENTORY_VALIDATION"
	StepPaymentProcessing   = "PAYMENT_PROCESSING"
	StepShippingArrangement = "SHIPPING_ARRANGEMENT"
	StepOrderConfirmation   = "ORDER_CONFIRMATION"
	StepCompleted           = "COMPLETED"
)

// SagaState is the durable ledger of a single order's saga progress. Each of
// the three (flag, transaction id) pairs is set and cleared together: a flag
// is true exactly when its transaction id is non-nil.
type SagaState struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	CurrentStep string `json:"current_step"`

	InventoryReserved bool `json:"inventory_reserved"`
	PaymentProcessed  bool `json:"payment_processed"`
	ShippingArranged  bool `json:"shipping_arranged"`

	InventoryTransactionID *string `json:"inventory_transaction_id,omitempty"`
	PaymentTransactionID   *string `json:"payment_transaction_id,omitempty"`
	ShippingTransactionID  *string `json:"shipping_transaction_id,omitempty"`

	ErrorMessage   string `json:"error_message,omitempty"`
	LastErrorTrace string `json:"-"`

	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	Retryable     bool       `json:"retryable"`
	LastRetryTime *time.Time `json:"last_retry_time,omitempty"`
	NextRetryTime *time.Time `json:"next_retry_time,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the saga has reached a final status.
func (s *SagaState) IsTerminal() bool {
	switch s.Status {
	case SagaStatusCompleted, SagaStatusCompensated, SagaStatusCompensationFailed:
		return true
	}
	return false
}

// HasCommittedSteps reports whether any forward step recorded an external
// side effect that compensation would need to undo.
func (s *SagaState) HasCommittedSteps() bool {
	return s.InventoryReserved || s.PaymentProcessed || s.ShippingArranged
}

// ValidSagaStatuses returns all valid saga statuses.
func ValidSagaStatuses() []string {
	return []string{
		SagaStatusStarted,
		SagaStatusInProgress,
		SagaStatusRetrying,
		SagaStatusCompleted,
		SagaStatusCompensating,
		SagaStatusCompensated,
		SagaStatusCompensationFailed,
		SagaStatusFailed,
	}
}

// ValidSagaSteps returns all valid saga steps in forward execution order.
func ValidSagaSteps() []string {
	return []string{
		StepOrderCreated,
		StepInventoryValidation,
		StepPaymentProcessing,
		StepShippingArrangement,
		StepOrderConfirmation,
		StepCompleted,
	}
}
