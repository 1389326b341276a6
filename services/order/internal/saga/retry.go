package saga

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/onlineshop/orderflow/services/order/internal/domain"
)

// RetryPolicy governs the timing and count of saga retries. Whether a given
// failure is retryable at all is decided by the failure's classification and
// persisted on the saga state, not here.
type RetryPolicy struct {
	maxRetries    int
	maxRetryDelay time.Duration
}

// NewRetryPolicy creates a retry policy with the given bounds.
func NewRetryPolicy(maxRetries int, maxRetryDelay time.Duration) *RetryPolicy {
	return &RetryPolicy{
		maxRetries:    maxRetries,
		maxRetryDelay: maxRetryDelay,
	}
}

// MaxRetries returns the retry attempt ceiling.
func (p *RetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// CanRetry reports whether the saga is eligible for another attempt: the
// status must be FAILED or IN_PROGRESS, the attempt budget must not be
// exhausted, and the last failure must have been classified retryable.
func (p *RetryPolicy) CanRetry(s *domain.SagaState) bool {
	if s == nil {
		return false
	}
	statusOK := s.Status == domain.SagaStatusFailed || s.Status == domain.SagaStatusInProgress
	return statusOK && s.RetryCount < p.maxRetries && s.Retryable
}

// NextRetryTime computes the jittered exponential backoff deadline for the
// given attempt number: min(maxDelay, 2^(retryCount-1) seconds) scaled by a
// uniform factor in [0.8, 1.2].
func (p *RetryPolicy) NextRetryTime(retryCount int) time.Time {
	return time.Now().UTC().Add(p.Backoff(retryCount))
}

// Backoff returns the delay before the given attempt number.
func (p *RetryPolicy) Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}

	base := time.Duration(math.Pow(2, float64(retryCount-1))) * time.Second
	if base > p.maxRetryDelay || base <= 0 {
		base = p.maxRetryDelay
	}

	jitter := 0.8 + 0.4*rand.Float64() // #nosec G404 -- non-cryptographic jitter to spread retry storms
	return time.Duration(float64(base) * jitter)
}
