package saga

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/onlineshop/orderflow/services/order/internal/domain"
)

func TestCanRetry(t *testing.T) {
	policy := NewRetryPolicy(5, 300*time.Second)

	tests := []struct {
		name     string
		state    *domain.SagaState
		expected bool
	}{
		{
			name:     "failed retryable under budget",
			state:    &domain.SagaState{Status: domain.SagaStatusFailed, RetryCount: 2, Retryable: true},
			expected: true,
		},
		{
			name:     "in progress retryable under budget",
			state:    &domain.SagaState{Status: domain.SagaStatusInProgress, RetryCount: 0, Retryable: true},
			expected: true,
		},
		{
			name:     "budget exhausted",
			state:    &domain.SagaState{Status: domain.SagaStatusFailed, RetryCount: 5, Retryable: true},
			expected: false,
		},
		{
			name:     "not classified retryable",
			state:    &domain.SagaState{Status: domain.SagaStatusFailed, RetryCount: 1, Retryable: false},
			expected: false,
		},
		{
			name:     "completed saga",
			state:    &domain.SagaState{Status: domain.SagaStatusCompleted, RetryCount: 0, Retryable: true},
			expected: false,
		},
		{
			name:     "compensated saga",
			state:    &domain.SagaState{Status: domain.SagaStatusCompensated, RetryCount: 0, Retryable: true},
			expected: false,
		},
		{
			name:     "nil state",
			state:    nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, policy.CanRetry(tt.state))
		})
	}
}

func TestBackoff_ExponentialWithJitterBounds(t *testing.T) {
	policy := NewRetryPolicy(5, 300*time.Second)

	tests := []struct {
		retryCount int
		base       time.Duration
	}{
		{retryCount: 1, base: 1 * time.Second},
		{retryCount: 2, base: 2 * time.Second},
		{retryCount: 3, base: 4 * time.Second},
		{retryCount: 5, base: 16 * time.Second},
	}

	for _, tt := range tests {
		for i := 0; i < 50; i++ {
			d := policy.Backoff(tt.retryCount)
			assert.GreaterOrEqual(t, d, time.Duration(float64(tt.base)*0.8),
				"attempt %d below jitter floor", tt.retryCount)
			assert.LessOrEqual(t, d, time.Duration(float64(tt.base)*1.2),
				"attempt %d above jitter ceiling", tt.retryCount)
		}
	}
}

func TestBackoff_CappedAtMaxDelay(t *testing.T) {
	policy := NewRetryPolicy(20, 300*time.Second)

	// 2^14 seconds would far exceed the cap; the jittered result must stay
	// within 1.2x of the cap itself.
	d := policy.Backoff(15)
	assert.LessOrEqual(t, d, time.Duration(float64(300*time.Second)*1.2))
	assert.GreaterOrEqual(t, d, time.Duration(float64(300*time.Second)*0.8))
}

func TestBackoff_ZeroAttemptTreatedAsFirst(t *testing.T) {
	policy := NewRetryPolicy(5, 300*time.Second)

	d := policy.Backoff(0)
	assert.GreaterOrEqual(t, d, time.Duration(float64(time.Second)*0.8))
	assert.LessOrEqual(t, d, time.Duration(float64(time.Second)*1.2))
}

func TestNextRetryTime_InTheFuture(t *testing.T) {
	policy := NewRetryPolicy(5, 300*time.Second)

	before := time.Now().UTC()
	next := policy.NextRetryTime(1)
	assert.True(t, next.After(before))
}
