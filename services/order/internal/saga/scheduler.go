package saga

import (
	"context"
	"log/slog"
	"time"

	"github.com/onlineshop/orderflow/services/order/internal/domain"
	"github.com/onlineshop/orderflow/services/order/internal/repository"
)

// SchedulerConfig holds sweep intervals for the retry scheduler.
type SchedulerConfig struct {
	// RetryInterval is how often due retries are swept.
	RetryInterval time.Duration
	// StuckInterval is how often stuck FAILED sagas are swept.
	StuckInterval time.Duration
	// StuckAfter is how long a FAILED saga must sit untouched before the
	// stuck sweep claims it.
	StuckAfter time.Duration
}

// DefaultSchedulerConfig returns the production sweep cadence.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		RetryInterval: 30 * time.Second,
		StuckInterval: 5 * time.Minute,
		StuckAfter:    10 * time.Minute,
	}
}

// Scheduler periodically re-enters eligible sagas into execution: sagas
// whose backoff window has elapsed, and FAILED retryable sagas nothing else
// picked up. Claiming is a conditional status swap so concurrent instances
// never retry the same saga twice.
type Scheduler struct {
	sagas repository.SagaStateRepository
	orch  *Orchestrator
	cfg   SchedulerConfig

	logger *slog.Logger
}

// NewScheduler creates a retry scheduler.
func NewScheduler(sagas repository.SagaStateRepository, orch *Orchestrator, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{sagas: sagas, orch: orch, cfg: cfg, logger: logger}
}

// Run blocks sweeping until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	retryTicker := time.NewTicker(s.cfg.RetryInterval)
	defer retryTicker.Stop()
	stuckTicker := time.NewTicker(s.cfg.StuckInterval)
	defer stuckTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-retryTicker.C:
			s.processReady(ctx)
		case <-stuckTicker.C:
			s.processStuck(ctx)
		}
	}
}

func (s *Scheduler) processReady(ctx context.Context) {
	candidates, err := s.sagas.FindReadyForRetry(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("retry sweep query failed", slog.String("error", err.Error()))
		return
	}

	for i := range candidates {
		s.claimAndRetry(ctx, &candidates[i], domain.SagaStatusInProgress)
	}
}

func (s *Scheduler) processStuck(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.StuckAfter)
	candidates, err := s.sagas.FindStuck(ctx, cutoff)
	if err != nil {
		s.logger.Error("stuck saga sweep query failed", slog.String("error", err.Error()))
		return
	}

	for i := range candidates {
		s.logger.Info("claiming stuck saga for retry",
			slog.String("order_number", candidates[i].OrderNumber),
			slog.Int("retry_count", candidates[i].RetryCount),
		)
		s.claimAndRetry(ctx, &candidates[i], domain.SagaStatusFailed)
	}
}

func (s *Scheduler) claimAndRetry(ctx context.Context, state *domain.SagaState, fromStatus string) {
	claimed, err := s.sagas.MarkRetrying(ctx, state.ID, fromStatus)
	if err != nil {
		s.logger.Error("failed to claim saga for retry",
			slog.String("order_number", state.OrderNumber),
			slog.String("error", err.Error()),
		)
		return
	}
	if !claimed {
		return
	}

	if err := s.orch.Retry(ctx, state.OrderNumber); err != nil {
		s.logger.Error("scheduled retry failed",
			slog.String("order_number", state.OrderNumber),
			slog.String("error", err.Error()),
		)
	}
}
