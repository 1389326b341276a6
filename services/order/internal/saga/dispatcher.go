package saga

import (
	"context"
	"log/slog"
	"sync"
)

// Dispatcher decouples step completion from the next step's execution: a
// finished step enqueues "run next step for order X" instead of calling into
// the executor recursively, so every step runs in its own unit of work.
type Dispatcher struct {
	jobs    chan string
	handler func(ctx context.Context, orderNumber string)
	workers int
	logger  *slog.Logger
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// newDispatcher creates a dispatcher with the given worker count and queue
// size. The handler is attached by the orchestrator before Start.
func newDispatcher(workers, queueSize int, logger *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 16
	}
	return &Dispatcher{
		jobs:    make(chan string, queueSize),
		workers: workers,
		logger:  logger,
	}
}

// Start launches the worker goroutines. It returns once the workers are
// running; they stop when the context is canceled or Close is called.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case orderNumber, ok := <-d.jobs:
					if !ok {
						return
					}
					sagaQueueDepth.Set(float64(len(d.jobs)))
					d.handler(ctx, orderNumber)
				}
			}
		}()
	}
}

// Enqueue schedules the next step of the given order's saga. If the queue is
// full the job is dropped with an error log; the stuck-saga sweep picks such
// sagas up later, so the saga is delayed rather than lost.
func (d *Dispatcher) Enqueue(orderNumber string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("saga dispatcher closed, deferring to retry sweep",
			slog.String("order_number", orderNumber),
		)
		return
	}

	select {
	case d.jobs <- orderNumber:
		sagaQueueDepth.Set(float64(len(d.jobs)))
	default:
		d.logger.Error("saga dispatch queue full, deferring to retry sweep",
			slog.String("order_number", orderNumber),
		)
	}
}

// Close stops accepting jobs and waits for in-flight work to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
